package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"github.com/vietddude/stability/internal/core/domain"
)

// ProcSampler reads host usage from /proc. CPU is the busy share since the
// previous sample, or since boot on the first call.
type ProcSampler struct {
	fs procfs.FS

	mu        sync.Mutex
	lastBusy  float64
	lastTotal float64
}

// NewProcSampler opens the proc filesystem at mountPoint. An empty mount
// point means procfs.DefaultMountPoint.
func NewProcSampler(mountPoint string) (*ProcSampler, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &ProcSampler{fs: fs}, nil
}

func (p *ProcSampler) Sample(context.Context) (domain.ResourceSample, error) {
	stat, err := p.fs.Stat()
	if err != nil {
		return domain.ResourceSample{}, fmt.Errorf("failed to read cpu stat: %w", err)
	}
	mem, err := p.fs.Meminfo()
	if err != nil {
		return domain.ResourceSample{}, fmt.Errorf("failed to read meminfo: %w", err)
	}

	return domain.ResourceSample{
		CPUPercent:    p.cpuPercent(stat.CPUTotal),
		MemoryPercent: memoryPercent(mem),
		Timestamp:     time.Now(),
	}, nil
}

func (p *ProcSampler) cpuPercent(c procfs.CPUStat) float64 {
	idle := c.Idle + c.Iowait
	total := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal + idle
	busy := total - idle

	p.mu.Lock()
	defer p.mu.Unlock()

	deltaBusy, deltaTotal := busy-p.lastBusy, total-p.lastTotal
	p.lastBusy, p.lastTotal = busy, total

	if deltaTotal <= 0 {
		return 0
	}
	return clampPercent(deltaBusy / deltaTotal * 100)
}

func memoryPercent(m procfs.Meminfo) float64 {
	if m.MemTotal == nil || *m.MemTotal == 0 {
		return 0
	}
	total := float64(*m.MemTotal)

	var available float64
	switch {
	case m.MemAvailable != nil:
		available = float64(*m.MemAvailable)
	case m.MemFree != nil:
		available = float64(*m.MemFree)
		if m.Buffers != nil {
			available += float64(*m.Buffers)
		}
		if m.Cached != nil {
			available += float64(*m.Cached)
		}
	}
	return clampPercent((1 - available/total) * 100)
}
