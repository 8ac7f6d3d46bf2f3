package resource

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// Sampler is any source of current CPU and memory usage.
type Sampler interface {
	// Sample returns usage in percent (0-100).
	Sample(ctx context.Context) (domain.ResourceSample, error)
}

// StaticSampler returns whatever usage was last set. It backs the "static"
// source and tests.
type StaticSampler struct {
	mu     sync.RWMutex
	cpu    float64
	memory float64
}

// NewStaticSampler creates a sampler fixed at the given usage.
func NewStaticSampler(cpu, memory float64) *StaticSampler {
	return &StaticSampler{cpu: cpu, memory: memory}
}

// Set changes the reported usage.
func (s *StaticSampler) Set(cpu, memory float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu, s.memory = cpu, memory
}

func (s *StaticSampler) Sample(context.Context) (domain.ResourceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ResourceSample{
		CPUPercent:    s.cpu,
		MemoryPercent: s.memory,
		Timestamp:     time.Now(),
	}, nil
}

func clampPercent(v float64) float64 {
	return min(max(v, 0), 100)
}
