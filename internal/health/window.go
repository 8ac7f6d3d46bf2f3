package health

import (
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// window is a bounded rolling buffer of health samples. The oldest sample
// is evicted once size is reached.
type window struct {
	samples    []domain.HealthSample
	size       int
	minSamples int
}

func newWindow(size, minSamples int) *window {
	if size < 1 {
		size = 1
	}
	return &window{samples: make([]domain.HealthSample, 0, size), size: size, minSamples: minSamples}
}

func (w *window) add(s domain.HealthSample) {
	if len(w.samples) >= w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, s)
}

func (w *window) len() int {
	return len(w.samples)
}

// score is the mean sample score. Until minSamples samples exist the
// missing ones count as perfect, so a fresh component is not written off
// by its first failure.
func (w *window) score() float64 {
	n := len(w.samples)
	var sum float64
	for _, s := range w.samples {
		sum += s.Score
	}
	if pad := w.minSamples - n; pad > 0 {
		sum += float64(pad)
		n += pad
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// stats returns average latency and success rate, preferring execution
// samples over probes when any exist.
func (w *window) stats() (time.Duration, float64) {
	var (
		execLatency, probeLatency time.Duration
		execOK, probeOK           int
		execN, probeN             int
	)
	for _, s := range w.samples {
		if s.Source == domain.SourceExecute {
			execN++
			execLatency += s.Latency
			if s.Success {
				execOK++
			}
			continue
		}
		probeN++
		probeLatency += s.Latency
		if s.Success {
			probeOK++
		}
	}

	switch {
	case execN > 0:
		return execLatency / time.Duration(execN), float64(execOK) / float64(execN)
	case probeN > 0:
		return probeLatency / time.Duration(probeN), float64(probeOK) / float64(probeN)
	default:
		return 0, 1.0
	}
}

func (w *window) copySamples() []domain.HealthSample {
	out := make([]domain.HealthSample, len(w.samples))
	copy(out, w.samples)
	return out
}
