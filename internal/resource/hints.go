package resource

import (
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// Hints tell a workload how to shape its own work under the current
// throttle level.
type Hints struct {
	WorkloadID         string               `json:"workload_id"`
	Level              domain.ThrottleLevel `json:"level"`
	Paused             bool                 `json:"paused"`
	BatchSizeFactor    float64              `json:"batch_size_factor"`
	MaxConcurrency     int                  `json:"max_concurrency"`
	IntervalMultiplier float64              `json:"interval_multiplier"`
	CacheTTL           time.Duration        `json:"cache_ttl"`
	Recommendations    []string             `json:"recommendations,omitempty"`
}

// hintsFor derives hints from the applied policy.
//
//   - None: full batch and concurrency
//   - Light/Moderate: scale batch and concurrency by the reduction factor
//   - Aggressive and above: also stretch intervals and lengthen cache TTLs
func hintsFor(w domain.Workload, policy domain.ThrottlePolicy, baseConcurrency int, baseTTL time.Duration) Hints {
	factor := policy.ReductionFactor
	if factor <= 0 {
		factor = 1
	}

	h := Hints{
		WorkloadID:         w.ID,
		Level:              policy.Level,
		Paused:             w.Paused,
		BatchSizeFactor:    factor,
		MaxConcurrency:     max(1, int(float64(baseConcurrency)*factor)),
		IntervalMultiplier: 1 / factor,
		CacheTTL:           baseTTL,
	}

	switch {
	case policy.Level >= domain.ThrottleAggressive:
		h.CacheTTL = time.Duration(float64(baseTTL) / factor)
		h.Recommendations = append(h.Recommendations,
			"defer non-critical work",
			"prefer cached results",
		)
	case policy.Level >= domain.ThrottleLight:
		h.Recommendations = append(h.Recommendations, "reduce batch size")
	}
	if w.EstimatedMemoryMB > 0 && policy.Level >= domain.ThrottleModerate {
		h.Recommendations = append(h.Recommendations, "release idle buffers")
	}
	if w.Paused {
		h.Recommendations = append(h.Recommendations, "paused until pressure drops below aggressive")
	}
	return h
}
