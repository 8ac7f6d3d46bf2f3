package domain

import (
	"context"
	"time"
)

// ResourceCost is the estimated footprint of one Execute call.
type ResourceCost struct {
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu"`       // percent of one core
	MemoryMB   float64 `json:"memory_mb"   yaml:"memory_mb"` // resident MB
}

// Descriptor is the catalog entry for a registered component.
type Descriptor struct {
	Name          string        `json:"name"`
	Tier          Tier          `json:"tier"`
	Category      string        `json:"category"`
	Type          string        `json:"type"`
	Priority      int           `json:"priority"`
	TimeoutBudget time.Duration `json:"timeout_budget"`
	ResourceCost  ResourceCost  `json:"resource_cost"`
	Capabilities  []string      `json:"capabilities,omitempty"`
}

// HasCapabilities reports whether the descriptor declares every tag in caps.
func (d Descriptor) HasCapabilities(caps []string) bool {
	for _, want := range caps {
		found := false
		for _, have := range d.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HealthCheckResult is what a component reports from a liveness probe.
type HealthCheckResult struct {
	Score  float64      `json:"score"`
	Status HealthStatus `json:"status,omitempty"`
}

// Component is the single capability every decision-producing unit is
// adapted to at registration time.
type Component interface {
	// Execute produces a decision for the request. It must be safe to abandon
	// once ctx is done.
	Execute(ctx context.Context, req *Request) (any, error)

	// HealthCheck is a cheap probe that must not need Execute's resources.
	HealthCheck(ctx context.Context) (HealthCheckResult, error)
}

// Initializer is implemented by components that need setup on registration.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Cleaner is implemented by components that release resources on removal.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}
