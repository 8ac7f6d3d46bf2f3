package domain

import (
	"fmt"
	"strings"
	"time"
)

// ThrottleLevel is the global admission-control posture.
type ThrottleLevel int

const (
	ThrottleNone ThrottleLevel = iota
	ThrottleLight
	ThrottleModerate
	ThrottleAggressive
	ThrottleEmergency
)

func (l ThrottleLevel) String() string {
	switch l {
	case ThrottleNone:
		return "none"
	case ThrottleLight:
		return "light"
	case ThrottleModerate:
		return "moderate"
	case ThrottleAggressive:
		return "aggressive"
	case ThrottleEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ParseThrottleLevel maps a config name to a level.
func ParseThrottleLevel(s string) (ThrottleLevel, error) {
	for l := ThrottleNone; l <= ThrottleEmergency; l++ {
		if strings.EqualFold(strings.TrimSpace(s), l.String()) {
			return l, nil
		}
	}
	return ThrottleNone, fmt.Errorf("unknown throttle level %q", s)
}

// ThrottlePolicy is one rung of the throttle ladder.
type ThrottlePolicy struct {
	Level           ThrottleLevel `json:"level"`
	CPUThreshold    float64       `json:"cpu_threshold"`
	MemoryThreshold float64       `json:"memory_threshold"`
	ReductionFactor float64       `json:"reduction_factor"`
	Cooldown        time.Duration `json:"cooldown"`
}

// Matches reports whether the given usage reaches this policy.
func (p ThrottlePolicy) Matches(cpu, mem float64) bool {
	return cpu >= p.CPUThreshold || mem >= p.MemoryThreshold
}

// ThrottleState is the currently applied policy.
type ThrottleState struct {
	Policy    ThrottlePolicy `json:"policy"`
	ChangedAt time.Time      `json:"changed_at"`
	Reason    string         `json:"reason,omitempty"`
}

// Level is shorthand for s.Policy.Level.
func (s ThrottleState) Level() ThrottleLevel {
	return s.Policy.Level
}

// ResourceSample is one CPU/memory observation in percent.
type ResourceSample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Forecast is predicted usage at Horizon from now.
type Forecast struct {
	CPUPercent           float64       `json:"cpu_percent"`
	MemoryPercent        float64       `json:"memory_percent"`
	CPUTrend             float64       `json:"cpu_trend"`    // percent per second
	MemoryTrend          float64       `json:"memory_trend"` // percent per second
	WorkloadImpactCPU    float64       `json:"workload_impact_cpu"`
	WorkloadImpactMemory float64       `json:"workload_impact_memory"`
	Horizon              time.Duration `json:"horizon"`
}

// Workload is a registered consumer of resources that may be paused under
// emergency.
type Workload struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Priority          int     `json:"priority"`
	EstimatedCPU      float64 `json:"estimated_cpu"`
	EstimatedMemoryMB float64 `json:"estimated_memory_mb"`
	Weight            float64 `json:"weight"`
	Paused            bool    `json:"paused"`
}
