package domain

import "time"

// HealthStatus is the derived status of a component.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
)

// CircuitState is the per-component breaker position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// SampleSource tells probe samples apart from execution outcomes.
type SampleSource string

const (
	SourceProbe   SampleSource = "probe"
	SourceExecute SampleSource = "execute"
)

// HealthSample is one entry of the rolling health window.
type HealthSample struct {
	At      time.Time     `json:"at"`
	Latency time.Duration `json:"latency"`
	Success bool          `json:"success"`
	Score   float64       `json:"score"`
	Source  SampleSource  `json:"source"`
}

// HealthRecord is a point-in-time copy of a component's health state.
type HealthRecord struct {
	Component            string         `json:"component"`
	Status               HealthStatus   `json:"status"`
	Score                float64        `json:"score"`
	LastCheck            time.Time      `json:"last_check"`
	AvgLatency           time.Duration  `json:"avg_latency"`
	SuccessRate          float64        `json:"success_rate"`
	Samples              int            `json:"samples"`
	Circuit              CircuitState   `json:"circuit"`
	ConsecutiveFailures  int            `json:"consecutive_failures"`
	ConsecutiveSuccesses int            `json:"consecutive_successes"`
	OpenedAt             time.Time      `json:"opened_at,omitempty"`
	Window               []HealthSample `json:"window,omitempty"`
}
