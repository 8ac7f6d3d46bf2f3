package config

import (
	"time"

	redisclient "github.com/vietddude/stability/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Health       HealthConfig       `yaml:"health"`
	Resource     ResourceConfig     `yaml:"resource"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Cache        CacheConfig        `yaml:"cache"`
	Redis        redisclient.Config `yaml:"redis"`
	Components   []ComponentConfig  `yaml:"components"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// OrchestratorConfig bounds request handling.
type OrchestratorConfig struct {
	MaxConcurrency    int64         `yaml:"max_concurrency"`
	DefaultTimeLimit  time.Duration `yaml:"default_time_limit"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	Burst             int           `yaml:"burst"`
}

// HealthConfig tunes probing and the circuit breaker.
type HealthConfig struct {
	ProbeInterval      time.Duration `yaml:"probe_interval"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	WindowSize         int           `yaml:"window_size"`
	MinSamples         int           `yaml:"min_samples"`
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	RecoveryTimeout    time.Duration `yaml:"recovery_timeout"`
	HealthyThreshold   float64       `yaml:"healthy_threshold"`
	DegradedThreshold  float64       `yaml:"degraded_threshold"`
	UnhealthyThreshold float64       `yaml:"unhealthy_threshold"`
}

// ResourceConfig selects the usage source and throttle ladder.
type ResourceConfig struct {
	Source               string         `yaml:"source"` // proc, prometheus, static
	PrometheusURL        string         `yaml:"prometheus_url"`
	SampleInterval       time.Duration  `yaml:"sample_interval"`
	HistorySize          int            `yaml:"history_size"`
	ForecastHorizon      time.Duration  `yaml:"forecast_horizon"`
	CPUCores             int            `yaml:"cpu_cores"`
	TotalMemoryMB        float64        `yaml:"total_memory_mb"`
	CPULimit             float64        `yaml:"cpu_limit"`
	MemoryLimit          float64        `yaml:"memory_limit"`
	WorkloadImpactFactor float64        `yaml:"workload_impact_factor"`
	Policies             []PolicyConfig `yaml:"policies"`
}

// PolicyConfig overrides one throttle level.
type PolicyConfig struct {
	Level           string        `yaml:"level"`
	CPUThreshold    float64       `yaml:"cpu"`
	MemoryThreshold float64       `yaml:"memory"`
	ReductionFactor float64       `yaml:"reduction_factor"`
	Cooldown        time.Duration `yaml:"cooldown"`
}

// FallbackConfig holds depth bounds and quality constants.
type FallbackConfig struct {
	MaxDepth                   int                 `yaml:"max_depth"`
	TierPenalty                float64             `yaml:"tier_penalty"`
	EmergencyQuality           float64             `yaml:"emergency_quality"`
	CachedDegradation          float64             `yaml:"cached_degradation"`
	AlgorithmSwitchDegradation float64             `yaml:"algorithm_switch_degradation"`
	SimplifiedDegradation      float64             `yaml:"simplified_degradation"`
	MinAttemptTime             time.Duration       `yaml:"min_attempt_time"`
	Chains                     map[string][]string `yaml:"chains"` // tier name -> strategy names
}

// CacheConfig configures the response cache used by the cached strategy.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory, redis
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// ComponentConfig declares a component and the adapter that reaches it.
type ComponentConfig struct {
	Name          string        `yaml:"name"`
	Tier          string        `yaml:"tier"`
	Category      string        `yaml:"category"`
	Type          string        `yaml:"type"`
	Priority      int           `yaml:"priority"`
	TimeoutBudget time.Duration `yaml:"timeout_budget"`
	CPU           float64       `yaml:"cpu"`
	MemoryMB      float64       `yaml:"memory_mb"`
	Capabilities  []string      `yaml:"capabilities"`

	Transport string `yaml:"transport"` // static, http, grpc
	Endpoint  string `yaml:"endpoint"`
	Method    string `yaml:"method"` // grpc full method name
	TLS       bool   `yaml:"tls"`

	// Remote retries within the timeout budget.
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Static component behaviour.
	Latency     time.Duration `yaml:"latency"`
	FailureRate float64       `yaml:"failure_rate"`
	Decision    string        `yaml:"decision"`
}
