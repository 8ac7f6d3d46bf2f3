package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/stability/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	o := &c.Orchestrator
	if o.MaxConcurrency == 0 {
		o.MaxConcurrency = 64
	}
	if o.DefaultTimeLimit == 0 {
		o.DefaultTimeLimit = time.Second
	}
	if o.RequestsPerSecond > 0 && o.Burst == 0 {
		o.Burst = int(o.RequestsPerSecond)
		if o.Burst < 1 {
			o.Burst = 1
		}
	}

	h := &c.Health
	if h.ProbeInterval == 0 {
		h.ProbeInterval = 5 * time.Second
	}
	if h.ProbeTimeout == 0 {
		h.ProbeTimeout = time.Second
	}
	if h.WindowSize == 0 {
		h.WindowSize = 20
	}
	if h.MinSamples == 0 {
		h.MinSamples = 5
	}
	if h.FailureThreshold == 0 {
		h.FailureThreshold = 3
	}
	if h.SuccessThreshold == 0 {
		h.SuccessThreshold = 2
	}
	if h.RecoveryTimeout == 0 {
		h.RecoveryTimeout = 30 * time.Second
	}
	if h.HealthyThreshold == 0 {
		h.HealthyThreshold = 0.8
	}
	if h.DegradedThreshold == 0 {
		h.DegradedThreshold = 0.6
	}
	if h.UnhealthyThreshold == 0 {
		h.UnhealthyThreshold = 0.4
	}

	r := &c.Resource
	if r.Source == "" {
		r.Source = "proc"
	}
	if r.SampleInterval == 0 {
		r.SampleInterval = 5 * time.Second
	}
	if r.HistorySize == 0 {
		r.HistorySize = 60
	}
	if r.ForecastHorizon == 0 {
		r.ForecastHorizon = 30 * time.Second
	}
	if r.CPUCores == 0 {
		r.CPUCores = 4
	}
	if r.TotalMemoryMB == 0 {
		r.TotalMemoryMB = 8192
	}
	if r.CPULimit == 0 {
		r.CPULimit = 80
	}
	if r.MemoryLimit == 0 {
		r.MemoryLimit = 85
	}
	if r.WorkloadImpactFactor == 0 {
		r.WorkloadImpactFactor = 0.1
	}

	f := &c.Fallback
	if f.MaxDepth == 0 {
		f.MaxDepth = 5
	}
	if f.TierPenalty == 0 {
		f.TierPenalty = 0.2
	}
	if f.EmergencyQuality == 0 {
		f.EmergencyQuality = 0.1
	}
	if f.CachedDegradation == 0 {
		f.CachedDegradation = 0.1
	}
	if f.AlgorithmSwitchDegradation == 0 {
		f.AlgorithmSwitchDegradation = 0.15
	}
	if f.SimplifiedDegradation == 0 {
		f.SimplifiedDegradation = 0.5
	}
	if f.MinAttemptTime == 0 {
		f.MinAttemptTime = 20 * time.Millisecond
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.PruneInterval == 0 {
		c.Cache.PruneInterval = time.Minute
	}

	for i := range c.Components {
		comp := &c.Components[i]
		if comp.Tier == "" {
			comp.Tier = domain.TierStable.String()
		}
		if comp.Transport == "" {
			comp.Transport = "static"
		}
		if comp.TimeoutBudget == 0 {
			comp.TimeoutBudget = 500 * time.Millisecond
		}
	}
}

// Validate rejects configurations the runtime cannot honour.
func (c *AppConfig) Validate() error {
	h := c.Health
	if !(h.HealthyThreshold >= h.DegradedThreshold && h.DegradedThreshold >= h.UnhealthyThreshold) {
		return fmt.Errorf("health thresholds must be descending: %.2f/%.2f/%.2f",
			h.HealthyThreshold, h.DegradedThreshold, h.UnhealthyThreshold)
	}
	if c.Fallback.EmergencyQuality < 0 || c.Fallback.EmergencyQuality > 1 {
		return fmt.Errorf("fallback.emergency_quality must be within [0,1], got %v", c.Fallback.EmergencyQuality)
	}
	for tier := range c.Fallback.Chains {
		if _, err := domain.ParseTier(tier); err != nil {
			return fmt.Errorf("fallback.chains: %w", err)
		}
	}
	for _, p := range c.Resource.Policies {
		if _, err := domain.ParseThrottleLevel(p.Level); err != nil {
			return fmt.Errorf("resource.policies: %w", err)
		}
	}
	switch c.Resource.Source {
	case "proc", "static":
	case "prometheus":
		if c.Resource.PrometheusURL == "" {
			return fmt.Errorf("resource.prometheus_url is required for the prometheus source")
		}
	default:
		return fmt.Errorf("unknown resource source %q", c.Resource.Source)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis.url is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	seen := make(map[string]bool, len(c.Components))
	for _, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("component without a name")
		}
		if seen[comp.Name] {
			return fmt.Errorf("duplicate component %q", comp.Name)
		}
		seen[comp.Name] = true
		if _, err := domain.ParseTier(comp.Tier); err != nil {
			return fmt.Errorf("component %s: %w", comp.Name, err)
		}
		switch comp.Transport {
		case "static":
		case "http", "grpc":
			if comp.Endpoint == "" {
				return fmt.Errorf("component %s: endpoint is required for %s transport", comp.Name, comp.Transport)
			}
		default:
			return fmt.Errorf("component %s: unknown transport %q", comp.Name, comp.Transport)
		}
	}
	return nil
}

// Descriptor converts a component entry into its catalog descriptor.
func (c ComponentConfig) Descriptor() (domain.Descriptor, error) {
	tier, err := domain.ParseTier(c.Tier)
	if err != nil {
		return domain.Descriptor{}, err
	}
	return domain.Descriptor{
		Name:          c.Name,
		Tier:          tier,
		Category:      c.Category,
		Type:          c.Type,
		Priority:      c.Priority,
		TimeoutBudget: c.TimeoutBudget,
		ResourceCost:  domain.ResourceCost{CPUPercent: c.CPU, MemoryMB: c.MemoryMB},
		Capabilities:  c.Capabilities,
	}, nil
}
