package control

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/stability/internal/core/config"
	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/fallback"
	"github.com/vietddude/stability/internal/health"
	"github.com/vietddude/stability/internal/resource"
)

func newSampler(cfg config.ResourceConfig, logger *slog.Logger) (resource.Sampler, error) {
	switch cfg.Source {
	case "static":
		return resource.NewStaticSampler(0, 0), nil
	case "prometheus":
		s, err := resource.NewPrometheusSampler(cfg.PrometheusURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init prometheus sampler: %w", err)
		}
		return s, nil
	case "", "proc":
		s, err := resource.NewProcSampler("")
		if err != nil {
			return nil, fmt.Errorf("failed to init proc sampler: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown resource source %q", cfg.Source)
	}
}

func healthConfig(cfg config.HealthConfig) health.Config {
	hc := health.DefaultConfig()
	hc.ProbeInterval = cfg.ProbeInterval
	hc.ProbeTimeout = cfg.ProbeTimeout
	hc.WindowSize = cfg.WindowSize
	hc.MinSamples = cfg.MinSamples
	hc.HealthyThreshold = cfg.HealthyThreshold
	hc.DegradedThreshold = cfg.DegradedThreshold
	hc.UnhealthyThreshold = cfg.UnhealthyThreshold
	hc.Breaker = health.BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
	}
	return hc
}

func resourceConfig(cfg config.ResourceConfig, orch config.OrchestratorConfig) (resource.Config, error) {
	rc := resource.DefaultConfig()
	rc.SampleInterval = cfg.SampleInterval
	rc.HistorySize = cfg.HistorySize
	rc.ForecastHorizon = cfg.ForecastHorizon
	rc.CPUCores = cfg.CPUCores
	rc.TotalMemoryMB = cfg.TotalMemoryMB
	rc.CPULimit = cfg.CPULimit
	rc.MemoryLimit = cfg.MemoryLimit
	rc.WorkloadImpactFactor = cfg.WorkloadImpactFactor
	if orch.MaxConcurrency > 0 {
		rc.BaseConcurrency = int(orch.MaxConcurrency)
	}

	for _, p := range cfg.Policies {
		level, err := domain.ParseThrottleLevel(p.Level)
		if err != nil {
			return resource.Config{}, err
		}
		rc.Policies = append(rc.Policies, domain.ThrottlePolicy{
			Level:           level,
			CPUThreshold:    p.CPUThreshold,
			MemoryThreshold: p.MemoryThreshold,
			ReductionFactor: p.ReductionFactor,
			Cooldown:        p.Cooldown,
		})
	}
	return rc, nil
}

func fallbackConfig(cfg config.FallbackConfig) (fallback.Config, error) {
	fc := fallback.Config{
		MaxDepth:                   cfg.MaxDepth,
		TierPenalty:                cfg.TierPenalty,
		EmergencyQuality:           cfg.EmergencyQuality,
		CachedDegradation:          cfg.CachedDegradation,
		AlgorithmSwitchDegradation: cfg.AlgorithmSwitchDegradation,
		SimplifiedDegradation:      cfg.SimplifiedDegradation,
		MinAttemptTime:             cfg.MinAttemptTime,
		Chains:                     fallback.DefaultChains(),
	}
	for name, chain := range cfg.Chains {
		tier, err := domain.ParseTier(name)
		if err != nil {
			return fallback.Config{}, fmt.Errorf("fallback chain: %w", err)
		}
		fc.Chains[tier] = chain
	}
	return fc, nil
}
