package component

import (
	"fmt"

	"github.com/vietddude/stability/internal/core/config"
	"github.com/vietddude/stability/internal/core/domain"
)

// Build creates the component described by cfg. Remote transports are
// wrapped with retries when cfg.Retries is set.
func Build(cfg config.ComponentConfig) (domain.Component, error) {
	comp, err := build(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Retries > 0 && cfg.Transport != "static" && cfg.Transport != "" {
		rc := DefaultRetryConfig
		rc.MaxAttempts = cfg.Retries + 1
		if cfg.RetryDelay > 0 {
			rc.InitialDelay = cfg.RetryDelay
		}
		return WithRetry(comp, rc), nil
	}
	return comp, nil
}

func build(cfg config.ComponentConfig) (domain.Component, error) {
	switch cfg.Transport {
	case "", "static":
		var decision any
		if cfg.Decision != "" {
			decision = cfg.Decision
		}
		return NewStatic(cfg.Name, cfg.Latency, cfg.FailureRate, decision), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("component %s: http transport requires endpoint", cfg.Name)
		}
		return NewHTTP(cfg.Name, cfg.Endpoint, cfg.TimeoutBudget), nil
	case "grpc":
		if cfg.Endpoint == "" || cfg.Method == "" {
			return nil, fmt.Errorf("component %s: grpc transport requires endpoint and method", cfg.Name)
		}
		c, err := NewGRPC(cfg.Name, cfg.Endpoint, cfg.Method, cfg.TLS)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("component %s: unknown transport %q", cfg.Name, cfg.Transport)
	}
}
