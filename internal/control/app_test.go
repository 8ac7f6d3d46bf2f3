package control

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/stability/internal/core/config"
	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/fallback"
	redisclient "github.com/vietddude/stability/internal/infra/redis"
	"github.com/vietddude/stability/internal/orchestrator"
)

func testConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Resource.Source = "static"
	cfg.Components = []config.ComponentConfig{
		{Name: "planner", Tier: "critical", Transport: "static", TimeoutBudget: 100 * time.Millisecond, Decision: "go"},
		{Name: "backup", Tier: "stable", Transport: "static", TimeoutBudget: 100 * time.Millisecond, Decision: "slow"},
	}
	return cfg
}

func TestApp_Lifecycle(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(), nil)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	if got := len(app.Manager().Registry().Names()); got != 2 {
		t.Errorf("expected 2 components, got %d", got)
	}

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp := app.Manager().Handle(ctx, domain.NewRequest("route", map[string]any{"lane": 1}, time.Second))
	if resp.Strategy != orchestrator.StrategyPrimary || resp.ProducedBy != "planner" {
		t.Errorf("unexpected response: %+v", resp)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := len(app.Manager().Registry().Names()); got != 0 {
		t.Errorf("expected components unregistered on stop, got %d", got)
	}
}

func TestApp_RedisUnavailableFallsBackToMemory(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = "redis"
	cfg.Redis = redisclient.Config{URL: "redis://127.0.0.1:1/0"}

	app, err := NewApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if _, ok := app.Manager().Fallback().Cache().(*fallback.MemoryCache); !ok {
		t.Errorf("expected memory cache fallback, got %T", app.Manager().Fallback().Cache())
	}
}

func TestApp_InvalidComponent(t *testing.T) {
	cfg := testConfig()
	cfg.Components = append(cfg.Components, config.ComponentConfig{Name: "remote", Tier: "stable", Transport: "http"})

	if _, err := NewApp(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for http component without endpoint")
	}
}

func TestFallbackConfig_MergesChains(t *testing.T) {
	fc, err := fallbackConfig(config.FallbackConfig{
		MaxDepth: 5,
		Chains:   map[string][]string{"research": {"simplified"}},
	})
	if err != nil {
		t.Fatalf("fallbackConfig failed: %v", err)
	}
	if got := fc.Chains[domain.TierResearch]; len(got) != 1 || got[0] != "simplified" {
		t.Errorf("expected research override, got %v", got)
	}
	if got := fc.Chains[domain.TierCritical]; len(got) != 2 {
		t.Errorf("expected default critical chain kept, got %v", got)
	}

	if _, err := fallbackConfig(config.FallbackConfig{Chains: map[string][]string{"legendary": nil}}); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestResourceConfig_Policies(t *testing.T) {
	rc, err := resourceConfig(config.ResourceConfig{
		Policies: []config.PolicyConfig{{Level: "light", CPUThreshold: 50, MemoryThreshold: 60, ReductionFactor: 0.8}},
	}, config.OrchestratorConfig{MaxConcurrency: 16})
	if err != nil {
		t.Fatalf("resourceConfig failed: %v", err)
	}
	if len(rc.Policies) != 1 || rc.Policies[0].Level != domain.ThrottleLight {
		t.Errorf("unexpected policies: %+v", rc.Policies)
	}
	if rc.BaseConcurrency != 16 {
		t.Errorf("expected base concurrency 16, got %d", rc.BaseConcurrency)
	}

	if _, err := resourceConfig(config.ResourceConfig{
		Policies: []config.PolicyConfig{{Level: "panic"}},
	}, config.OrchestratorConfig{}); err == nil {
		t.Error("expected error for unknown level")
	}
}
