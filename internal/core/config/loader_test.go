package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vietddude/stability/internal/core/domain"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_REDIS_URL", "redis://localhost:6380/1")
	defer os.Unsetenv("TEST_REDIS_URL")

	// Create temp config file
	configContent := `
redis:
  url: ${TEST_REDIS_URL}
cache:
  backend: redis
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.URL != "redis://localhost:6380/1" {
		t.Errorf("Expected URL redis://localhost:6380/1, got %s", cfg.Redis.URL)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("components:\n  - name: minimax\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Health.FailureThreshold != 3 || cfg.Health.WindowSize != 20 {
		t.Errorf("unexpected health defaults: %+v", cfg.Health)
	}
	if cfg.Fallback.MaxDepth != 5 || cfg.Fallback.TierPenalty != 0.2 {
		t.Errorf("unexpected fallback defaults: %+v", cfg.Fallback)
	}
	if cfg.Resource.CPULimit != 80 || cfg.Resource.MemoryLimit != 85 {
		t.Errorf("unexpected resource limits: %+v", cfg.Resource)
	}

	comp := cfg.Components[0]
	if comp.Transport != "static" || comp.Tier != "stable" || comp.TimeoutBudget != 500*time.Millisecond {
		t.Errorf("unexpected component defaults: %+v", comp)
	}
}

func TestParse_Components(t *testing.T) {
	content := `
components:
  - name: mcts
    tier: advanced
    category: search
    type: tree
    priority: 70
    timeout_budget: 250ms
    cpu: 40
    memory_mb: 128
    capabilities: [move, eval]
`
	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	got, err := cfg.Components[0].Descriptor()
	if err != nil {
		t.Fatalf("Descriptor failed: %v", err)
	}
	want := domain.Descriptor{
		Name:          "mcts",
		Tier:          domain.TierAdvanced,
		Category:      "search",
		Type:          "tree",
		Priority:      70,
		TimeoutBudget: 250 * time.Millisecond,
		ResourceCost:  domain.ResourceCost{CPUPercent: 40, MemoryMB: 128},
		Capabilities:  []string{"move", "eval"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown tier", "components:\n  - name: a\n    tier: legendary\n"},
		{"duplicate component", "components:\n  - name: a\n  - name: a\n"},
		{"http without endpoint", "components:\n  - name: a\n    transport: http\n"},
		{"redis cache without url", "cache:\n  backend: redis\n"},
		{"prometheus without url", "resource:\n  source: prometheus\n"},
		{"bad chain tier", "fallback:\n  chains:\n    gold: [cached]\n"},
		{"bad policy level", "resource:\n  policies:\n    - level: panic\n"},
		{"thresholds out of order", "health:\n  healthy_threshold: 0.5\n  degraded_threshold: 0.7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
