package domain

import (
	"math"
	"testing"
	"time"
)

func TestTierNext(t *testing.T) {
	tests := []struct {
		from Tier
		want Tier
		ok   bool
	}{
		{TierCritical, TierStable, true},
		{TierStable, TierAdvanced, true},
		{TierExperimental, TierResearch, true},
		{TierResearch, TierResearch, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			got, ok := tt.from.Next()
			if ok != tt.ok || got != tt.want {
				t.Errorf("Next() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		got, err := ParseTier(" " + tier.String())
		if err != nil {
			t.Fatalf("ParseTier(%q): %v", tier.String(), err)
		}
		if got != tier {
			t.Errorf("ParseTier(%q) = %v", tier.String(), got)
		}
	}
	if _, err := ParseTier("legendary"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestRequestCacheKey(t *testing.T) {
	a := NewRequest("move", map[string]any{"x": 1, "y": 2}, time.Second)
	b := NewRequest("move", map[string]any{"y": 2, "x": 1}, 2*time.Second)
	c := NewRequest("move", map[string]any{"x": 2, "y": 2}, time.Second)

	if a.CacheKey() != b.CacheKey() {
		t.Error("equal payloads should share a cache key")
	}
	if a.CacheKey() == c.CacheKey() {
		t.Error("different payloads should not share a cache key")
	}
}

func TestRequestCacheKey_UnencodablePayload(t *testing.T) {
	a := NewRequest("move", map[string]any{"x": math.NaN()}, time.Second)
	b := NewRequest("move", map[string]any{"x": make(chan int)}, time.Second)

	if got := a.CacheKey(); got != "" {
		t.Errorf("NaN payload key = %q, want empty", got)
	}
	if got := b.CacheKey(); got != "" {
		t.Errorf("channel payload key = %q, want empty", got)
	}
	if NewRequest("move", nil, time.Second).CacheKey() == "" {
		t.Error("nil payload should still have a key")
	}
}

func TestRequestWithTimeLimit(t *testing.T) {
	req := NewRequest("move", nil, time.Second)
	reduced := req.WithTimeLimit(200 * time.Millisecond)

	if req.TimeLimit != time.Second {
		t.Errorf("original mutated: %v", req.TimeLimit)
	}
	if reduced.TimeLimit != 200*time.Millisecond || reduced.ID != req.ID {
		t.Errorf("unexpected copy: %+v", reduced)
	}
}
