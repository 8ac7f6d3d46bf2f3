package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/registry"
)

// Strategy names usable in chain configuration.
const (
	StrategyCached          = "cached"
	StrategyAlgorithmSwitch = "algorithm-switch"
	StrategySimplified      = "simplified"
	StrategyTierDegradation = "tier-degradation"
	StrategyEmergency       = "emergency"
)

// Cached answers with a recent response to an equivalent request.
type Cached struct {
	degradation float64
}

func NewCached(degradation float64) *Cached {
	return &Cached{degradation: degradation}
}

func (s *Cached) Name() string          { return StrategyCached }
func (s *Cached) QualityScore() float64 { return 1 - s.degradation }
func (s *Cached) Reliability() float64  { return 0.95 }
func (s *Cached) Degradation() float64  { return s.degradation }

func (s *Cached) CanHandle(ctx context.Context, _ error, req *domain.Request, a *Attempt) bool {
	if a.Cache == nil {
		return false
	}
	key := req.CacheKey()
	if key == "" {
		return false
	}
	ctx, cancel := a.bound(ctx)
	defer cancel()
	_, ok := a.Cache.Get(ctx, key)
	return ok
}

func (s *Cached) Execute(ctx context.Context, a *Attempt) (*Outcome, error) {
	key := a.Request.CacheKey()
	if key == "" {
		return nil, fmt.Errorf("request payload has no cache key")
	}
	ctx, cancel := a.bound(ctx)
	defer cancel()
	resp, ok := a.Cache.Get(ctx, key)
	if !ok {
		return nil, fmt.Errorf("cache entry expired")
	}
	return &Outcome{Decision: resp.Decision, Component: resp.ProducedBy}, nil
}

// AlgorithmSwitch retries the same tier with a component of a different
// type than the one that failed.
type AlgorithmSwitch struct {
	degradation    float64
	minAttemptTime time.Duration
}

func NewAlgorithmSwitch(degradation float64, minAttemptTime time.Duration) *AlgorithmSwitch {
	return &AlgorithmSwitch{degradation: degradation, minAttemptTime: minAttemptTime}
}

func (s *AlgorithmSwitch) Name() string          { return StrategyAlgorithmSwitch }
func (s *AlgorithmSwitch) QualityScore() float64 { return 1 - s.degradation }
func (s *AlgorithmSwitch) Reliability() float64  { return 0.8 }
func (s *AlgorithmSwitch) Degradation() float64  { return s.degradation }

func (s *AlgorithmSwitch) CanHandle(_ context.Context, err error, _ *domain.Request, a *Attempt) bool {
	if a.Executor == nil || a.Remaining() < s.minAttemptTime {
		return false
	}
	if errors.Is(err, domain.ErrNoComponentAvailable) {
		return false
	}
	_, known := a.lastFailure()
	return known
}

func (s *AlgorithmSwitch) Execute(ctx context.Context, a *Attempt) (*Outcome, error) {
	failed, _ := a.lastFailure()
	return a.Executor.Attempt(ctx, a.Request, registry.Criteria{
		Tier:                 a.Request.Tier,
		Category:             a.Request.Category,
		RequiredCapabilities: a.Request.RequiredCapabilities,
		ExcludeNames:         a.Failed,
		ExcludeType:          failed.Type,
	})
}

// DecideFunc produces an in-process decision without touching components.
type DecideFunc func(req *domain.Request) (any, error)

// Simplified answers with a cheap built-in decision when resources or time
// are too short for a component.
type Simplified struct {
	degradation    float64
	minAttemptTime time.Duration
	decide         DecideFunc
}

func NewSimplified(degradation float64, minAttemptTime time.Duration, decide DecideFunc) *Simplified {
	if decide == nil {
		decide = simplifiedDecision
	}
	return &Simplified{degradation: degradation, minAttemptTime: minAttemptTime, decide: decide}
}

func simplifiedDecision(req *domain.Request) (any, error) {
	return map[string]any{
		"kind":     req.Kind,
		"action":   "simplified",
		"strategy": StrategySimplified,
	}, nil
}

func (s *Simplified) Name() string          { return StrategySimplified }
func (s *Simplified) QualityScore() float64 { return 1 - s.degradation }
func (s *Simplified) Reliability() float64  { return 0.99 }
func (s *Simplified) Degradation() float64  { return s.degradation }

func (s *Simplified) CanHandle(_ context.Context, err error, _ *domain.Request, a *Attempt) bool {
	return errors.Is(err, domain.ErrResourceExhausted) || a.Remaining() < s.minAttemptTime
}

func (s *Simplified) Execute(_ context.Context, a *Attempt) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplified decision panic: %v", r)
		}
	}()
	decision, err := s.decide(a.Request)
	if err != nil {
		return nil, err
	}
	return &Outcome{Decision: decision, Component: StrategySimplified}, nil
}
