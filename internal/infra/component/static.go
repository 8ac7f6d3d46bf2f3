package component

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

var errSimulatedFailure = errors.New("simulated failure")

// Static simulates a model: it waits latency, fails with probability
// failureRate and otherwise returns a fixed decision.
type Static struct {
	name        string
	latency     time.Duration
	failureRate float64
	decision    any

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewStatic creates a simulated component.
func NewStatic(name string, latency time.Duration, failureRate float64, decision any) *Static {
	if decision == nil {
		decision = map[string]any{"component": name}
	}
	return &Static{
		name:        name,
		latency:     latency,
		failureRate: min(max(failureRate, 0), 1),
		decision:    decision,
		rnd:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// SetFailureRate changes the simulated failure probability.
func (s *Static) SetFailureRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureRate = min(max(rate, 0), 1)
}

func (s *Static) fails() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureRate > 0 && s.rnd.Float64() < s.failureRate
}

func (s *Static) Execute(ctx context.Context, _ *domain.Request) (any, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fails() {
		return nil, errSimulatedFailure
	}
	return s.decision, nil
}

func (s *Static) HealthCheck(context.Context) (domain.HealthCheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.HealthCheckResult{Score: 1 - s.failureRate}, nil
}
