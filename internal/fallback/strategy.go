// Package fallback turns component failures into degraded but guaranteed
// responses.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/registry"
)

// Outcome is a successful attempt.
type Outcome struct {
	Decision  any
	Component string
	Type      string
}

// Executor runs the guarded selection and execution path. The orchestrator
// implements it so fallback hops go through the same breaker, admission and
// timeout handling as primary attempts.
type Executor interface {
	Attempt(ctx context.Context, req *domain.Request, criteria registry.Criteria) (*Outcome, error)
}

// ComponentFailure is returned by an Executor when a specific component
// was tried and failed.
type ComponentFailure struct {
	Component string
	Type      string
	Err       error
}

func (e *ComponentFailure) Error() string {
	return fmt.Sprintf("component %s: %v", e.Component, e.Err)
}

func (e *ComponentFailure) Unwrap() error {
	return e.Err
}

// HopError records one failed fallback hop.
type HopError struct {
	Strategy string
	Depth    int
	Err      error
}

func (e *HopError) Error() string {
	return fmt.Sprintf("%s (depth %d): %v", e.Strategy, e.Depth, e.Err)
}

func (e *HopError) Unwrap() error {
	return e.Err
}

// Attempt is the state a strategy sees for one hop.
type Attempt struct {
	// Request carries the tier currently being tried and the remaining
	// time as its limit.
	Request  *domain.Request
	Err      error
	Depth    int
	Deadline time.Time
	Failed   []string
	Executor Executor
	Cache    Cache
	now      func() time.Time
}

// Remaining is the time left before the request deadline.
func (a *Attempt) Remaining() time.Duration {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	return a.Deadline.Sub(now())
}

// bound limits ctx to the request deadline.
func (a *Attempt) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.Deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, a.Deadline)
}

// lastFailure returns the most recent component failure, if any.
func (a *Attempt) lastFailure() (*ComponentFailure, bool) {
	var cf *ComponentFailure
	if errors.As(a.Err, &cf) {
		return cf, true
	}
	return nil, false
}

// Strategy is one link of a fallback chain.
type Strategy interface {
	Name() string

	// QualityScore is the relative decision quality in [0,1].
	QualityScore() float64

	// Reliability is the chance the strategy produces a decision at all.
	Reliability() float64

	// Degradation is the quality loss charged when this strategy answers.
	Degradation() float64

	// CanHandle reports whether the strategy applies. ctx bounds any lookup
	// it needs to decide.
	CanHandle(ctx context.Context, err error, req *domain.Request, a *Attempt) bool
	Execute(ctx context.Context, a *Attempt) (*Outcome, error)
}
