package component

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for remote components.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    10 * time.Millisecond,
	MaxDelay:        200 * time.Millisecond,
	BackoffMultiple: 2.0,
}

// Retrying re-executes a component with exponential backoff while the
// request deadline leaves room for another attempt.
type Retrying struct {
	inner domain.Component
	cfg   RetryConfig
}

// WithRetry wraps c.
func WithRetry(c domain.Component, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiple < 1 {
		cfg.BackoffMultiple = 1
	}
	return &Retrying{inner: c, cfg: cfg}
}

func (r *Retrying) Execute(ctx context.Context, req *domain.Request) (any, error) {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		decision, err := r.inner.Execute(ctx, req)
		if err == nil {
			return decision, nil
		}
		lastErr = err

		if !transient(err) || attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, r.cfg)
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= delay {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if r.cfg.MaxAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("after retries: %w", lastErr)
}

func (r *Retrying) HealthCheck(ctx context.Context) (domain.HealthCheckResult, error) {
	return r.inner.HealthCheck(ctx)
}

func (r *Retrying) Initialize(ctx context.Context) error {
	if i, ok := r.inner.(domain.Initializer); ok {
		return i.Initialize(ctx)
	}
	return nil
}

func (r *Retrying) Cleanup(ctx context.Context) error {
	if c, ok := r.inner.(domain.Cleaner); ok {
		return c.Cleanup(ctx)
	}
	return nil
}

// transient reports whether another attempt could succeed. Pressure and
// cancellation are left to the fallback chain.
func transient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrResourceExhausted):
		return false
	default:
		return true
	}
}

func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiple, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
