package resource

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a request rate limiter whose rate follows the throttle
// reduction factor.
type AdaptiveLimiter struct {
	mu                sync.RWMutex
	BaseLimit         float64
	factor            float64
	underlyingLimiter *rate.Limiter
}

// NewAdaptiveLimiter creates a limiter admitting baseLimit requests per second.
func NewAdaptiveLimiter(baseLimit float64, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = max(1, int(baseLimit))
	}
	return &AdaptiveLimiter{
		BaseLimit:         baseLimit,
		factor:            1.0,
		underlyingLimiter: rate.NewLimiter(rate.Limit(baseLimit), burst),
	}
}

// Allow reports whether a request may proceed now.
func (l *AdaptiveLimiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.underlyingLimiter.Allow()
}

// Wait blocks until a request may proceed or ctx is done.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	lim := l.underlyingLimiter
	l.mu.RUnlock()

	return lim.Wait(ctx)
}

// UpdateFactor scales the rate to BaseLimit * factor.
func (l *AdaptiveLimiter) UpdateFactor(factor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.factor = factor
	l.underlyingLimiter.SetLimit(rate.Limit(l.BaseLimit * factor))
}

// Limit returns the effective requests per second.
func (l *AdaptiveLimiter) Limit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return float64(l.underlyingLimiter.Limit())
}
