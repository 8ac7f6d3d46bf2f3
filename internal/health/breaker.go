package health

import (
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// BreakerConfig holds the circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

// Breaker is a per-component circuit breaker. It is not safe for concurrent
// use; the Monitor serialises access.
type Breaker struct {
	cfg                  BreakerConfig
	state                domain.CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	trialInFlight        bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, state: domain.CircuitClosed}
}

// State returns the breaker position, moving Open to HalfOpen once the
// recovery timeout has elapsed.
func (b *Breaker) State(now time.Time) domain.CircuitState {
	b.refresh(now)
	return b.state
}

func (b *Breaker) refresh(now time.Time) {
	if b.state == domain.CircuitOpen && now.Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = domain.CircuitHalfOpen
		b.consecutiveSuccesses = 0
		b.trialInFlight = false
	}
}

// Allows reports whether an attempt would be admitted without taking the
// half-open trial slot.
func (b *Breaker) Allows(now time.Time) bool {
	switch b.State(now) {
	case domain.CircuitClosed:
		return true
	case domain.CircuitHalfOpen:
		return !b.trialInFlight
	default:
		return false
	}
}

// TryAcquire admits one attempt. In HalfOpen only a single trial may be in
// flight until its outcome is recorded or it is released.
func (b *Breaker) TryAcquire(now time.Time) bool {
	switch b.State(now) {
	case domain.CircuitClosed:
		return true
	case domain.CircuitHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// Release frees the trial slot without recording an outcome.
func (b *Breaker) Release() {
	b.trialInFlight = false
}

// OnSuccess records a successful outcome. It leaves the half-open trial slot
// alone; only the trial holder frees it through Release.
func (b *Breaker) OnSuccess(now time.Time) {
	switch b.State(now) {
	case domain.CircuitClosed:
		b.consecutiveFailures = 0
		b.consecutiveSuccesses++
	case domain.CircuitHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.state = domain.CircuitClosed
			b.consecutiveFailures = 0
			b.openedAt = time.Time{}
		}
	}
	// Open ignores outcomes until the recovery timeout elapses.
}

// OnFailure records a failed outcome.
func (b *Breaker) OnFailure(now time.Time) {
	switch b.State(now) {
	case domain.CircuitClosed:
		b.consecutiveSuccesses = 0
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.open(now)
		}
	case domain.CircuitHalfOpen:
		b.consecutiveFailures++
		b.open(now)
	}
}

func (b *Breaker) open(now time.Time) {
	b.state = domain.CircuitOpen
	b.openedAt = now
	b.consecutiveSuccesses = 0
	b.trialInFlight = false
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int { return b.consecutiveFailures }

// ConsecutiveSuccesses returns the current success streak.
func (b *Breaker) ConsecutiveSuccesses() int { return b.consecutiveSuccesses }

// OpenedAt returns when the breaker last opened.
func (b *Breaker) OpenedAt() time.Time { return b.openedAt }
