package health

import (
	"testing"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

func testBreaker() *Breaker {
	return NewBreaker(BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
	})
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)

	b.OnFailure(now)
	b.OnFailure(now)
	if got := b.State(now); got != domain.CircuitClosed {
		t.Fatalf("state after 2 failures = %s, want closed", got)
	}

	b.OnFailure(now)
	if got := b.State(now); got != domain.CircuitOpen {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}
	if b.TryAcquire(now.Add(5 * time.Second)) {
		t.Error("open breaker admitted an attempt before recovery timeout")
	}
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)

	b.OnFailure(now)
	b.OnFailure(now)
	b.OnSuccess(now)
	b.OnFailure(now)
	if got := b.State(now); got != domain.CircuitClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestBreaker_OpenIgnoresOutcomes(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		b.OnFailure(now)
	}

	b.OnSuccess(now.Add(time.Second))
	b.OnSuccess(now.Add(2 * time.Second))
	if got := b.State(now.Add(3 * time.Second)); got != domain.CircuitOpen {
		t.Errorf("state = %s, want open", got)
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		b.OnFailure(now)
	}

	later := now.Add(10 * time.Second)
	if got := b.State(later); got != domain.CircuitHalfOpen {
		t.Fatalf("state = %s, want half_open", got)
	}
	if !b.Allows(later) {
		t.Error("Allows should be true before the trial is taken")
	}
	if !b.TryAcquire(later) {
		t.Fatal("first trial should be admitted")
	}
	if b.TryAcquire(later) || b.Allows(later) {
		t.Error("second concurrent trial must be rejected")
	}

	b.Release()
	if !b.TryAcquire(later) {
		t.Error("released slot should be reusable")
	}
}

func TestBreaker_OutcomeWithoutReleaseKeepsTrial(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		b.OnFailure(now)
	}
	later := now.Add(10 * time.Second)

	if !b.TryAcquire(later) {
		t.Fatal("first trial should be admitted")
	}
	// a background health check reports success while the trial runs
	b.OnSuccess(later)
	if b.TryAcquire(later) || b.Allows(later) {
		t.Fatal("success from another source freed the trial slot")
	}

	b.Release()
	if !b.TryAcquire(later) {
		t.Error("slot should be free after Release")
	}
}

func TestBreaker_HalfOpenCloses(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		b.OnFailure(now)
	}
	later := now.Add(11 * time.Second)

	b.TryAcquire(later)
	b.OnSuccess(later)
	b.Release()
	if got := b.State(later); got != domain.CircuitHalfOpen {
		t.Fatalf("state after 1 success = %s, want half_open", got)
	}

	b.TryAcquire(later)
	b.OnSuccess(later)
	b.Release()
	if got := b.State(later); got != domain.CircuitClosed {
		t.Fatalf("state after 2 successes = %s, want closed", got)
	}
	if b.ConsecutiveFailures() != 0 {
		t.Errorf("failures = %d, want 0", b.ConsecutiveFailures())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := testBreaker()
	now := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		b.OnFailure(now)
	}
	later := now.Add(10 * time.Second)

	b.TryAcquire(later)
	b.OnSuccess(later)
	b.TryAcquire(later)
	b.OnFailure(later)

	if got := b.State(later); got != domain.CircuitOpen {
		t.Fatalf("state = %s, want open", got)
	}
	if !b.OpenedAt().Equal(later) {
		t.Errorf("openedAt = %v, want %v", b.OpenedAt(), later)
	}
	if b.Allows(later.Add(9 * time.Second)) {
		t.Error("reopened breaker must wait a full recovery timeout")
	}
}
