package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/registry"
)

// =============================================================================
// Mocks
// =============================================================================

type probeComponent struct {
	mu    sync.Mutex
	score float64
	err   error
	delay time.Duration
	calls int
}

func (p *probeComponent) Execute(context.Context, *domain.Request) (any, error) { return nil, nil }

func (p *probeComponent) HealthCheck(ctx context.Context) (domain.HealthCheckResult, error) {
	p.mu.Lock()
	p.calls++
	score, err, delay := p.score, p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.HealthCheckResult{}, ctx.Err()
		}
	}
	return domain.HealthCheckResult{Score: score}, err
}

func (p *probeComponent) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T, comps map[string]*probeComponent) (*Monitor, *registry.Registry, *recorder, *clock) {
	t.Helper()

	reg := registry.New(nil, nil)
	for name, c := range comps {
		d := domain.Descriptor{Name: name, Tier: domain.TierStable, TimeoutBudget: 200 * time.Millisecond}
		if err := reg.Register(context.Background(), d, c); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	cfg := DefaultConfig()
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.Breaker.RecoveryTimeout = 10 * time.Second

	rec := &recorder{}
	clk := &clock{now: time.Unix(1000, 0)}
	m := NewMonitor(cfg, reg, rec, nil)
	m.now = clk.Now
	reg.SetHealthView(m)
	return m, reg, rec, clk
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_UnknownComponentIsOptimistic(t *testing.T) {
	m, _, _, _ := setup(t, nil)

	if _, ok := m.Health("ghost"); ok {
		t.Error("unknown component should have no record")
	}
	if !m.Allows("ghost") {
		t.Error("unknown component should be allowed")
	}
}

func TestMonitor_ScoreAndStatus(t *testing.T) {
	m, _, _, _ := setup(t, nil)

	m.RecordOutcome("a", 10*time.Millisecond, nil)
	rec, _ := m.Health("a")
	if rec.Status != domain.HealthHealthy || rec.Score != 1 {
		t.Fatalf("after success: %+v", rec)
	}

	// padded window of 5: (1+0+1+1+1)/5 = 0.8
	m.RecordOutcome("a", 10*time.Millisecond, errors.New("boom"))
	rec, _ = m.Health("a")
	if rec.Score != 0.8 || rec.Status != domain.HealthHealthy {
		t.Fatalf("after one failure: score=%v status=%s", rec.Score, rec.Status)
	}

	m.RecordOutcome("a", 10*time.Millisecond, errors.New("boom"))
	m.RecordOutcome("a", 10*time.Millisecond, errors.New("boom"))
	m.RecordOutcome("a", 10*time.Millisecond, errors.New("boom"))
	rec, _ = m.Health("a")
	if rec.Status != domain.HealthOffline {
		t.Errorf("status = %s (score %v), want offline", rec.Status, rec.Score)
	}
	if rec.SuccessRate != 0.2 || rec.Samples != 5 {
		t.Errorf("success rate = %v samples = %d", rec.SuccessRate, rec.Samples)
	}
}

func TestMonitor_WindowEvictsOldest(t *testing.T) {
	m, _, _, _ := setup(t, nil)
	m.cfg.WindowSize = 3

	m.RecordOutcome("a", time.Millisecond, errors.New("old"))
	for i := 0; i < 3; i++ {
		m.RecordOutcome("a", time.Millisecond, nil)
	}
	rec, _ := m.Record("a")
	if len(rec.Window) != 3 {
		t.Fatalf("window len = %d, want 3", len(rec.Window))
	}
	for _, s := range rec.Window {
		if !s.Success {
			t.Error("oldest failed sample should have been evicted")
		}
	}
}

func TestMonitor_BreakerLifecycle(t *testing.T) {
	m, _, rec, clk := setup(t, nil)
	fail := errors.New("boom")

	for i := 0; i < 3; i++ {
		if !m.TryAcquire("a") {
			t.Fatalf("attempt %d rejected while closed", i)
		}
		m.RecordOutcome("a", time.Millisecond, fail)
	}

	if m.Allows("a") || m.TryAcquire("a") {
		t.Fatal("open breaker admitted an attempt")
	}
	if got, _ := m.Health("a"); got.Circuit != domain.CircuitOpen {
		t.Fatalf("circuit = %s, want open", got.Circuit)
	}

	clk.Advance(10 * time.Second)
	if !m.TryAcquire("a") {
		t.Fatal("first half-open trial rejected")
	}
	if m.TryAcquire("a") {
		t.Fatal("second half-open trial admitted")
	}

	m.RecordOutcome("a", time.Millisecond, nil)
	if !m.TryAcquire("a") {
		t.Fatal("trial slot not released by outcome")
	}
	m.RecordOutcome("a", time.Millisecond, nil)

	if got, _ := m.Health("a"); got.Circuit != domain.CircuitClosed {
		t.Errorf("circuit = %s, want closed", got.Circuit)
	}
	// closed -> open -> half_open -> closed
	if n := rec.count(domain.EventCircuitStateChanged); n != 3 {
		t.Errorf("state change events = %d, want 3", n)
	}
}

func TestMonitor_HealthCheckDuringTrialKeepsSlot(t *testing.T) {
	comp := &probeComponent{score: 1}
	m, _, _, clk := setup(t, map[string]*probeComponent{"a": comp})
	fail := errors.New("boom")

	for i := 0; i < 3; i++ {
		m.RecordOutcome("a", time.Millisecond, fail)
	}
	clk.Advance(11 * time.Second)

	if !m.TryAcquire("a") {
		t.Fatal("first half-open trial rejected")
	}
	if err := m.Probe(context.Background(), "a"); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if m.TryAcquire("a") {
		t.Fatal("second concurrent trial admitted while first still in flight")
	}

	m.RecordOutcome("a", time.Millisecond, nil)
	if got, _ := m.Health("a"); got.Circuit != domain.CircuitClosed {
		t.Errorf("circuit = %s, want closed after two successes", got.Circuit)
	}
	if !m.TryAcquire("a") {
		t.Error("closed breaker rejected an attempt")
	}
}

func TestMonitor_ProbeRecordsScore(t *testing.T) {
	comp := &probeComponent{score: 0.5}
	m, _, _, _ := setup(t, map[string]*probeComponent{"a": comp})

	if err := m.Probe(context.Background(), "a"); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	rec, ok := m.Record("a")
	if !ok || len(rec.Window) != 1 {
		t.Fatalf("record = %+v", rec)
	}
	if s := rec.Window[0]; s.Source != domain.SourceProbe || s.Score != 0.5 || !s.Success {
		t.Errorf("sample = %+v", s)
	}

	if err := m.Probe(context.Background(), "missing"); !errors.Is(err, domain.ErrComponentNotFound) {
		t.Errorf("expected ErrComponentNotFound, got %v", err)
	}
}

func TestMonitor_ProbeTimeoutIsFailure(t *testing.T) {
	// budget 200ms -> probe timeout 100ms
	comp := &probeComponent{score: 1, delay: time.Second}
	m, _, _, _ := setup(t, map[string]*probeComponent{"slow": comp})

	start := time.Now()
	err := m.Probe(context.Background(), "slow")
	if err == nil {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("probe took %v, want bounded by half the budget", elapsed)
	}
	rec, _ := m.Health("slow")
	if rec.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", rec.ConsecutiveFailures)
	}
}

func TestMonitor_RunProbesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	comp := &probeComponent{score: 0.9}
	m, _, _, _ := setup(t, map[string]*probeComponent{"a": comp, "b": {score: 1}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for comp.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if comp.Calls() < 2 {
		t.Errorf("probe calls = %d, want >= 2", comp.Calls())
	}
	if len(m.Snapshot()) != 2 {
		t.Errorf("snapshot = %+v", m.Snapshot())
	}
}

func TestMonitor_RegistryExcludesOpenCircuit(t *testing.T) {
	m, reg, _, _ := setup(t, map[string]*probeComponent{"a": {score: 1}, "b": {score: 1}})

	for i := 0; i < 3; i++ {
		m.RecordOutcome("a", time.Millisecond, errors.New("boom"))
	}

	got, err := reg.SelectBest(registry.Criteria{Tier: domain.TierStable})
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if got.Descriptor.Name != "b" {
		t.Errorf("selected %s, want b", got.Descriptor.Name)
	}

	m.Forget("a")
	if _, ok := m.Health("a"); ok {
		t.Error("Forget should drop the record")
	}
}
