package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/fallback"
	"github.com/vietddude/stability/internal/health"
	"github.com/vietddude/stability/internal/registry"
	"github.com/vietddude/stability/internal/resource"
)

// =============================================================================
// Mocks
// =============================================================================

type stubComponent struct {
	decision any
	err      error
	delay    time.Duration
	panics   bool
	offline  bool
	calls    atomic.Int32
}

func (s *stubComponent) Execute(ctx context.Context, _ *domain.Request) (any, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.decision, s.err
}

func (s *stubComponent) HealthCheck(context.Context) (domain.HealthCheckResult, error) {
	if s.offline {
		return domain.HealthCheckResult{Status: domain.HealthOffline}, nil
	}
	return domain.HealthCheckResult{Score: 1}, nil
}

type harness struct {
	manager *Manager
	sampler *resource.StaticSampler
	cache   *fallback.MemoryCache
}

func newHarness(t *testing.T, limiter *resource.AdaptiveLimiter) *harness {
	t.Helper()

	reg := registry.New(nil, nil)
	monitor := health.NewMonitor(health.DefaultConfig(), reg, nil, nil)
	reg.SetHealthView(monitor)

	sampler := resource.NewStaticSampler(10, 10)
	resources, err := resource.NewManager(resource.DefaultConfig(), sampler, nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cache := fallback.NewMemoryCache(time.Minute, 100)
	fb, err := fallback.New(fallback.DefaultConfig(), cache, nil, nil)
	if err != nil {
		t.Fatalf("fallback.New failed: %v", err)
	}

	m := NewManager(DefaultConfig(), reg, monitor, resources, fb, limiter, nil, nil)
	return &harness{manager: m, sampler: sampler, cache: cache}
}

func (h *harness) register(t *testing.T, name string, tier domain.Tier, comp domain.Component) {
	t.Helper()
	desc := domain.Descriptor{
		Name:          name,
		Tier:          tier,
		Type:          name + "-type",
		Priority:      50,
		TimeoutBudget: 200 * time.Millisecond,
	}
	if err := h.manager.Register(context.Background(), desc, comp); err != nil {
		t.Fatalf("Register(%s) failed: %v", name, err)
	}
}

func newRequest(payload string) *domain.Request {
	return domain.NewRequest("route", map[string]any{"q": payload}, time.Second)
}

// =============================================================================
// Tests
// =============================================================================

func TestHandle_PrimarySuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "planner", domain.TierCritical, &stubComponent{decision: "go"})

	req := newRequest("a")
	resp := h.manager.Handle(context.Background(), req)

	if resp.Strategy != StrategyPrimary {
		t.Fatalf("expected primary strategy, got %s (errors: %v)", resp.Strategy, resp.Errors)
	}
	if resp.ProducedBy != "planner" || resp.Decision != "go" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.FallbackDepth != 0 || resp.QualityDegradation != 0 {
		t.Errorf("expected no degradation, got depth=%d quality=%v", resp.FallbackDepth, resp.QualityDegradation)
	}
	if resp.RequestID != req.ID {
		t.Errorf("expected request id %s, got %s", req.ID, resp.RequestID)
	}
	if _, ok := h.cache.Get(context.Background(), req.CacheKey()); !ok {
		t.Error("expected primary response to be cached")
	}
}

func TestHandle_NormalizesRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "planner", domain.TierCritical, &stubComponent{decision: "go"})

	resp := h.manager.Handle(context.Background(), &domain.Request{Kind: "route"})

	if resp.RequestID == "" {
		t.Error("expected generated request id")
	}
	if resp.Strategy != StrategyPrimary {
		t.Errorf("expected primary strategy, got %s", resp.Strategy)
	}
}

func TestHandle_OpenCircuitRoutesToNextTier(t *testing.T) {
	h := newHarness(t, nil)
	failing := &stubComponent{err: errors.New("model crashed")}
	h.register(t, "critical-planner", domain.TierCritical, failing)
	h.register(t, "stable-planner", domain.TierStable, &stubComponent{decision: "stable"})

	for i := range 3 {
		h.manager.Handle(context.Background(), newRequest(string(rune('a'+i))))
	}

	rec, ok := h.manager.Monitor().Health("critical-planner")
	if !ok || rec.Circuit != domain.CircuitOpen {
		t.Fatalf("expected open circuit after 3 failures, got %+v", rec)
	}

	resp := h.manager.Handle(context.Background(), newRequest("z"))

	if resp.Strategy != fallback.StrategyTierDegradation {
		t.Fatalf("expected tier-degradation, got %s (errors: %v)", resp.Strategy, resp.Errors)
	}
	if resp.ProducedBy != "stable-planner" {
		t.Errorf("expected stable-planner, got %s", resp.ProducedBy)
	}
	if resp.FallbackDepth != 1 {
		t.Errorf("expected depth 1, got %d", resp.FallbackDepth)
	}
	if resp.QualityDegradation < 0.2-1e-9 || resp.QualityDegradation > 0.2+1e-9 {
		t.Errorf("expected degradation 0.2, got %v", resp.QualityDegradation)
	}
	if got := failing.calls.Load(); got != 3 {
		t.Errorf("expected open breaker to stop calls at 3, got %d", got)
	}
}

func TestHandle_NothingAvailableEndsInEmergency(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.manager.Handle(context.Background(), newRequest("a"))

	if resp.Strategy != fallback.StrategyEmergency {
		t.Fatalf("expected emergency, got %s", resp.Strategy)
	}
	if resp.FallbackDepth != h.manager.Fallback().MaxDepth() {
		t.Errorf("expected depth %d, got %d", h.manager.Fallback().MaxDepth(), resp.FallbackDepth)
	}
	if resp.Decision == nil {
		t.Error("expected an emergency decision")
	}
	if len(resp.Errors) == 0 {
		t.Error("expected the failure trail on the response")
	}
}

func TestHandle_AllOfflineEndsInEmergency(t *testing.T) {
	h := newHarness(t, nil)
	comps := make(map[string]*stubComponent, len(domain.Tiers))
	for _, tier := range domain.Tiers {
		name := tier.String() + "-planner"
		comps[name] = &stubComponent{decision: "unreachable", offline: true}
		h.register(t, name, tier, comps[name])
	}

	for range health.DefaultConfig().MinSamples {
		h.manager.Monitor().ProbeAll(context.Background())
	}
	for name := range comps {
		rec, ok := h.manager.Monitor().Health(name)
		if !ok || rec.Status != domain.HealthOffline {
			t.Fatalf("%s: expected offline, got %+v", name, rec)
		}
	}

	resp := h.manager.Handle(context.Background(), newRequest("a"))

	if resp.Strategy != fallback.StrategyEmergency {
		t.Fatalf("expected emergency, got %s (errors: %v)", resp.Strategy, resp.Errors)
	}
	if resp.FallbackDepth != h.manager.Fallback().MaxDepth() {
		t.Errorf("expected depth %d, got %d", h.manager.Fallback().MaxDepth(), resp.FallbackDepth)
	}
	if want := h.manager.Fallback().EmergencyDegradation(); resp.QualityDegradation != want {
		t.Errorf("expected degradation %v, got %v", want, resp.QualityDegradation)
	}
	for name, c := range comps {
		if n := c.calls.Load(); n != 0 {
			t.Errorf("offline %s executed %d times", name, n)
		}
	}
}

func TestHandle_HangingComponentsStayWithinLimit(t *testing.T) {
	h := newHarness(t, nil)
	for _, tier := range domain.Tiers {
		h.register(t, tier.String()+"-stuck", tier, &stubComponent{delay: 10 * time.Second})
	}

	limit := 300 * time.Millisecond
	req := domain.NewRequest("route", map[string]any{"q": "hang"}, limit)

	start := time.Now()
	resp := h.manager.Handle(context.Background(), req)
	elapsed := time.Since(start)

	if elapsed > limit+200*time.Millisecond {
		t.Errorf("Handle took %v with a %v limit", elapsed, limit)
	}
	if resp == nil || resp.Decision == nil {
		t.Fatalf("expected a decision, got %+v", resp)
	}
	if !resp.Degraded() {
		t.Errorf("expected a degraded response, got %+v", resp)
	}
}

func TestHandle_RateLimitedUsesSimplified(t *testing.T) {
	limiter := resource.NewAdaptiveLimiter(0.001, 1)
	h := newHarness(t, limiter)
	h.register(t, "planner", domain.TierCritical, &stubComponent{decision: "go"})

	first := h.manager.Handle(context.Background(), newRequest("a"))
	if first.Strategy != StrategyPrimary {
		t.Fatalf("expected first request to pass, got %s", first.Strategy)
	}

	second := h.manager.Handle(context.Background(), newRequest("b"))
	if second.Strategy != fallback.StrategySimplified {
		t.Fatalf("expected simplified, got %s (errors: %v)", second.Strategy, second.Errors)
	}
}

func TestAttempt_Timeout(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "slow", domain.TierCritical, &stubComponent{delay: time.Second})

	_, err := h.manager.Attempt(context.Background(), newRequest("a"), registry.Criteria{Tier: domain.TierCritical})

	if !errors.Is(err, domain.ErrComponentTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	var cf *fallback.ComponentFailure
	if !errors.As(err, &cf) || cf.Component != "slow" {
		t.Errorf("expected component failure for slow, got %v", err)
	}
	rec, ok := h.manager.Monitor().Health("slow")
	if !ok || rec.ConsecutiveFailures != 1 {
		t.Errorf("expected one recorded failure, got %+v", rec)
	}
}

func TestAttempt_PanicIsComponentError(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "crashy", domain.TierCritical, &stubComponent{panics: true})

	_, err := h.manager.Attempt(context.Background(), newRequest("a"), registry.Criteria{Tier: domain.TierCritical})

	if !errors.Is(err, domain.ErrComponentError) {
		t.Fatalf("expected component error, got %v", err)
	}
}

func TestAttempt_AdmissionRejected(t *testing.T) {
	h := newHarness(t, nil)
	desc := domain.Descriptor{
		Name:          "hungry",
		Tier:          domain.TierCritical,
		Priority:      50,
		TimeoutBudget: 100 * time.Millisecond,
		ResourceCost:  domain.ResourceCost{CPUPercent: 400},
	}
	comp := &stubComponent{decision: "go"}
	if err := h.manager.Register(context.Background(), desc, comp); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	h.sampler.Set(70, 10)
	if _, err := h.manager.Resources().SampleCurrent(context.Background()); err != nil {
		t.Fatalf("SampleCurrent failed: %v", err)
	}

	_, err := h.manager.Attempt(context.Background(), newRequest("a"), registry.Criteria{Tier: domain.TierCritical})

	if !errors.Is(err, domain.ErrResourceExhausted) {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
	if comp.calls.Load() != 0 {
		t.Error("rejected component must not run")
	}
	if _, ok := h.manager.Monitor().Health("hungry"); ok {
		t.Error("admission rejection must not touch health")
	}
}

func TestAttempt_CallerCancelNotRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "slow", domain.TierCritical, &stubComponent{delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := h.manager.Attempt(ctx, newRequest("a"), registry.Criteria{Tier: domain.TierCritical})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	rec, _ := h.manager.Monitor().Health("slow")
	if rec.ConsecutiveFailures != 0 {
		t.Errorf("cancellation must not count as failure, got %d", rec.ConsecutiveFailures)
	}
}

func TestPrune_ForgetsUnregistered(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "planner", domain.TierCritical, &stubComponent{decision: "go"})
	h.manager.Handle(context.Background(), newRequest("a"))

	if err := h.manager.Registry().Unregister(context.Background(), "planner"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if _, ok := h.manager.Monitor().Health("planner"); !ok {
		t.Fatal("expected stale health record before prune")
	}

	h.manager.Prune(context.Background())

	if _, ok := h.manager.Monitor().Health("planner"); ok {
		t.Error("expected health record dropped by prune")
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, nil)
	s := NewScheduler(h.manager, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
