// Package orchestrator routes requests to components and guarantees a
// response through the fallback system.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/events"
	"github.com/vietddude/stability/internal/fallback"
	"github.com/vietddude/stability/internal/health"
	"github.com/vietddude/stability/internal/metrics"
	"github.com/vietddude/stability/internal/registry"
	"github.com/vietddude/stability/internal/resource"
)

// StrategyPrimary labels responses produced by the first selected component.
const StrategyPrimary = "primary"

// Config bounds request handling.
type Config struct {
	MaxConcurrency   int64
	DefaultTimeLimit time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:   64,
		DefaultTimeLimit: time.Second,
	}
}

// Manager is the stability manager: the single entry point for requests.
type Manager struct {
	cfg       Config
	registry  *registry.Registry
	monitor   *health.Monitor
	resources *resource.Manager
	fallback  *fallback.System
	limiter   *resource.AdaptiveLimiter
	sem       *semaphore.Weighted
	events    events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewManager wires the orchestrator. limiter may be nil.
func NewManager(
	cfg Config,
	reg *registry.Registry,
	monitor *health.Monitor,
	resources *resource.Manager,
	fb *fallback.System,
	limiter *resource.AdaptiveLimiter,
	publisher events.Publisher,
	logger *slog.Logger,
) *Manager {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Manager{
		cfg:       cfg,
		registry:  reg,
		monitor:   monitor,
		resources: resources,
		fallback:  fb,
		limiter:   limiter,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrency),
		events:    publisher,
		logger:    logger,
		tracer:    otel.Tracer("github.com/vietddude/stability/orchestrator"),
		now:       time.Now,
	}
}

// Register adds a component to the registry.
func (m *Manager) Register(ctx context.Context, desc domain.Descriptor, comp domain.Component) error {
	return m.registry.Register(ctx, desc, comp)
}

// Unregister removes a component and its health state.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	if err := m.registry.Unregister(ctx, name); err != nil {
		return err
	}
	m.monitor.Forget(name)
	return nil
}

// Handle produces a response for req. It never fails: every error is
// absorbed by the fallback system and reported on the response.
func (m *Manager) Handle(ctx context.Context, req *domain.Request) *domain.Response {
	start := m.now()
	req = m.normalize(req)
	deadline := start.Add(req.TimeLimit)

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ctx, span := m.tracer.Start(ctx, "orchestrator.Handle",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("request.kind", req.Kind),
			attribute.String("request.tier", req.Tier.String()),
		),
	)
	defer span.End()

	var (
		resp *domain.Response
		err  error
		out  *fallback.Outcome
	)
	if m.limiter != nil && !m.limiter.Allow() {
		err = fmt.Errorf("request rate limited: %w", domain.ErrResourceExhausted)
	} else {
		out, err = m.Attempt(ctx, req, registry.Criteria{
			Tier:                 req.Tier,
			Category:             req.Category,
			RequiredCapabilities: req.RequiredCapabilities,
		})
	}

	if err == nil {
		resp = &domain.Response{
			RequestID:  req.ID,
			Decision:   out.Decision,
			ProducedBy: out.Component,
			Strategy:   StrategyPrimary,
		}
		m.fallback.CacheResponse(ctx, req, resp)
	} else {
		m.logger.Debug("primary attempt failed", "request_id", req.ID, "tier", req.Tier.String(), "error", err)
		resp = m.fallback.Handle(ctx, m, req, err, deadline)
	}

	resp.RequestID = req.ID
	resp.ExecutionTime = m.now().Sub(start)
	resp.ExecutionTimeMs = resp.ExecutionTime.Milliseconds()

	span.SetAttributes(
		attribute.String("response.producer", resp.ProducedBy),
		attribute.String("response.strategy", resp.Strategy),
		attribute.Int("response.fallback_depth", resp.FallbackDepth),
		attribute.Float64("response.quality_degradation", resp.QualityDegradation),
	)
	if resp.Strategy == fallback.StrategyEmergency {
		span.SetStatus(codes.Error, "emergency fallback")
	}

	metrics.RequestsTotal.WithLabelValues(req.Tier.String(), resp.Strategy).Inc()
	metrics.RequestLatency.WithLabelValues(req.Tier.String()).Observe(resp.ExecutionTime.Seconds())
	metrics.QualityDegradation.Observe(resp.QualityDegradation)
	return resp
}

func (m *Manager) normalize(req *domain.Request) *domain.Request {
	if req == nil {
		req = &domain.Request{}
	}
	cp := *req
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.TimeLimit <= 0 {
		cp.TimeLimit = m.cfg.DefaultTimeLimit
	}
	if !cp.Tier.Valid() {
		cp.Tier = domain.TierCritical
	}
	return &cp
}

// Attempt selects the best component for criteria and runs it with the
// full set of guards. It implements fallback.Executor.
func (m *Manager) Attempt(ctx context.Context, req *domain.Request, criteria registry.Criteria) (*fallback.Outcome, error) {
	entry, err := m.registry.SelectBest(criteria)
	if err != nil {
		return nil, err
	}
	d := entry.Descriptor
	fail := func(err error) (*fallback.Outcome, error) {
		return nil, &fallback.ComponentFailure{Component: d.Name, Type: d.Type, Err: err}
	}

	budget := d.TimeoutBudget
	if state := m.resources.Throttle(); state.Level() != domain.ThrottleNone {
		budget = time.Duration(float64(budget) * state.Policy.ReductionFactor)
	}

	if adm := m.resources.RequestAdmission(d.ResourceCost.CPUPercent, d.ResourceCost.MemoryMB); !adm.Allowed {
		return fail(fmt.Errorf("admission rejected (%s): %w", adm.Reason, domain.ErrResourceExhausted))
	}

	timeout := budget
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, dl.Sub(m.now()))
	}
	if timeout <= 0 {
		return fail(fmt.Errorf("no time left: %w", domain.ErrComponentTimeout))
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fail(fmt.Errorf("concurrency limit: %w", domain.ErrResourceExhausted))
	}
	defer m.sem.Release(1)

	if !m.monitor.TryAcquire(d.Name) {
		return fail(domain.ErrCircuitOpen)
	}

	start := m.now()
	decision, err := m.execute(ctx, entry.Component, req, timeout)
	latency := m.now().Sub(start)

	if errors.Is(err, context.Canceled) {
		// caller went away; not the component's fault
		m.monitor.Release(d.Name)
		return fail(err)
	}

	m.monitor.RecordOutcome(d.Name, latency, err)
	metrics.ComponentLatency.WithLabelValues(d.Name).Observe(latency.Seconds())
	if err != nil {
		metrics.ComponentExecutions.WithLabelValues(d.Name, "failure").Inc()
		return fail(err)
	}
	metrics.ComponentExecutions.WithLabelValues(d.Name, "success").Inc()

	return &fallback.Outcome{Decision: decision, Component: d.Name, Type: d.Type}, nil
}

// execute races comp.Execute against timeout. The result channel is
// buffered so an abandoned call can still complete without blocking.
func (m *Manager) execute(ctx context.Context, comp domain.Component, req *domain.Request, timeout time.Duration) (any, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		decision any
		err      error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: panic: %v", domain.ErrComponentError, r)}
			}
		}()
		decision, err := comp.Execute(execCtx, req.WithTimeLimit(timeout))
		ch <- result{decision: decision, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.decision, nil
		}
		if errors.Is(r.err, domain.ErrComponentError) || errors.Is(r.err, domain.ErrComponentTimeout) {
			return nil, r.err
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrComponentTimeout, r.err)
		}
		if ctx.Err() != nil && errors.Is(r.err, context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrComponentError, r.err)
	case <-execCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %v", domain.ErrComponentTimeout, timeout)
	}
}

// Prune drops expired cache entries and health state of components that
// are no longer registered.
func (m *Manager) Prune(ctx context.Context) int {
	n := m.fallback.Prune(ctx)
	if mc, ok := m.fallback.Cache().(*fallback.MemoryCache); ok {
		metrics.CacheEntries.Set(float64(mc.Len()))
	}

	for _, rec := range m.monitor.Snapshot() {
		if _, ok := m.registry.Get(rec.Component); !ok {
			m.monitor.Forget(rec.Component)
			n++
		}
	}
	return n
}

// Registry exposes the component registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Monitor exposes the health monitor.
func (m *Manager) Monitor() *health.Monitor { return m.monitor }

// Resources exposes the resource manager.
func (m *Manager) Resources() *resource.Manager { return m.resources }

// Fallback exposes the fallback system.
func (m *Manager) Fallback() *fallback.System { return m.fallback }
