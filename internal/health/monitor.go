// Package health tracks per-component health and circuit breaker state.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/events"
	"github.com/vietddude/stability/internal/metrics"
	"github.com/vietddude/stability/internal/registry"
)

// Catalog is the subset of the registry the monitor probes.
type Catalog interface {
	Descriptors() []domain.Descriptor
	Get(name string) (registry.Entry, bool)
}

// Config tunes probing, scoring and the breaker.
type Config struct {
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	WindowSize         int
	MinSamples         int
	HealthyThreshold   float64
	DegradedThreshold  float64
	UnhealthyThreshold float64
	MaxParallelProbes  int
	Breaker            BreakerConfig
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:      5 * time.Second,
		ProbeTimeout:       time.Second,
		WindowSize:         20,
		MinSamples:         5,
		HealthyThreshold:   0.8,
		DegradedThreshold:  0.6,
		UnhealthyThreshold: 0.4,
		MaxParallelProbes:  8,
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
		},
	}
}

type componentHealth struct {
	window    *window
	breaker   *Breaker
	lastCheck time.Time
	reported  domain.CircuitState
}

type transition struct {
	name     string
	from, to domain.CircuitState
}

// Monitor owns every component's health record and breaker.
type Monitor struct {
	cfg     Config
	catalog Catalog
	events  events.Publisher
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	components map[string]*componentHealth
}

// NewMonitor creates a monitor over the catalog.
func NewMonitor(cfg Config, catalog Catalog, publisher events.Publisher, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.MaxParallelProbes < 1 {
		cfg.MaxParallelProbes = 1
	}
	return &Monitor{
		cfg:        cfg,
		catalog:    catalog,
		events:     publisher,
		logger:     logger,
		now:        time.Now,
		components: make(map[string]*componentHealth),
	}
}

// get returns the state for name, creating it on first use. Callers hold m.mu.
func (m *Monitor) get(name string) *componentHealth {
	ch, ok := m.components[name]
	if !ok {
		ch = &componentHealth{
			window:   newWindow(m.cfg.WindowSize, m.cfg.MinSamples),
			breaker:  NewBreaker(m.cfg.Breaker),
			reported: domain.CircuitClosed,
		}
		m.components[name] = ch
	}
	return ch
}

// Health implements registry.HealthView.
func (m *Monitor) Health(name string) (domain.HealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.components[name]
	if !ok {
		return domain.HealthRecord{}, false
	}
	return m.record(name, ch, false), true
}

// Record returns the full record including the sample window.
func (m *Monitor) Record(name string) (domain.HealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.components[name]
	if !ok {
		return domain.HealthRecord{}, false
	}
	return m.record(name, ch, true), true
}

// Snapshot returns every record sorted by component name.
func (m *Monitor) Snapshot() []domain.HealthRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.HealthRecord, 0, len(m.components))
	for name, ch := range m.components {
		out = append(out, m.record(name, ch, false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Allows implements registry.HealthView.
func (m *Monitor) Allows(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.components[name]
	if !ok {
		return true
	}
	return ch.breaker.Allows(m.now())
}

// TryAcquire takes permission for one Execute. A false result means the
// breaker is open or a half-open trial is already in flight.
func (m *Monitor) TryAcquire(name string) bool {
	m.mu.Lock()
	ch := m.get(name)
	now := m.now()
	ok := ch.breaker.TryAcquire(now)
	t := ch.transition(name, now)
	m.mu.Unlock()

	m.notify(t)
	return ok
}

// Release frees a half-open trial slot taken by TryAcquire when no
// outcome will be recorded.
func (m *Monitor) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.components[name]; ok {
		ch.breaker.Release()
	}
}

// RecordOutcome appends an execution result and updates the breaker.
func (m *Monitor) RecordOutcome(name string, latency time.Duration, err error) {
	sample := domain.HealthSample{
		Latency: latency,
		Success: err == nil,
		Source:  domain.SourceExecute,
	}
	if err == nil {
		sample.Score = 1
	}
	m.observe(name, sample)
}

// Forget drops all state for name.
func (m *Monitor) Forget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.components, name)
	metrics.ComponentHealthScore.DeleteLabelValues(name)
	metrics.CircuitState.DeleteLabelValues(name)
}

// Probe runs one bounded health check against name.
func (m *Monitor) Probe(ctx context.Context, name string) error {
	entry, ok := m.catalog.Get(name)
	if !ok {
		return fmt.Errorf("probe %s: %w", name, domain.ErrComponentNotFound)
	}

	timeout := m.cfg.ProbeTimeout
	if budget := entry.Descriptor.TimeoutBudget / 2; budget > 0 && (timeout <= 0 || budget < timeout) {
		timeout = budget
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := m.now()
	result, err := checkHealth(probeCtx, entry.Component)
	latency := m.now().Sub(start)
	if err == nil && probeCtx.Err() != nil {
		err = fmt.Errorf("probe %s: %w", name, domain.ErrComponentTimeout)
	}
	if err == nil && result.Status == domain.HealthOffline {
		err = fmt.Errorf("probe %s: component reported offline", name)
	}

	sample := domain.HealthSample{
		Latency: latency,
		Success: err == nil,
		Source:  domain.SourceProbe,
	}
	if err == nil {
		sample.Score = min(max(result.Score, 0), 1)
	} else {
		m.logger.Debug("health probe failed", "component", name, "error", err)
	}
	m.observe(name, sample)
	return err
}

// checkHealth races the probe against ctx so a stuck component cannot hold
// the probe loop.
func checkHealth(ctx context.Context, comp domain.Component) (domain.HealthCheckResult, error) {
	type result struct {
		res domain.HealthCheckResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("health check panic: %v", r)}
			}
		}()
		res, err := comp.HealthCheck(ctx)
		ch <- result{res: res, err: err}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.HealthCheckResult{}, domain.ErrComponentTimeout
		}
		return domain.HealthCheckResult{}, ctx.Err()
	}
}

// ProbeAll probes every registered component in parallel.
func (m *Monitor) ProbeAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxParallelProbes)

	for _, d := range m.catalog.Descriptors() {
		name := d.Name
		g.Go(func() error {
			// failures are recorded in the window, not propagated
			_ = m.Probe(gctx, name)
			return nil
		})
	}
	_ = g.Wait()
}

// Run probes on a fixed interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	m.logger.Info("health monitor started", "interval", m.cfg.ProbeInterval)
	m.ProbeAll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

func (m *Monitor) observe(name string, sample domain.HealthSample) {
	now := m.now()
	sample.At = now

	m.mu.Lock()
	ch := m.get(name)
	ch.window.add(sample)
	ch.lastCheck = now
	if sample.Success {
		ch.breaker.OnSuccess(now)
	} else {
		ch.breaker.OnFailure(now)
	}
	// an execute outcome always ends the caller's trial
	if sample.Source == domain.SourceExecute {
		ch.breaker.Release()
	}

	t := ch.transition(name, now)
	score := ch.window.score()
	m.mu.Unlock()

	metrics.ComponentHealthScore.WithLabelValues(name).Set(score)
	m.notify(t)
}

// transition compares the breaker with the last reported state so lazy
// Open to HalfOpen moves are still announced. Callers hold m.mu.
func (ch *componentHealth) transition(name string, now time.Time) transition {
	t := transition{name: name, from: ch.reported, to: ch.breaker.State(now)}
	ch.reported = t.to
	return t
}

func (m *Monitor) notify(t transition) {
	if t.from == t.to {
		return
	}

	metrics.CircuitState.WithLabelValues(t.name).Set(circuitGauge(t.to))

	severity := domain.SeverityInfo
	if t.to == domain.CircuitOpen {
		severity = domain.SeverityWarning
	}
	m.logger.Info("circuit state changed", "component", t.name, "from", t.from, "to", t.to)
	m.events.Publish(domain.Event{
		Type:      domain.EventCircuitStateChanged,
		Component: t.name,
		Severity:  severity,
		Data:      map[string]any{"from": string(t.from), "to": string(t.to)},
	})
}

func (m *Monitor) record(name string, ch *componentHealth, withWindow bool) domain.HealthRecord {
	now := m.now()
	score := ch.window.score()
	latency, successRate := ch.window.stats()

	rec := domain.HealthRecord{
		Component:            name,
		Status:               m.status(score),
		Score:                score,
		LastCheck:            ch.lastCheck,
		AvgLatency:           latency,
		SuccessRate:          successRate,
		Samples:              ch.window.len(),
		Circuit:              ch.breaker.State(now),
		ConsecutiveFailures:  ch.breaker.ConsecutiveFailures(),
		ConsecutiveSuccesses: ch.breaker.ConsecutiveSuccesses(),
		OpenedAt:             ch.breaker.OpenedAt(),
	}
	if withWindow {
		rec.Window = ch.window.copySamples()
	}
	return rec
}

func (m *Monitor) status(score float64) domain.HealthStatus {
	switch {
	case score >= m.cfg.HealthyThreshold:
		return domain.HealthHealthy
	case score >= m.cfg.DegradedThreshold:
		return domain.HealthDegraded
	case score >= m.cfg.UnhealthyThreshold:
		return domain.HealthUnhealthy
	default:
		return domain.HealthOffline
	}
}

func circuitGauge(s domain.CircuitState) float64 {
	switch s {
	case domain.CircuitHalfOpen:
		return 1
	case domain.CircuitOpen:
		return 2
	default:
		return 0
	}
}
