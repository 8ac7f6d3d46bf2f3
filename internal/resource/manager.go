// Package resource samples host usage, forecasts it, and drives the global
// throttle level and admission control.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/events"
	"github.com/vietddude/stability/internal/metrics"
)

// Config holds resource manager settings.
type Config struct {
	SampleInterval       time.Duration
	HistorySize          int
	ForecastHorizon      time.Duration
	CPUCores             int
	TotalMemoryMB        float64
	CPULimit             float64 // admission ceiling, percent
	MemoryLimit          float64 // admission ceiling, percent
	WorkloadImpactFactor float64
	PausePriority        int // workloads below this priority pause in emergency
	BaseConcurrency      int // used for hints
	BaseCacheTTL         time.Duration
	Policies             []domain.ThrottlePolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleInterval:       5 * time.Second,
		HistorySize:          60,
		ForecastHorizon:      30 * time.Second,
		CPUCores:             4,
		TotalMemoryMB:        8192,
		CPULimit:             80,
		MemoryLimit:          85,
		WorkloadImpactFactor: 0.1,
		PausePriority:        5,
		BaseConcurrency:      64,
		BaseCacheTTL:         5 * time.Minute,
	}
}

// Admission is the answer to RequestAdmission.
type Admission struct {
	Allowed        bool    `json:"allowed"`
	ThrottleFactor float64 `json:"throttle_factor"`
	Reason         string  `json:"reason,omitempty"`
}

// Manager owns resource history, workloads and the throttle state.
type Manager struct {
	cfg      Config
	policies policySet
	sampler  Sampler
	events   events.Publisher
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	history   []domain.ResourceSample
	state     domain.ThrottleState
	workloads map[string]*domain.Workload

	hooksMu     sync.RWMutex
	clearHooks  []func(context.Context)
	changeHooks []func(domain.ThrottleState)
}

// NewManager creates a manager starting at ThrottleNone.
func NewManager(cfg Config, sampler Sampler, publisher events.Publisher, logger *slog.Logger) (*Manager, error) {
	policies, err := newPolicySet(cfg.Policies)
	if err != nil {
		return nil, err
	}
	if cfg.CPUCores < 1 {
		cfg.CPUCores = 1
	}
	if cfg.HistorySize < 2 {
		cfg.HistorySize = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	m := &Manager{
		cfg:       cfg,
		policies:  policies,
		sampler:   sampler,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
		workloads: make(map[string]*domain.Workload),
	}
	m.state = domain.ThrottleState{Policy: policies[domain.ThrottleNone], Reason: "initial"}
	return m, nil
}

// OnCacheClear registers a hook run when an emergency asks caches to drop
// their contents.
func (m *Manager) OnCacheClear(hook func(context.Context)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.clearHooks = append(m.clearHooks, hook)
}

// OnThrottleChange registers a hook run after every level change.
func (m *Manager) OnThrottleChange(hook func(domain.ThrottleState)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.changeHooks = append(m.changeHooks, hook)
}

// Throttle returns the applied throttle state.
func (m *Manager) Throttle() domain.ThrottleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Policies returns the throttle ladder in level order.
func (m *Manager) Policies() []domain.ThrottlePolicy {
	return m.policies.list()
}

// History returns a copy of the rolling sample history.
func (m *Manager) History() []domain.ResourceSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ResourceSample, len(m.history))
	copy(out, m.history)
	return out
}

// Latest returns the most recent sample.
func (m *Manager) Latest() (domain.ResourceSample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return domain.ResourceSample{}, false
	}
	return m.history[len(m.history)-1], true
}

// SampleCurrent reads the sampler and appends the result to history.
func (m *Manager) SampleCurrent(ctx context.Context) (domain.ResourceSample, error) {
	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		return domain.ResourceSample{}, fmt.Errorf("sample resources: %w", err)
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.now()
	}
	m.Observe(sample)
	return sample, nil
}

// Observe appends an externally obtained sample to history.
func (m *Manager) Observe(sample domain.ResourceSample) {
	m.mu.Lock()
	m.history = append(m.history, sample)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	m.mu.Unlock()

	metrics.ResourceUsage.WithLabelValues("cpu").Set(sample.CPUPercent)
	metrics.ResourceUsage.WithLabelValues("memory").Set(sample.MemoryPercent)
}

// Forecast predicts usage horizon from the last sample, including the
// projected impact of active workloads. A zero horizon uses the configured one.
func (m *Manager) Forecast(horizon time.Duration) domain.Forecast {
	if horizon <= 0 {
		horizon = m.cfg.ForecastHorizon
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := project(m.history, horizon)

	var cpu, mem float64
	for _, w := range m.workloads {
		if w.Paused {
			continue
		}
		weight := w.Weight
		if weight == 0 {
			weight = 1
		}
		cpu += weight * w.EstimatedCPU
		mem += weight * w.EstimatedMemoryMB
	}
	f.WorkloadImpactCPU = m.cfg.WorkloadImpactFactor * cpu / float64(m.cfg.CPUCores)
	if m.cfg.TotalMemoryMB > 0 {
		f.WorkloadImpactMemory = m.cfg.WorkloadImpactFactor * mem / m.cfg.TotalMemoryMB * 100
	}
	f.CPUPercent = clampPercent(f.CPUPercent + f.WorkloadImpactCPU)
	f.MemoryPercent = clampPercent(f.MemoryPercent + f.WorkloadImpactMemory)
	return f
}

// EvaluateThrottle picks the highest policy reached by max(current,
// 0.8*forecast) and applies it once the current policy's cooldown has
// elapsed. It returns the resulting state and whether it changed.
func (m *Manager) EvaluateThrottle(current domain.ResourceSample, forecast domain.Forecast) (domain.ThrottleState, bool) {
	cpu := max(current.CPUPercent, 0.8*forecast.CPUPercent)
	mem := max(current.MemoryPercent, 0.8*forecast.MemoryPercent)
	target := m.policies.target(cpu, mem)

	now := m.now()
	m.mu.Lock()
	prev := m.state
	if target.Level == prev.Level() || now.Sub(prev.ChangedAt) < prev.Policy.Cooldown {
		m.mu.Unlock()
		return prev, false
	}
	next := domain.ThrottleState{
		Policy:    target,
		ChangedAt: now,
		Reason:    fmt.Sprintf("cpu=%.1f%% memory=%.1f%%", cpu, mem),
	}
	m.state = next
	m.mu.Unlock()

	m.applied(context.Background(), prev, next)
	return next, true
}

// TriggerEmergency jumps straight to the Emergency policy regardless of
// cooldown, pauses low-priority workloads and asks caches to clear.
func (m *Manager) TriggerEmergency(ctx context.Context, reason string) domain.ThrottleState {
	now := m.now()
	m.mu.Lock()
	prev := m.state
	next := prev
	if prev.Level() != domain.ThrottleEmergency {
		next = domain.ThrottleState{
			Policy:    m.policies[domain.ThrottleEmergency],
			ChangedAt: now,
			Reason:    reason,
		}
		m.state = next
	}
	m.mu.Unlock()

	m.logger.Warn("emergency throttle triggered", "reason", reason)
	if next.Level() != prev.Level() {
		m.applied(ctx, prev, next)
	}
	return next
}

// applied runs the side effects of a level change.
func (m *Manager) applied(ctx context.Context, prev, next domain.ThrottleState) {
	metrics.ThrottleLevel.Set(float64(next.Level()))

	severity := domain.SeverityInfo
	if next.Level() > prev.Level() {
		severity = domain.SeverityWarning
	}
	if next.Level() == domain.ThrottleEmergency {
		severity = domain.SeverityCritical
	}
	m.logger.Info("throttle level changed",
		"from", prev.Level().String(),
		"to", next.Level().String(),
		"reason", next.Reason,
	)
	m.events.Publish(domain.Event{
		Type:     domain.EventThrottleChanged,
		Severity: severity,
		Data: map[string]any{
			"from":             prev.Level().String(),
			"to":               next.Level().String(),
			"reduction_factor": next.Policy.ReductionFactor,
			"reason":           next.Reason,
		},
	})

	if next.Level() == domain.ThrottleEmergency {
		m.pauseWorkloads()
		m.clearCaches(ctx)
	} else if next.Level() < domain.ThrottleAggressive {
		m.resumeWorkloads()
	}

	m.hooksMu.RLock()
	hooks := append([]func(domain.ThrottleState){}, m.changeHooks...)
	m.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(next)
	}
}

func (m *Manager) pauseWorkloads() {
	m.mu.Lock()
	var paused []string
	for _, w := range m.workloads {
		if !w.Paused && w.Priority < m.cfg.PausePriority {
			w.Paused = true
			paused = append(paused, w.ID)
		}
	}
	m.mu.Unlock()

	if len(paused) > 0 {
		m.logger.Warn("workloads paused", "count", len(paused))
		m.events.Publish(domain.Event{
			Type:     domain.EventWorkloadsPaused,
			Severity: domain.SeverityWarning,
			Data:     map[string]any{"workloads": paused},
		})
	}
}

func (m *Manager) resumeWorkloads() {
	m.mu.Lock()
	var resumed []string
	for _, w := range m.workloads {
		if w.Paused {
			w.Paused = false
			resumed = append(resumed, w.ID)
		}
	}
	m.mu.Unlock()

	if len(resumed) > 0 {
		m.logger.Info("workloads resumed", "count", len(resumed))
		m.events.Publish(domain.Event{
			Type: domain.EventWorkloadsResumed,
			Data: map[string]any{"workloads": resumed},
		})
	}
}

func (m *Manager) clearCaches(ctx context.Context) {
	m.hooksMu.RLock()
	hooks := append([]func(context.Context){}, m.clearHooks...)
	m.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ctx)
	}
	if len(hooks) > 0 {
		m.events.Publish(domain.Event{
			Type:     domain.EventCacheCleared,
			Severity: domain.SeverityWarning,
			Data:     map[string]any{"hooks": len(hooks)},
		})
	}
}

// RequestAdmission decides whether work with the given estimate may start.
// estCPU is percent of one core; estMemMB is resident megabytes.
func (m *Manager) RequestAdmission(estCPU, estMemMB float64) Admission {
	current, _ := m.Latest()
	state := m.Throttle()

	cpu, mem := m.project(current, estCPU, estMemMB)
	if cpu <= m.cfg.CPULimit && mem <= m.cfg.MemoryLimit {
		return Admission{Allowed: true, ThrottleFactor: 1.0}
	}

	if state.Level() != domain.ThrottleNone {
		factor := state.Policy.ReductionFactor
		tcpu, tmem := m.project(current, estCPU*factor, estMemMB*factor)
		if tcpu <= m.cfg.CPULimit && tmem <= m.cfg.MemoryLimit {
			return Admission{
				Allowed:        true,
				ThrottleFactor: factor,
				Reason:         fmt.Sprintf("throttled to %.2f at %s", factor, state.Level()),
			}
		}
		cpu, mem = tcpu, tmem
	}

	metrics.AdmissionRejected.Inc()
	return Admission{
		Allowed: false,
		Reason: fmt.Sprintf("projected cpu=%.1f%% (limit %.0f) memory=%.1f%% (limit %.0f)",
			cpu, m.cfg.CPULimit, mem, m.cfg.MemoryLimit),
	}
}

func (m *Manager) project(current domain.ResourceSample, estCPU, estMemMB float64) (float64, float64) {
	cpu := current.CPUPercent + estCPU/float64(m.cfg.CPUCores)
	mem := current.MemoryPercent
	if m.cfg.TotalMemoryMB > 0 {
		mem += estMemMB / m.cfg.TotalMemoryMB * 100
	}
	return cpu, mem
}

// RegisterWorkload adds a workload, assigning an ID when empty.
func (m *Manager) RegisterWorkload(w domain.Workload) string {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workloads[w.ID] = &w
	return w.ID
}

// UnregisterWorkload removes a workload.
func (m *Manager) UnregisterWorkload(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workloads[id]; !ok {
		return false
	}
	delete(m.workloads, id)
	return true
}

// Workload returns a copy of the workload.
func (m *Manager) Workload(id string) (domain.Workload, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workloads[id]
	if !ok {
		return domain.Workload{}, false
	}
	return *w, true
}

// Hints returns optimisation hints for the workload under the current level.
func (m *Manager) Hints(workloadID string) (Hints, error) {
	w, ok := m.Workload(workloadID)
	if !ok {
		return Hints{}, fmt.Errorf("workload %s not found", workloadID)
	}
	return hintsFor(w, m.Throttle().Policy, m.cfg.BaseConcurrency, m.cfg.BaseCacheTTL), nil
}

// Tick samples once, reacts to spikes and re-evaluates the throttle.
func (m *Manager) Tick(ctx context.Context) error {
	sample, err := m.SampleCurrent(ctx)
	if err != nil {
		return err
	}

	m.events.Publish(domain.Event{
		Type: domain.EventResourceMetrics,
		Data: map[string]any{
			"cpu_percent":    sample.CPUPercent,
			"memory_percent": sample.MemoryPercent,
		},
	})

	if emergency := m.policies[domain.ThrottleEmergency]; emergency.Matches(sample.CPUPercent, sample.MemoryPercent) {
		m.TriggerEmergency(ctx, fmt.Sprintf("resource spike cpu=%.1f%% memory=%.1f%%",
			sample.CPUPercent, sample.MemoryPercent))
		return nil
	}

	m.EvaluateThrottle(sample, m.Forecast(m.cfg.ForecastHorizon))
	return nil
}

// Run samples on a fixed interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	m.logger.Info("resource manager started", "interval", m.cfg.SampleInterval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("resource manager stopped")
			return nil
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Warn("resource sample failed", "error", err)
			}
		}
	}
}
