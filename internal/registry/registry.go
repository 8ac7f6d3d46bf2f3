// Package registry keeps the catalog of decision components and ranks them
// for selection.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// HealthView is the read side of the health monitor used for filtering and
// ranking. Lookups are by name so the registry holds no health state.
type HealthView interface {
	// Health returns the current record, or false if the component is unknown.
	Health(name string) (domain.HealthRecord, bool)

	// Allows reports whether the breaker currently permits an attempt. It
	// must not consume a half-open trial slot.
	Allows(name string) bool
}

// Criteria narrows SelectBest.
type Criteria struct {
	Tier                 domain.Tier
	Category             string
	RequiredCapabilities []string
	MinHealthScore       float64
	ExcludeNames         []string
	ExcludeType          string
}

// Entry pairs a descriptor with its component.
type Entry struct {
	Descriptor domain.Descriptor
	Component  domain.Component
	seq        uint64
}

// Registry is the single owner of the component catalog.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	usage   map[string]uint64
	seq     uint64
	health  HealthView
	logger  *slog.Logger
}

// New creates an empty registry. health may be nil until SetHealthView.
func New(health HealthView, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		usage:   make(map[string]uint64),
		health:  health,
		logger:  logger,
	}
}

// SetHealthView attaches the health monitor after construction.
func (r *Registry) SetHealthView(h HealthView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = h
}

// Register adds a component. Re-registering an existing name replaces the
// component only when the tier is unchanged.
func (r *Registry) Register(ctx context.Context, desc domain.Descriptor, comp domain.Component) error {
	if desc.Name == "" {
		return fmt.Errorf("register: empty component name")
	}
	if !desc.Tier.Valid() {
		return fmt.Errorf("register %s: invalid tier %d", desc.Name, desc.Tier)
	}
	if comp == nil {
		return fmt.Errorf("register %s: nil component", desc.Name)
	}

	r.mu.RLock()
	existing, ok := r.entries[desc.Name]
	r.mu.RUnlock()
	if ok {
		if existing.Descriptor.Tier != desc.Tier {
			return fmt.Errorf("register %s (%s -> %s): %w",
				desc.Name, existing.Descriptor.Tier, desc.Tier, domain.ErrTierChange)
		}
		return fmt.Errorf("register %s: %w", desc.Name, domain.ErrComponentExists)
	}

	if init, ok := comp.(domain.Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", desc.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// lost a race with a concurrent Register of the same name
	if _, ok := r.entries[desc.Name]; ok {
		return fmt.Errorf("register %s: %w", desc.Name, domain.ErrComponentExists)
	}
	r.seq++
	r.entries[desc.Name] = &Entry{Descriptor: desc, Component: comp, seq: r.seq}

	r.logger.Info("component registered",
		"component", desc.Name,
		"tier", desc.Tier.String(),
		"type", desc.Type,
		"priority", desc.Priority,
	)
	return nil
}

// Unregister removes a component and runs its cleanup hook.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		delete(r.usage, name)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unregister %s: %w", name, domain.ErrComponentNotFound)
	}

	if c, ok := entry.Component.(domain.Cleaner); ok {
		if err := c.Cleanup(ctx); err != nil {
			r.logger.Warn("component cleanup failed", "component", name, "error", err)
		}
	}
	r.logger.Info("component unregistered", "component", name)
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Names lists registered components in registration order.
func (r *Registry) Names() []string {
	entries := r.snapshot(func(*Entry) bool { return true })
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Descriptor.Name
	}
	return names
}

// Descriptors lists every registered descriptor in registration order.
func (r *Registry) Descriptors() []domain.Descriptor {
	entries := r.snapshot(func(*Entry) bool { return true })
	out := make([]domain.Descriptor, len(entries))
	for i, e := range entries {
		out[i] = e.Descriptor
	}
	return out
}

// GetByTier returns every component registered at tier.
func (r *Registry) GetByTier(tier domain.Tier) []Entry {
	return r.snapshot(func(e *Entry) bool { return e.Descriptor.Tier == tier })
}

// GetByCategory returns every component in the category.
func (r *Registry) GetByCategory(category string) []Entry {
	return r.snapshot(func(e *Entry) bool { return e.Descriptor.Category == category })
}

// GetHealthy returns components at tier that are neither offline nor
// blocked by their breaker.
func (r *Registry) GetHealthy(tier domain.Tier) []Entry {
	health := r.healthView()
	return r.snapshot(func(e *Entry) bool {
		return e.Descriptor.Tier == tier && available(health, e.Descriptor.Name)
	})
}

// Usage returns how many times name was selected.
func (r *Registry) Usage(name string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usage[name]
}

// SelectBest returns the highest ranked component matching c.
func (r *Registry) SelectBest(c Criteria) (Entry, error) {
	health := r.healthView()
	excluded := make(map[string]bool, len(c.ExcludeNames))
	for _, n := range c.ExcludeNames {
		excluded[n] = true
	}

	candidates := r.snapshot(func(e *Entry) bool {
		d := e.Descriptor
		switch {
		case d.Tier != c.Tier:
			return false
		case c.Category != "" && d.Category != c.Category:
			return false
		case excluded[d.Name]:
			return false
		case c.ExcludeType != "" && d.Type == c.ExcludeType:
			return false
		case !d.HasCapabilities(c.RequiredCapabilities):
			return false
		}
		return available(health, d.Name)
	})

	type scoredEntry struct {
		entry Entry
		score float64
	}

	var scored []scoredEntry
	for _, e := range candidates {
		healthScore, perf := 1.0, 1.0
		if health != nil {
			if rec, ok := health.Health(e.Descriptor.Name); ok {
				healthScore = rec.Score
				perf = performance(rec, e.Descriptor.TimeoutBudget)
			}
		}
		if healthScore < c.MinHealthScore {
			continue
		}
		scored = append(scored, scoredEntry{entry: e, score: Score(healthScore, perf, e.Descriptor.Priority)})
	}

	if len(scored) == 0 {
		return Entry{}, fmt.Errorf("tier %s: %w", c.Tier, domain.ErrNoComponentAvailable)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].entry.Descriptor.Priority != scored[j].entry.Descriptor.Priority {
			return scored[i].entry.Descriptor.Priority > scored[j].entry.Descriptor.Priority
		}
		return scored[i].entry.seq < scored[j].entry.seq
	})

	selected := scored[0].entry
	r.mu.Lock()
	r.usage[selected.Descriptor.Name]++
	r.mu.Unlock()

	return selected, nil
}

// Score combines health, performance and priority into a ranking value.
func Score(health, performance float64, priority int) float64 {
	return 0.4*health + 0.4*performance + 0.2*(float64(priority)/100)
}

// performance blends latency headroom against the budget with success rate.
// Components without samples count as fully performant.
func performance(rec domain.HealthRecord, budget time.Duration) float64 {
	if rec.Samples == 0 {
		return 1.0
	}
	latency := 1.0
	if budget > 0 {
		latency = 1 - float64(rec.AvgLatency)/float64(budget)
		latency = min(max(latency, 0), 1)
	}
	return 0.5*latency + 0.5*rec.SuccessRate
}

func available(health HealthView, name string) bool {
	if health == nil {
		return true
	}
	if rec, ok := health.Health(name); ok && rec.Status == domain.HealthOffline {
		return false
	}
	return health.Allows(name)
}

func (r *Registry) healthView() HealthView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health
}

func (r *Registry) snapshot(keep func(*Entry) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
