package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/events"
	"github.com/vietddude/stability/internal/metrics"
	"github.com/vietddude/stability/internal/registry"
)

// Config holds depth bounds and quality constants.
type Config struct {
	MaxDepth                   int
	TierPenalty                float64
	EmergencyQuality           float64
	CachedDegradation          float64
	AlgorithmSwitchDegradation float64
	SimplifiedDegradation      float64
	MinAttemptTime             time.Duration
	Chains                     map[domain.Tier][]string
}

// DefaultChains returns the stock per-tier chains.
func DefaultChains() map[domain.Tier][]string {
	chains := make(map[domain.Tier][]string, len(domain.Tiers))
	for _, t := range domain.Tiers {
		chains[t] = []string{StrategyCached, StrategyAlgorithmSwitch, StrategySimplified}
	}
	// critical work cannot afford another full component attempt in-tier
	chains[domain.TierCritical] = []string{StrategyCached, StrategySimplified}
	return chains
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:                   5,
		TierPenalty:                0.2,
		EmergencyQuality:           0.1,
		CachedDegradation:          0.1,
		AlgorithmSwitchDegradation: 0.15,
		SimplifiedDegradation:      0.5,
		MinAttemptTime:             20 * time.Millisecond,
		Chains:                     DefaultChains(),
	}
}

// System walks the fallback chains for failed requests.
type System struct {
	cfg        Config
	strategies map[string]Strategy
	emergency  *Emergency
	cache      Cache
	events     events.Publisher
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customises a System.
type Option func(*System)

// WithStrategy adds or replaces a strategy by name.
func WithStrategy(s Strategy) Option {
	return func(sys *System) { sys.strategies[s.Name()] = s }
}

// WithEmergencyDecision overrides the emergency logic.
func WithEmergencyDecision(fn DecideFunc) Option {
	return func(sys *System) { sys.emergency.decide = fn }
}

// WithSimplifiedDecision overrides the built-in simplified logic.
func WithSimplifiedDecision(fn DecideFunc) Option {
	return func(sys *System) {
		sys.strategies[StrategySimplified] = NewSimplified(sys.cfg.SimplifiedDegradation, sys.cfg.MinAttemptTime, fn)
	}
}

// New builds a system with the stock strategies.
func New(cfg Config, cache Cache, publisher events.Publisher, logger *slog.Logger, opts ...Option) (*System, error) {
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("fallback max depth must be positive, got %d", cfg.MaxDepth)
	}
	if cfg.Chains == nil {
		cfg.Chains = DefaultChains()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	s := &System{
		cfg:       cfg,
		emergency: NewEmergency(cfg.EmergencyQuality, nil, logger),
		cache:     cache,
		events:    publisher,
		logger:    logger,
		tracer:    otel.Tracer("github.com/vietddude/stability/fallback"),
		now:       time.Now,
		strategies: map[string]Strategy{
			StrategyCached:          NewCached(cfg.CachedDegradation),
			StrategyAlgorithmSwitch: NewAlgorithmSwitch(cfg.AlgorithmSwitchDegradation, cfg.MinAttemptTime),
			StrategySimplified:      NewSimplified(cfg.SimplifiedDegradation, cfg.MinAttemptTime, nil),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	for tier, chain := range cfg.Chains {
		for _, name := range chain {
			if _, ok := s.strategies[name]; !ok {
				return nil, fmt.Errorf("tier %s: unknown fallback strategy %q", tier, name)
			}
		}
	}
	return s, nil
}

// Cache returns the response cache, which may be nil.
func (s *System) Cache() Cache {
	return s.cache
}

// MaxDepth returns the configured depth bound.
func (s *System) MaxDepth() int {
	return s.cfg.MaxDepth
}

// EmergencyDegradation is the quality degradation of an emergency response.
func (s *System) EmergencyDegradation() float64 {
	return s.emergency.Degradation()
}

// CacheResponse stores a successful non-degraded response.
func (s *System) CacheResponse(ctx context.Context, req *domain.Request, resp *domain.Response) {
	if s.cache == nil || resp == nil || resp.Degraded() {
		return
	}
	key := req.CacheKey()
	if key == "" {
		return
	}
	s.cache.Put(ctx, key, resp)
}

// Prune drops expired cache entries.
func (s *System) Prune(ctx context.Context) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Prune(ctx)
}

// Clear empties the cache.
func (s *System) Clear(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// walk tracks one request through the chains.
type walk struct {
	req          *domain.Request
	original     string
	depth        int
	tiersDropped int
	quality      float64
	errs         []string
	failed       []string
	lastErr      error
}

func (w *walk) fail(strategy string, err error) {
	hop := &HopError{Strategy: strategy, Depth: w.depth, Err: err}
	w.errs = append(w.errs, hop.Error())
	w.lastErr = err

	var cf *ComponentFailure
	if errors.As(err, &cf) && cf.Component != "" {
		w.failed = append(w.failed, cf.Component)
	}
}

// Handle recovers from failure of the primary attempt and always returns a
// response. deadline bounds every hop except the in-process strategies.
func (s *System) Handle(ctx context.Context, exec Executor, req *domain.Request, failure error, deadline time.Time) *domain.Response {
	start := s.now()
	w := &walk{req: req, lastErr: failure}

	var cf *ComponentFailure
	if errors.As(failure, &cf) {
		w.original = cf.Component
		w.failed = append(w.failed, cf.Component)
	}
	if failure != nil {
		w.errs = append(w.errs, failure.Error())
	}

	tier := req.Tier
	for {
		if resp := s.runChain(ctx, exec, w, tier, deadline); resp != nil {
			resp.ExecutionTime = s.now().Sub(start)
			return resp
		}

		if !s.canHop(w) {
			w.errs = append(w.errs, fmt.Errorf("after %d hops: %w", w.depth, domain.ErrMaxFallbackDepthExceeded).Error())
			break
		}
		next, ok := tier.Next()
		if !ok || s.remaining(deadline) < s.cfg.MinAttemptTime || exec == nil {
			break
		}

		w.depth++
		w.tiersDropped++
		tier = next

		penalty := float64(w.tiersDropped) * s.cfg.TierPenalty
		out, err := s.hop(ctx, StrategyTierDegradation, w, penalty, func(ctx context.Context) (*Outcome, error) {
			tierReq := req.WithTimeLimit(s.remaining(deadline))
			tierReq.Tier = tier
			return exec.Attempt(ctx, tierReq, registry.Criteria{
				Tier:                 tier,
				Category:             req.Category,
				RequiredCapabilities: req.RequiredCapabilities,
				ExcludeNames:         w.failed,
			})
		})
		if err == nil {
			resp := s.success(w, StrategyTierDegradation, out)
			resp.ExecutionTime = s.now().Sub(start)
			return resp
		}
		w.fail(StrategyTierDegradation, err)
	}

	resp := s.emergencyResponse(w)
	resp.ExecutionTime = s.now().Sub(start)
	return resp
}

func (s *System) runChain(ctx context.Context, exec Executor, w *walk, tier domain.Tier, deadline time.Time) *domain.Response {
	tierReq := w.req.WithTimeLimit(s.remaining(deadline))
	tierReq.Tier = tier

	for _, name := range s.cfg.Chains[tier] {
		if !s.canHop(w) {
			return nil
		}
		strategy := s.strategies[name]
		a := &Attempt{
			Request:  tierReq,
			Err:      w.lastErr,
			Depth:    w.depth,
			Deadline: deadline,
			Failed:   w.failed,
			Executor: exec,
			Cache:    s.cache,
			now:      s.now,
		}
		if !strategy.CanHandle(ctx, w.lastErr, tierReq, a) {
			continue
		}

		w.depth++
		a.Depth = w.depth
		penalty := float64(w.tiersDropped)*s.cfg.TierPenalty + strategy.Degradation()
		out, err := s.hop(ctx, name, w, penalty, func(ctx context.Context) (*Outcome, error) {
			return strategy.Execute(ctx, a)
		})
		if err == nil {
			return s.success(w, name, out)
		}
		w.fail(name, err)
	}
	return nil
}

// hop runs one fallback attempt inside a span and records its outcome.
// Quality loss only ratchets upward, capped at the emergency value, so a
// later hop never reports better quality than an earlier one.
func (s *System) hop(ctx context.Context, name string, w *walk, penalty float64, fn func(context.Context) (*Outcome, error)) (*Outcome, error) {
	w.quality = min(max(w.quality, penalty), s.emergency.Degradation())

	ctx, span := s.tracer.Start(ctx, "fallback."+name,
		trace.WithAttributes(
			attribute.String("request.id", w.req.ID),
			attribute.String("fallback.strategy", name),
			attribute.Int("fallback.depth", w.depth),
		),
	)
	defer span.End()

	s.events.Publish(domain.Event{
		Type:      domain.EventFallbackTriggered,
		Component: w.original,
		Severity:  domain.SeverityWarning,
		Data: map[string]any{
			"request_id": w.req.ID,
			"strategy":   name,
			"depth":      w.depth,
			"error":      errString(w.lastErr),
		},
	})

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.FallbacksTotal.WithLabelValues(name, "failure").Inc()
		s.logger.Debug("fallback hop failed", "request_id", w.req.ID, "strategy", name, "depth", w.depth, "error", err)
		return nil, err
	}
	metrics.FallbacksTotal.WithLabelValues(name, "success").Inc()
	return out, nil
}

func (s *System) success(w *walk, strategy string, out *Outcome) *domain.Response {
	s.events.Publish(domain.Event{
		Type:      domain.EventFallbackSuccess,
		Component: out.Component,
		Data: map[string]any{
			"request_id": w.req.ID,
			"strategy":   strategy,
			"depth":      w.depth,
			"quality":    w.quality,
		},
	})

	return &domain.Response{
		RequestID:          w.req.ID,
		Decision:           out.Decision,
		ProducedBy:         out.Component,
		OriginalComponent:  w.original,
		Strategy:           strategy,
		FallbacksUsed:      w.depth,
		FallbackDepth:      w.depth,
		QualityDegradation: w.quality,
		Errors:             w.errs,
	}
}

func (s *System) emergencyResponse(w *walk) *domain.Response {
	decision, err := s.emergency.Decide(w.req)
	if err != nil {
		w.errs = append(w.errs, err.Error())
	}
	metrics.EmergencyFallbacks.Inc()

	s.logger.Warn("emergency fallback used",
		"request_id", w.req.ID,
		"kind", w.req.Kind,
		"hops", w.depth,
	)
	s.events.Publish(domain.Event{
		Type:      domain.EventEmergencyFallback,
		Component: w.original,
		Severity:  domain.SeverityError,
		Data: map[string]any{
			"request_id": w.req.ID,
			"hops":       w.depth,
			"errors":     len(w.errs),
		},
	})

	return &domain.Response{
		RequestID:          w.req.ID,
		Decision:           decision,
		ProducedBy:         StrategyEmergency,
		OriginalComponent:  w.original,
		Strategy:           StrategyEmergency,
		FallbacksUsed:      w.depth,
		FallbackDepth:      s.cfg.MaxDepth,
		QualityDegradation: s.emergency.Degradation(),
		Errors:             w.errs,
	}
}

// canHop reports whether another hop fits below the emergency depth.
func (s *System) canHop(w *walk) bool {
	return w.depth < s.cfg.MaxDepth-1
}

func (s *System) remaining(deadline time.Time) time.Duration {
	return deadline.Sub(s.now())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
