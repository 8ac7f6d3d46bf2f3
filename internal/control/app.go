package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/stability/internal/core/config"
	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/events"
	"github.com/vietddude/stability/internal/fallback"
	"github.com/vietddude/stability/internal/health"
	"github.com/vietddude/stability/internal/infra/component"
	redisclient "github.com/vietddude/stability/internal/infra/redis"
	"github.com/vietddude/stability/internal/orchestrator"
	"github.com/vietddude/stability/internal/registry"
	"github.com/vietddude/stability/internal/resource"
	"github.com/vietddude/stability/internal/server"
)

// App is the main application struct that owns the stability manager and
// its background loops.
type App struct {
	cfg         *config.AppConfig
	bus         *events.Bus
	sink        *events.LogSink
	sub         *events.Subscription
	manager     *orchestrator.Manager
	scheduler   *orchestrator.Scheduler
	server      *server.Server
	redisClient *redisclient.Client
	log         *slog.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewApp creates a new App with all dependencies initialized and the
// configured components registered.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bus := events.NewBus()

	// 1. Response cache
	var cache fallback.Cache
	var redisClient *redisclient.Client
	if cfg.Cache.Backend == "redis" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			logger.Warn("Failed to connect to Redis, using memory cache", "error", err)
		} else {
			cache = redisclient.NewResponseCache(redisClient, cfg.Cache.TTL, logger)
			logger.Info("Using Redis response cache")
		}
	}
	if cache == nil {
		cache = fallback.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	}

	// 2. Resource sampling
	sampler, err := newSampler(cfg.Resource, logger)
	if err != nil {
		return nil, err
	}

	// 3. Registry and health
	reg := registry.New(nil, logger)
	monitor := health.NewMonitor(healthConfig(cfg.Health), reg, bus, logger)
	reg.SetHealthView(monitor)

	// 4. Resource manager
	resCfg, err := resourceConfig(cfg.Resource, cfg.Orchestrator)
	if err != nil {
		return nil, err
	}
	resources, err := resource.NewManager(resCfg, sampler, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init resource manager: %w", err)
	}

	// 5. Fallback system
	fbCfg, err := fallbackConfig(cfg.Fallback)
	if err != nil {
		return nil, err
	}
	fb, err := fallback.New(fbCfg, cache, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init fallback system: %w", err)
	}
	resources.OnCacheClear(func(ctx context.Context) {
		if err := fb.Clear(ctx); err != nil {
			logger.Warn("Failed to clear response cache", "error", err)
		}
	})

	// 6. Admission rate limiting follows the throttle level
	var limiter *resource.AdaptiveLimiter
	if cfg.Orchestrator.RequestsPerSecond > 0 {
		limiter = resource.NewAdaptiveLimiter(cfg.Orchestrator.RequestsPerSecond, cfg.Orchestrator.Burst)
		resources.OnThrottleChange(func(state domain.ThrottleState) {
			limiter.UpdateFactor(state.Policy.ReductionFactor)
		})
	}

	manager := orchestrator.NewManager(
		orchestrator.Config{
			MaxConcurrency:   cfg.Orchestrator.MaxConcurrency,
			DefaultTimeLimit: cfg.Orchestrator.DefaultTimeLimit,
		},
		reg, monitor, resources, fb, limiter, bus, logger,
	)

	// 7. Components
	for _, cc := range cfg.Components {
		desc, err := cc.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", cc.Name, err)
		}
		comp, err := component.Build(cc)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(ctx, desc, comp); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", cc.Name, err)
		}
		logger.Info("Component registered", "name", desc.Name, "tier", desc.Tier.String(), "transport", cc.Transport)
	}

	return &App{
		cfg:         cfg,
		bus:         bus,
		sink:        events.NewLogSink(logger),
		manager:     manager,
		scheduler:   orchestrator.NewScheduler(manager, cfg.Cache.PruneInterval, logger),
		server:      server.NewServer(manager, cfg.Server.Port, logger),
		redisClient: redisClient,
		log:         logger,
	}, nil
}

// Manager returns the stability manager.
func (a *App) Manager() *orchestrator.Manager { return a.manager }

// Bus returns the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Start starts the event sink, background loops and HTTP server. It does
// not block.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	a.sub = a.bus.Subscribe(256)
	go a.sink.Run(ctx, a.sub)

	go func() {
		defer close(a.done)
		if err := a.scheduler.Run(ctx); err != nil {
			a.log.Error("Scheduler failed", "error", err)
		}
	}()

	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	return nil
}

// Stop stops the app and releases component resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping stability manager...")

	err := a.server.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			a.log.Warn("Scheduler did not stop in time")
		}
	}

	for _, name := range a.manager.Registry().Names() {
		if uerr := a.manager.Unregister(ctx, name); uerr != nil {
			a.log.Warn("Failed to unregister component", "name", name, "error", uerr)
		}
	}

	a.bus.Close()

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.log.Warn("Failed to close Redis", "error", cerr)
		}
	}
	return err
}
