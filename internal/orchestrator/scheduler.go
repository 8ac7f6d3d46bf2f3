package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/stability/internal/core/worker"
)

// Scheduler runs the background loops: health probing, resource sampling
// and pruning of expired state.
type Scheduler struct {
	manager       *Manager
	pruneInterval time.Duration
	logger        *slog.Logger
}

// NewScheduler creates a scheduler for m.
func NewScheduler(m *Manager, pruneInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{manager: m, pruneInterval: pruneInterval, logger: logger}
}

// Run blocks until ctx is done or a loop fails.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.manager.monitor.Run(ctx)
	})
	g.Go(func() error {
		return s.manager.resources.Run(ctx)
	})
	g.Go(func() error {
		worker.NewPruner(s.pruneInterval, s.logger, s.manager).Start(ctx)
		return nil
	})

	s.logger.Info("scheduler started", "prune_interval", s.pruneInterval)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.logger.Info("scheduler stopped")
	return err
}
