package worker

import (
	"context"
	"log/slog"
	"time"
)

// Target is something holding expiring state.
type Target interface {
	Prune(ctx context.Context) int
}

// Pruner periodically drops expired state from its targets.
type Pruner struct {
	interval time.Duration
	targets  []Target
	logger   *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(interval time.Duration, logger *slog.Logger, targets ...Target) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		interval: interval,
		targets:  targets,
		logger:   logger,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.interval <= 0 || len(p.targets) == 0 {
		return // pruning disabled
	}

	interval := max(p.interval, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	total := 0
	for _, t := range p.targets {
		total += t.Prune(ctx)
	}
	if total > 0 {
		p.logger.Debug("[Pruner] dropped expired entries", "count", total)
	}
}
