package events

import (
	"context"
	"log/slog"

	"github.com/vietddude/stability/internal/core/domain"
)

// LogSink writes every received event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Run drains sub until ctx is done or the subscription closes.
func (s *LogSink) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			s.log(ctx, ev)
		}
	}
}

func (s *LogSink) log(ctx context.Context, ev domain.Event) {
	level := slog.LevelInfo
	switch ev.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityError, domain.SeverityCritical:
		level = slog.LevelError
	}

	// resource-metrics fires every sample; keep it out of info logs
	if ev.Type == domain.EventResourceMetrics {
		level = slog.LevelDebug
	}

	attrs := []any{"type", string(ev.Type), "id", ev.ID}
	if ev.Component != "" {
		attrs = append(attrs, "component", ev.Component)
	}
	for k, v := range ev.Data {
		attrs = append(attrs, k, v)
	}
	s.logger.Log(ctx, level, "event", attrs...)
}
