package fallback

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/stability/internal/core/domain"
)

// emergencyConstant is returned when even the emergency logic fails.
var emergencyConstant = map[string]any{
	"action":   "noop",
	"strategy": StrategyEmergency,
}

// Emergency is the last resort: pure logic with no I/O.
type Emergency struct {
	quality float64
	decide  DecideFunc
	logger  *slog.Logger
}

func NewEmergency(quality float64, decide DecideFunc, logger *slog.Logger) *Emergency {
	if decide == nil {
		decide = emergencyDecision
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emergency{quality: quality, decide: decide, logger: logger}
}

func emergencyDecision(req *domain.Request) (any, error) {
	return map[string]any{
		"kind":     req.Kind,
		"action":   "default",
		"strategy": StrategyEmergency,
	}, nil
}

func (e *Emergency) QualityScore() float64 { return e.quality }
func (e *Emergency) Reliability() float64  { return 1.0 }
func (e *Emergency) Degradation() float64  { return 1 - e.quality }

// Decide always returns a decision. The error is non-nil when the constant
// response had to be used.
func (e *Emergency) Decide(req *domain.Request) (decision any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrEmergencyFallbackFailure, r)
		}
		if err != nil {
			e.logger.Error("emergency fallback failed, returning constant response",
				"request_id", req.ID,
				"error", err,
			)
			decision = emergencyConstant
		}
	}()

	decision, err = e.decide(req)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrEmergencyFallbackFailure, err)
	}
	return decision, err
}
