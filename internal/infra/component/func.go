// Package component adapts in-process functions, simulated models and
// remote services to domain.Component.
package component

import (
	"context"

	"github.com/vietddude/stability/internal/core/domain"
)

// ExecuteFunc produces a decision for a request.
type ExecuteFunc func(ctx context.Context, req *domain.Request) (any, error)

// HealthFunc reports component health.
type HealthFunc func(ctx context.Context) (domain.HealthCheckResult, error)

// Func wraps plain functions. A nil Health reports a perfect score.
type Func struct {
	Exec   ExecuteFunc
	Health HealthFunc
}

func (f Func) Execute(ctx context.Context, req *domain.Request) (any, error) {
	return f.Exec(ctx, req)
}

func (f Func) HealthCheck(ctx context.Context) (domain.HealthCheckResult, error) {
	if f.Health == nil {
		return domain.HealthCheckResult{Score: 1}, nil
	}
	return f.Health(ctx)
}
