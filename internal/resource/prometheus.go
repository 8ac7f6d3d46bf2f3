package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/vietddude/stability/internal/core/domain"
)

// --- PromQL Query Constants ---
const (
	// Busy CPU share across all cores over the last minute, in percent
	DefaultCPUQuery = `100 * (1 - avg(rate(node_cpu_seconds_total{mode="idle"}[1m])))`

	// Used memory share, in percent
	DefaultMemoryQuery = `100 * (1 - node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes)`
)

// PrometheusSampler reads usage from a Prometheus server.
type PrometheusSampler struct {
	client      v1.API
	cpuQuery    string
	memoryQuery string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewPrometheusSampler connects to the Prometheus HTTP API at promURL.
func NewPrometheusSampler(promURL string, logger *slog.Logger) (*PrometheusSampler, error) {
	client, err := api.NewClient(api.Config{
		Address: promURL,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Prometheus client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PrometheusSampler{
		client:      v1.NewAPI(client),
		cpuQuery:    DefaultCPUQuery,
		memoryQuery: DefaultMemoryQuery,
		timeout:     3 * time.Second,
		logger:      logger,
	}, nil
}

// WithQueries overrides the PromQL used for CPU and memory.
func (p *PrometheusSampler) WithQueries(cpu, memory string) *PrometheusSampler {
	if cpu != "" {
		p.cpuQuery = cpu
	}
	if memory != "" {
		p.memoryQuery = memory
	}
	return p
}

func (p *PrometheusSampler) Sample(ctx context.Context) (domain.ResourceSample, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	now := time.Now()
	cpu, err := p.query(ctx, p.cpuQuery, now)
	if err != nil {
		return domain.ResourceSample{}, err
	}
	mem, err := p.query(ctx, p.memoryQuery, now)
	if err != nil {
		return domain.ResourceSample{}, err
	}

	return domain.ResourceSample{
		CPUPercent:    clampPercent(cpu),
		MemoryPercent: clampPercent(mem),
		Timestamp:     now,
	}, nil
}

// query executes an instant query and returns the first sample value.
// An empty result reads as zero.
func (p *PrometheusSampler) query(ctx context.Context, query string, at time.Time) (float64, error) {
	result, warnings, err := p.client.Query(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("prometheus query error for %s: %w", query, err)
	}
	if len(warnings) > 0 {
		p.logger.Warn("prometheus query warnings", "query", query, "warnings", warnings)
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) > 0 {
			return float64(v[0].Value), nil
		}
	case *model.Scalar:
		return float64(v.Value), nil
	}
	return 0, nil
}
