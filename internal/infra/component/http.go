package component

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// HTTP calls a remote decision service with a JSON POST.
//
// The request body is {"id","kind","payload","time_limit_ms"} and the
// service answers {"decision": ..., "error": "..."}. Health is read from
// GET <endpoint>/health, which may answer {"score": 0.0-1.0}.
type HTTP struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewHTTP creates an HTTP-backed component.
func NewHTTP(name, endpoint string, timeout time.Duration) *HTTP {
	return &HTTP{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type httpDecisionRequest struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Payload     any    `json:"payload"`
	TimeLimitMs int64  `json:"time_limit_ms"`
}

type httpDecisionResponse struct {
	Decision any    `json:"decision"`
	Error    string `json:"error,omitempty"`
}

func (c *HTTP) Execute(ctx context.Context, req *domain.Request) (any, error) {
	jsonData, err := json.Marshal(httpDecisionRequest{
		ID:          req.ID,
		Kind:        req.Kind,
		Payload:     req.Payload,
		TimeLimitMs: req.TimeLimit.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s call: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429): %w", domain.ErrResourceExhausted)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var out httpDecisionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s: %s", c.name, out.Error)
	}
	return out.Decision, nil
}

func (c *HTTP) HealthCheck(ctx context.Context) (domain.HealthCheckResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return domain.HealthCheckResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.HealthCheckResult{}, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.HealthCheckResult{Score: 0, Status: domain.HealthUnhealthy}, nil
	}

	var payload struct {
		Score *float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Score == nil {
		return domain.HealthCheckResult{Score: 1}, nil
	}
	return domain.HealthCheckResult{Score: min(max(*payload.Score, 0), 1)}, nil
}

// Cleanup releases idle connections.
func (c *HTTP) Cleanup(context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}
