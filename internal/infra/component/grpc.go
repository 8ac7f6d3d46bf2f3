package component

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/stability/internal/core/domain"
)

// GRPC calls a unary method taking and returning google.protobuf.Struct.
// The reply's "decision" field, when present, is the decision; otherwise
// the whole reply is. Health uses the standard grpc.health.v1 service.
type GRPC struct {
	name   string
	method string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewGRPC creates a gRPC-backed component. TLS is used when useTLS is set
// or the endpoint is https:// or port 443.
func NewGRPC(name, endpoint, method string, useTLS bool, opts ...grpc.DialOption) (*GRPC, error) {
	target := endpoint
	if useTLS || strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return &GRPC{
		name:   name,
		method: method,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

func (c *GRPC) Execute(ctx context.Context, req *domain.Request) (any, error) {
	payload, err := toStructValue(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":            structpb.NewStringValue(req.ID),
		"kind":          structpb.NewStringValue(req.Kind),
		"payload":       payload,
		"time_limit_ms": structpb.NewNumberValue(float64(req.TimeLimit.Milliseconds())),
	}}
	out := &structpb.Struct{}

	if err := c.conn.Invoke(ctx, c.method, in, out); err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, c.method, err)
	}

	reply := out.AsMap()
	if decision, ok := reply["decision"]; ok {
		return decision, nil
	}
	return reply, nil
}

func (c *GRPC) HealthCheck(ctx context.Context) (domain.HealthCheckResult, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return domain.HealthCheckResult{}, fmt.Errorf("health check: %w", err)
	}
	switch resp.GetStatus() {
	case healthpb.HealthCheckResponse_SERVING:
		return domain.HealthCheckResult{Score: 1}, nil
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return domain.HealthCheckResult{Score: 0, Status: domain.HealthOffline}, nil
	default:
		return domain.HealthCheckResult{Score: 0.5}, nil
	}
}

// Cleanup closes the connection.
func (c *GRPC) Cleanup(context.Context) error {
	return c.conn.Close()
}

// toStructValue converts any JSON-representable payload.
func toStructValue(v any) (*structpb.Value, error) {
	if v == nil {
		return structpb.NewNullValue(), nil
	}
	if sv, err := structpb.NewValue(v); err == nil {
		return sv, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
