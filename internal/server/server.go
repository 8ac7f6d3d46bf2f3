// Package server exposes the stability manager over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/stability/internal/core/domain"
	"github.com/vietddude/stability/internal/orchestrator"
)

// Status is the aggregated service status.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Server provides the decision API plus health and metrics endpoints.
type Server struct {
	manager *orchestrator.Manager
	engine  *gin.Engine
	server  *http.Server
	logger  *slog.Logger
}

// NewServer creates a new server listening on port.
func NewServer(manager *orchestrator.Manager, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(recoveryMiddleware(logger), loggingMiddleware(logger))

	s := &Server{
		manager: manager,
		engine:  engine,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/health/components", s.handleComponents)
	engine.GET("/throttle", s.handleThrottle)
	engine.POST("/throttle/emergency", s.handleEmergency)
	engine.POST("/decide", s.handleDecide)
	engine.POST("/workloads", s.handleRegisterWorkload)
	engine.DELETE("/workloads/:id", s.handleUnregisterWorkload)
	engine.GET("/workloads/:id/hints", s.handleHints)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// aggregate folds component health and throttle state into one status.
// Worst case wins.
func (s *Server) aggregate() Status {
	if s.manager.Resources().Throttle().Level() == domain.ThrottleEmergency {
		return StatusCritical
	}

	records := s.manager.Monitor().Snapshot()
	status := StatusHealthy
	usable := 0
	for _, rec := range records {
		if rec.Circuit != domain.CircuitOpen && rec.Status != domain.HealthOffline {
			usable++
		}
		if rec.Status != domain.HealthHealthy || rec.Circuit != domain.CircuitClosed {
			status = StatusDegraded
		}
	}
	if len(records) > 0 && usable == 0 {
		return StatusCritical
	}
	if s.manager.Resources().Throttle().Level() >= domain.ThrottleAggressive {
		status = StatusDegraded
	}
	return status
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.aggregate()
	code := http.StatusOK
	if status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"throttle": s.manager.Resources().Throttle().Level().String(),
	})
}

func (s *Server) handleComponents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"components": s.manager.Monitor().Snapshot()})
}

func (s *Server) handleThrottle(c *gin.Context) {
	res := s.manager.Resources()
	latest, _ := res.Latest()
	c.JSON(http.StatusOK, gin.H{
		"state":    res.Throttle(),
		"level":    res.Throttle().Level().String(),
		"latest":   latest,
		"forecast": res.Forecast(0),
		"policies": res.Policies(),
	})
}

type emergencyRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEmergency(c *gin.Context) {
	var body emergencyRequest
	// an empty body is allowed; a malformed one is not
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "manual trigger"
	}
	state := s.manager.Resources().TriggerEmergency(c.Request.Context(), body.Reason)
	c.JSON(http.StatusOK, gin.H{"state": state, "level": state.Level().String()})
}

// DecideRequest is the body of POST /decide.
type DecideRequest struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind" binding:"required"`
	Payload      map[string]any `json:"payload"`
	TimeLimitMs  int64          `json:"timeLimit"` // milliseconds
	Tier         string         `json:"tier"`
	Category     string         `json:"category"`
	Capabilities []string       `json:"capabilities"`
}

func (r DecideRequest) toDomain() (*domain.Request, error) {
	req := domain.NewRequest(r.Kind, r.Payload, time.Duration(r.TimeLimitMs)*time.Millisecond)
	if r.ID != "" {
		req.ID = r.ID
	}
	if r.Tier != "" {
		tier, err := domain.ParseTier(r.Tier)
		if err != nil {
			return nil, err
		}
		req.Tier = tier
	}
	req.Category = r.Category
	req.RequiredCapabilities = r.Capabilities
	return req, nil
}

func (s *Server) handleDecide(c *gin.Context) {
	var body DecideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := body.toDomain()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.manager.Handle(c.Request.Context(), req))
}

func (s *Server) handleRegisterWorkload(c *gin.Context) {
	var w domain.Workload
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := s.manager.Resources().RegisterWorkload(w)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleUnregisterWorkload(c *gin.Context) {
	if !s.manager.Resources().UnregisterWorkload(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "workload not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHints(c *gin.Context) {
	hints, err := s.manager.Resources().Hints(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hints)
}
