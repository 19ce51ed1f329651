// Package server exposes the orchestrator over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// Server provides the agentd API endpoints.
type Server struct {
	echo   *echo.Echo
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	config *Config
}

// Config holds the listener configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the API server over an orchestrator.
func NewServer(orch *orchestrator.Orchestrator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8745,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		orch:   orch,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/ws", s.handleWorkflow)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/execute", s.handleExecute)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string   `json:"status"`
	Agents []string `json:"agents"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Agents: s.orch.Agents(),
	})
}

// ExecuteRequest is the request body for POST /api/v1/execute.
type ExecuteRequest struct {
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

// ExecuteResponse carries either the agent's result or an error message.
// Execution failures are data, not HTTP errors: the endpoint answers 200
// with the error field set so IPC clients distinguish transport problems
// from agent problems by shape alone.
type ExecuteResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleExecute(c echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid execute request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Agent == "" || req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent and task fields are required")
	}

	result, err := s.orch.RunSingleTask(c.Request().Context(), req.Agent, req.Task)
	if err != nil {
		s.logger.Warn("single task failed",
			zap.String("agent", req.Agent),
			zap.Error(err),
		)
		return c.JSON(http.StatusOK, ExecuteResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ExecuteResponse{Result: result})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting api server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	return s.echo.Shutdown(ctx)
}
