package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openctemio/sipguard/internal/config"
	"github.com/openctemio/sipguard/internal/infra/http/handler"
	"github.com/openctemio/sipguard/internal/infra/http/middleware"
	"github.com/openctemio/sipguard/pkg/logger"
)

// Paths served by the worker listener.
const (
	PathHealth  = "/healthz"
	PathReady   = "/readyz"
	PathMetrics = "/metrics"
)

// Server is the worker's health and metrics listener.
type Server struct {
	httpServer *http.Server
	router     Router
	config     *config.ServerConfig
	logger     *logger.Logger
}

// ServerOption is a function that configures the server.
type ServerOption func(*Server)

// WithRouter sets a custom router implementation.
func WithRouter(r Router) ServerOption {
	return func(s *Server) {
		s.router = r
	}
}

// NewServer creates the listener and registers the probe and scrape routes.
func NewServer(cfg *config.ServerConfig, health *handler.HealthHandler, log *logger.Logger, isProduction bool, opts ...ServerOption) *Server {
	s := &Server{
		config: cfg,
		logger: log.With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.router == nil {
		s.router = NewChiRouter()
	}

	s.router.Use(
		middleware.Recovery(s.logger, isProduction),
		middleware.RequestID(),
		middleware.Metrics(PathHealth, PathReady),
		middleware.Logger(s.logger, middleware.DefaultSkipPaths...),
	)

	s.router.GET(PathHealth, health.Health)
	s.router.GET(PathReady, health.Ready)
	s.router.Handle(PathMetrics, promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       time.Minute,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the router for registering extra handlers.
func (s *Server) Router() Router {
	return s.router
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Serve serves on an existing listener until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
