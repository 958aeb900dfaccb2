package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/health"
	"github.com/sedori-tools/repricer/internal/metrics"
	"github.com/sedori-tools/repricer/internal/ratelimit"
)

// RouterConfig wires the HTTP surface. Health and Limiter may be nil.
type RouterConfig struct {
	Handler   *Handler
	Health    *health.Service
	Limiter   ratelimit.RateLimiter
	RateLimit ratelimit.Config
	Logger    *zap.Logger
}

// NewRouter builds the gin engine serving the API
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestContext(), accessLog(cfg.Logger), metrics.GinMiddleware())

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}

	v1 := r.Group("/api/v1")
	if cfg.Limiter != nil {
		v1.Use(ratelimit.GinMiddleware(cfg.Limiter, cfg.RateLimit))
	}
	cfg.Handler.SetupRoutes(v1)

	return r
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the API until shut down
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown is called
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown error: %w", err)
	}
	return nil
}
