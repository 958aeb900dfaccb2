package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/log"
)

// Checker reports whether one dependency is usable
type Checker func(ctx context.Context) error

// ComponentStatus is the outcome of one check
type ComponentStatus struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Service provides health check endpoints
type Service struct {
	mu       sync.RWMutex
	checks   map[string]Checker
	critical map[string]bool
	started  time.Time
	timeout  time.Duration
	logger   *zap.Logger
}

// NewService creates a new health check service
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		checks:   make(map[string]Checker),
		critical: make(map[string]bool),
		started:  time.Now(),
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// Register adds a named check. Critical checks gate readiness.
func (s *Service) Register(name string, critical bool, check Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
	s.critical[name] = critical
}

// RegisterRoutes registers health check routes
func (s *Service) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", s.healthCheck)
	router.GET("/health/ready", s.readinessCheck)
	router.GET("/health/live", s.livenessCheck)
}

// Check runs every registered check
func (s *Service) Check(ctx context.Context) map[string]ComponentStatus {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	out := make(map[string]ComponentStatus, len(names))
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		start := time.Now()
		err := check(cctx)
		cancel()

		st := ComponentStatus{Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			st.Status = "unhealthy"
			st.Error = err.Error()
			log.With(ctx, s.logger).Warn("Health check failed", zap.String("component", name), zap.Error(err))
		}
		out[name] = st
	}
	return out
}

func (s *Service) healthCheck(c *gin.Context) {
	start := time.Now()
	statuses := s.Check(c.Request.Context())

	healthy := true
	for _, st := range statuses {
		if st.Status != "healthy" {
			healthy = false
			break
		}
	}

	response := gin.H{
		"status":     overallStatus(healthy),
		"timestamp":  time.Now().Format(time.RFC3339),
		"duration":   time.Since(start).String(),
		"components": statuses,
	}
	if healthy {
		c.JSON(http.StatusOK, response)
		return
	}
	c.JSON(http.StatusServiceUnavailable, response)
}

func (s *Service) readinessCheck(c *gin.Context) {
	statuses := s.Check(c.Request.Context())

	ready := true
	s.mu.RLock()
	for name, st := range statuses {
		if s.critical[name] && st.Status != "healthy" {
			ready = false
			break
		}
	}
	s.mu.RUnlock()

	response := gin.H{
		"status":    overallStatus(ready),
		"timestamp": time.Now().Format(time.RFC3339),
		"ready":     ready,
	}
	if ready {
		c.JSON(http.StatusOK, response)
		return
	}
	c.JSON(http.StatusServiceUnavailable, response)
}

func (s *Service) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

func overallStatus(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}
