// Package server exposes hydra's status over HTTP: health, the device pool,
// recent runs and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/hydra/internal/devices"
	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/internal/state"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// AuditReader is the part of the state store the server reads.
type AuditReader interface {
	state.RunStore
	state.AssignmentStore
}

// Config holds the server's collaborators.
type Config struct {
	Addr string
	Pool *devices.Pool
	// Audit is optional; without it the /runs routes answer 404.
	Audit AuditReader
	// Gatherer defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	cfg    Config
	engine *gin.Engine
	logger *slog.Logger
}

// ClassHealth summarizes the devices of one class.
type ClassHealth struct {
	Total int `json:"total"`
	Open  int `json:"open"`
}

// Health is the /healthz body.
type Health struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Devices   map[string]ClassHealth `json:"devices"`
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Pool == nil {
		cfg.Pool = devices.NewPool()
	}
	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		logger: logging.Component(cfg.Logger, "server"),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/devices", s.devices)
	s.engine.GET("/runs", s.runs)
	s.engine.GET("/runs/:id", s.run)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	h := Health{
		Status:    "ok",
		Timestamp: time.Now(),
		Devices:   make(map[string]ClassHealth, len(models.Classes)),
	}

	open := 0
	for _, class := range models.Classes {
		var ch ClassHealth
		for _, d := range s.cfg.Pool.ForClass(class) {
			ch.Total++
			if d.Status == models.DeviceOpen {
				ch.Open++
			}
		}
		open += ch.Open
		h.Devices[string(class)] = ch
	}

	code := http.StatusOK
	if open == 0 {
		h.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

func (s *Server) devices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": s.cfg.Pool.All()})
}

func (s *Server) runs(c *gin.Context) {
	if s.cfg.Audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit store disabled"})
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := s.cfg.Audit.ListRuns(limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	if runs == nil {
		runs = []state.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) run(c *gin.Context) {
	if s.cfg.Audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit store disabled"})
		return
	}
	id := c.Param("id")
	run, err := s.cfg.Audit.GetRun(id)
	if err != nil {
		s.logger.Error("get run", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get run failed"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	assignments, err := s.cfg.Audit.ListAssignments(id)
	if err != nil {
		s.logger.Error("list assignments", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list assignments failed"})
		return
	}
	if assignments == nil {
		assignments = []state.Assignment{}
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "assignments": assignments})
}
