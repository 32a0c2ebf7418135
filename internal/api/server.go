package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/middleware"
)

// Analyzer runs the intake-to-treatment-plan pipeline
type Analyzer interface {
	Analyze(ctx context.Context, payload []byte, requestID string) (*domain.AnalysisOutcome, error)
}

// Reviewer reads stored analyses and changes their review status
type Reviewer interface {
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, filter domain.AnalysisFilter) ([]*domain.AnalysisRecord, error)
	UpdateStatus(ctx context.Context, id, rawStatus string) (*domain.AnalysisRecord, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes circuit breaker states for readiness checks
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// Dependencies groups the services the HTTP layer delegates to. Store and
// Breakers may be nil.
type Dependencies struct {
	Analyzer Analyzer
	Reviews  Reviewer
	Store    Pinger
	Breakers BreakerReporter
	Version  string
}

// Server represents the HTTP server
type Server struct {
	config domain.ServerConfig
	deps   Dependencies
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(config domain.ServerConfig, deps Dependencies, logger *logrus.Logger) *Server {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware(config.AllowedOrigins))
	router.Use(middleware.BodyLimit(maxBodyBytes(config)))
	router.Use(middleware.RequestTimeout(config.RequestTimeout))

	server := &Server{
		config: config,
		deps:   deps,
		logger: logger,
		router: router,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/analyses", s.handleListAnalyses)
		v1.GET("/analyses/:id", s.handleGetAnalysis)
		v1.POST("/analyses/:id/status", s.handleUpdateStatus)
	}

	s.router.NoRoute(func(c *gin.Context) {
		writeError(c, domain.NewAPIError(domain.ErrResourceNotFound, "route not found", middleware.GetRequestID(c)), http.StatusNotFound)
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader, middleware.CorrelationIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func maxBodyBytes(config domain.ServerConfig) int64 {
	if config.MaxBodyBytes > 0 {
		return config.MaxBodyBytes
	}
	return 1 << 20
}
