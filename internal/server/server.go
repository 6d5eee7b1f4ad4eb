// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/halcyonlabs/agenttrust/internal/auth"
	"github.com/halcyonlabs/agenttrust/internal/config"
	"github.com/halcyonlabs/agenttrust/internal/identity"
	"github.com/halcyonlabs/agenttrust/internal/idgen"
	"github.com/halcyonlabs/agenttrust/internal/logging"
	"github.com/halcyonlabs/agenttrust/internal/metrics"
	"github.com/halcyonlabs/agenttrust/internal/ratelimit"
	"github.com/halcyonlabs/agenttrust/internal/realtime"
	"github.com/halcyonlabs/agenttrust/internal/reputation"
	"github.com/halcyonlabs/agenttrust/internal/security"
	"github.com/halcyonlabs/agenttrust/internal/traces"
	"github.com/halcyonlabs/agenttrust/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	identities     identity.Store
	feedback       *reputation.Service
	validations    *validation.Service
	authMgr        *auth.Manager
	realtimeHub    *realtime.Hub
	rateLimiter    *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	tracerShutdown func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		identityStore   identity.Store
		feedbackStore   reputation.Store
		validationStore validation.Store
		tokenStore      auth.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		identityStore = identity.NewPostgresStore(db)
		feedbackStore = reputation.NewPostgresStore(db)
		validationStore = validation.NewPostgresStore(db)
		tokenStore = auth.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		identityStore = identity.NewMemoryStore()
		feedbackStore = reputation.NewMemoryStore()
		validationStore = validation.NewMemoryStore()
		tokenStore = auth.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.identities = identityStore
	s.feedback = reputation.NewService(feedbackStore, identityStore)
	s.validations = validation.NewService(validationStore, identityStore)
	s.authMgr = auth.NewManager(tokenStore)
	s.logger.Info("ownership token authentication enabled")

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(strings.Split(s.cfg.AllowedOrigins, ",")))

	// Request size limit (1MB)
	s.router.Use(security.RequestSizeMiddleware(security.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	rlCfg.BurstSize = s.cfg.RateLimitRPS
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	identityHandler := identity.NewHandler(s.identities, s.authMgr, &identityEventEmitter{s.realtimeHub})
	identityHandler.RegisterRoutes(v1, s.authMgr)

	feedbackHandler := reputation.NewHandler(s.feedback, &feedbackEventEmitter{s.realtimeHub})
	feedbackHandler.RegisterRoutes(v1, s.authMgr)

	validationHandler := validation.NewHandler(s.validations, &validationEventEmitter{s.realtimeHub})
	validationHandler.RegisterRoutes(v1)

	// Registry-wide stats
	v1.GET("/stats", s.statsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["storage"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Agenttrust",
		"description": "Identity, reputation and validation registry for AI agents",
		"version":     "0.1.0",
	})
}

// statsHandler returns registry-wide counts plus realtime hub stats
func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	agents, err := s.identities.Count(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to count agents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get registry stats",
		})
		return
	}

	stats := gin.H{
		"totalAgents": agents,
		"updatedAt":   time.Now().UTC().Format(time.RFC3339),
	}

	if n, err := s.feedback.Count(ctx); err == nil {
		stats["totalFeedback"] = n
	}
	if n, err := s.validations.Count(ctx); err == nil {
		stats["totalValidations"] = n
	}
	if s.realtimeHub != nil {
		stats["realtime"] = s.realtimeHub.Stats()
	}

	c.JSON(http.StatusOK, stats)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no OTLP endpoint configured)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracerShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	return idgen.Hex(16)
}

// -----------------------------------------------------------------------------
// Event emitter adapters
// -----------------------------------------------------------------------------

// identityEventEmitter adapts realtime.Hub to identity.EventEmitter
type identityEventEmitter struct {
	hub *realtime.Hub
}

func (e *identityEventEmitter) EmitAgentRegistered(agent *identity.Identity) {
	metrics.AgentsRegisteredTotal.Inc()
	if e.hub != nil {
		e.hub.BroadcastEvent(realtime.EventAgentRegistered, map[string]interface{}{
			"agentId": agent.ID,
			"owner":   agent.OwnerAddress,
			"domain":  agent.Domain,
		})
	}
}

func (e *identityEventEmitter) EmitCardUpdated(agent *identity.Identity) {
	metrics.CardUpdatesTotal.Inc()
	if e.hub != nil {
		e.hub.BroadcastEvent(realtime.EventAgentCardUpdated, map[string]interface{}{
			"agentId": agent.ID,
			"cardURI": agent.CardURI,
		})
	}
}

// feedbackEventEmitter adapts realtime.Hub to reputation.EventEmitter
type feedbackEventEmitter struct {
	hub *realtime.Hub
}

func (e *feedbackEventEmitter) EmitFeedbackSubmitted(fb *reputation.Feedback) {
	metrics.FeedbackSubmittedTotal.Inc()
	if e.hub != nil {
		e.hub.BroadcastEvent(realtime.EventFeedbackSubmitted, map[string]interface{}{
			"feedbackId": fb.ID,
			"serverId":   fb.ServerID,
			"clientId":   fb.ClientID,
		})
	}
}

func (e *feedbackEventEmitter) EmitFeedbackRevoked(fb *reputation.Feedback) {
	metrics.FeedbackRevokedTotal.Inc()
	if e.hub != nil {
		e.hub.BroadcastEvent(realtime.EventFeedbackRevoked, map[string]interface{}{
			"feedbackId": fb.ID,
			"serverId":   fb.ServerID,
			"clientId":   fb.ClientID,
		})
	}
}

// validationEventEmitter adapts realtime.Hub to validation.EventEmitter
type validationEventEmitter struct {
	hub *realtime.Hub
}

func (e *validationEventEmitter) EmitValidationSubmitted(v *validation.Validation) {
	metrics.ValidationsTotal.WithLabelValues(v.ResultCode.String()).Inc()
	if e.hub != nil {
		e.hub.BroadcastEvent(realtime.EventValidationSubmitted, map[string]interface{}{
			"agentId":     v.AgentID,
			"validator":   v.ValidatorAddr,
			"result":      v.ResultCode.String(),
			"requestHash": v.RequestHash,
		})
	}
}
