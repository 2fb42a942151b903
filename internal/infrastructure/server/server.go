package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/terminal/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/policy"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/audit"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	registry *registry.Manager
	audit    *audit.Store
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config

	closeOnce sync.Once
	closeErr  error
}

// Option customizes server construction
type Option func(*options)

type options struct {
	launcher shell.Launcher
	logger   *logging.Logger
}

// WithLauncher replaces the OS process launcher
func WithLauncher(l shell.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithLogger replaces the configured logger
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		l, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	logger.Info("Initializing terminal server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("base_dir", cfg.Terminal.BaseDir),
		zap.Bool("audit", cfg.Audit.Enabled),
	)

	// Initialize metrics first (needed by other components)
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(promRegistry)

	tracer := tracing.New("terminal", logger.Named("trace"))

	pol := policy.Default()
	if cfg.Terminal.PolicyFile != "" {
		p, err := policy.LoadFile(cfg.Terminal.PolicyFile)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to load command policy: %w", err)
		}
		pol = p
		logger.Info("Command policy loaded", zap.String("file", cfg.Terminal.PolicyFile))
	}

	launcher := o.launcher
	if launcher == nil {
		shellOpts := shell.DefaultOptions()
		if cfg.Terminal.MaxOutput > 0 {
			shellOpts.MaxOutput = int(cfg.Terminal.MaxOutput)
		}
		if cfg.Terminal.ExecTimeout > 0 {
			shellOpts.ExecTimeout = cfg.Terminal.ExecTimeout
		}
		launcher = shell.NewLauncher(shellOpts, logger.Named("shell"))
	}

	breaker := resilience.New("shell-spawn", resilience.Settings{
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.SetBreakerState(name, int(to))
			logger.Warn("Spawn breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	regOpts := []registry.Option{
		registry.WithLauncher(launcher),
		registry.WithPolicy(pol),
		registry.WithSpawnBreaker(breaker),
		registry.WithMetrics(metrics),
		registry.WithLogger(logger.Named("registry")),
	}

	var (
		store    *audit.Store
		auditLog apihttp.AuditLog
	)
	if cfg.Audit.Enabled {
		s, err := audit.Open(cfg.Audit.DBPath, logger.Named("audit"))
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		store, auditLog = s, s
		regOpts = append(regOpts, registry.WithRecorder(s))

		purgeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if n, err := s.PurgeOlderThan(purgeCtx, cfg.Audit.RetentionDays); err != nil {
			logger.Warn("Audit purge failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("Purged old audit records", zap.Int64("rows", n))
		}
		cancel()
		logger.Info("Command audit enabled", zap.String("db", cfg.Audit.DBPath))
	}

	sessions := registry.NewManager(registry.Config{
		BaseDir:            cfg.Terminal.BaseDir,
		Shell:              cfg.Terminal.Shell,
		IdleTimeout:        cfg.Terminal.IdleTimeout,
		ReapInterval:       cfg.Terminal.ReapInterval,
		MaxPerOwner:        cfg.Terminal.MaxSessions,
		HistoryLimit:       cfg.Terminal.HistoryLimit,
		DisableInteractive: cfg.Terminal.DisableInteractive,
	}, regOpts...)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(sessions, auditLog, metrics, logger.Named("http"))
	wsHandler := ws.NewHandler(sessions,
		ws.WithOrigins(cfg.CORS.AllowedOrigins),
		ws.WithMetrics(metrics),
		ws.WithTracer(tracer),
		ws.WithLogger(logger.Named("ws")),
	)

	// Register routes
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	api := router.Group("/api/terminal", middleware.Identify(cfg.Auth.UserHeader))
	api.GET("/ws", wsHandler.HandleConnection)
	handlers.RegisterRoutes(api, middleware.RequireToken(cfg.Auth.Token), middleware.RequireIdentity())

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		registry: sessions,
		audit:    store,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry
func (s *Server) Registry() *registry.Manager {
	return s.registry
}

// Run serves HTTP and reaps idle sessions until ctx is cancelled, then shuts
// down gracefully and releases every resource
func (s *Server) Run(ctx context.Context) error {
	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go s.registry.Run(reapCtx)

	httpServer := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var result error
	select {
	case err, ok := <-errCh:
		if ok {
			result = multierror.Append(result, fmt.Errorf("http server: %w", err))
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
		cancel()
	}

	stopReaper()
	if err := s.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Close destroys every session and releases the audit log, tracer, and
// logger. It is idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		var result error
		if err := s.registry.Shutdown(); err != nil {
			result = multierror.Append(result, fmt.Errorf("registry shutdown: %w", err))
		}
		if s.audit != nil {
			if err := s.audit.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close audit log: %w", err))
			}
		}
		s.tracer.Close()

		// Sync logger before exit
		_ = s.logger.Close()
		s.closeErr = result
	})
	return s.closeErr
}
