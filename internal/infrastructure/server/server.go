package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/shellhost/internal/api/http"
	"github.com/GriffinCanCode/shellhost/internal/api/middleware"
	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
	"github.com/GriffinCanCode/shellhost/internal/ws"
)

// Options overrides collaborators normally built from configuration.
type Options struct {
	// Spawner replaces the process spawner; tests pass a fake.
	Spawner terminal.Spawner
	// Logger replaces the logger built from cfg.Logging.
	Logger *logging.Logger
}

// Server wraps the HTTP server and dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	router   *gin.Engine
	registry *window.Registry
	hub      *ws.Hub
	metrics  *monitoring.Metrics
	http     *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging, "serve")
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Initializing shellhost server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("pty", cfg.Shell.PTY),
		zap.String("profiles", cfg.Shell.ProfilesPath),
	)

	profiles, err := loadProfiles(cfg.Shell)
	if err != nil {
		return nil, err
	}

	// Metrics live on a private registry so several servers can coexist.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(promReg)
	diagnostics := monitoring.NewDiagnostics(logger.Named("diagnostics"), metrics)

	hub := ws.NewHub(ws.Options{
		QueueLimit:   cfg.Window.QueueLimit,
		WriteTimeout: cfg.Window.WriteTimeout,
		Logger:       logger.Logger,
	})
	registry := window.NewRegistry(id.NewAllocator(), hub, window.Options{
		Spawner:     opts.Spawner,
		Profiles:    profiles,
		Shell:       terminal.Options{InitTimeout: cfg.Shell.InitTimeout},
		DefaultSize: window.SizeSpec{Width: cfg.Window.Width, Height: cfg.Window.Height},
		Diagnostics: diagnostics,
		Metrics:     metrics,
		Logger:      logger.Logger,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics, "/metrics"))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			IdleTTL:           cfg.RateLimit.IdleTTL,
		}))
	}

	api.NewHandlers(registry, metrics, logger.Logger).Register(router)

	wsHandler := ws.NewHandler(registry, hub, ws.HandlerOptions{
		CloseOnDisconnect: cfg.Window.CloseOnDisconnect,
		Diagnostics:       diagnostics,
		Metrics:           metrics,
		Logger:            logger.Logger,
	})
	router.GET("/windows/:channel/stream", wsHandler.HandleStream)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})))

	logger.Info("Server initialized successfully")

	return &Server{
		config:   cfg,
		logger:   logger,
		router:   router,
		registry: registry,
		hub:      hub,
		metrics:  metrics,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func loadProfiles(cfg config.ShellConfig) (*terminal.ProfileSet, error) {
	profiles := terminal.DefaultProfiles(cfg.PTY)
	if cfg.ProfilesPath != "" {
		var err error
		if profiles, err = terminal.LoadProfiles(cfg.ProfilesPath); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultProfile != "" {
		profiles.Default = cfg.DefaultProfile
		if _, err := profiles.Lookup(""); err != nil {
			return nil, fmt.Errorf("default profile: %w", err)
		}
	}
	return profiles, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the window registry.
func (s *Server) Registry() *window.Registry { return s.registry }

// Metrics returns the server's metrics.
func (s *Server) Metrics() *monitoring.Metrics { return s.metrics }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and closes every window.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case err := <-errCh:
		s.registry.CloseAll()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	// Windows go first so attached displays see their close frames
	// before the listener stops.
	s.registry.CloseAll()
	err := s.http.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	s.logger.Info("Server stopped")
	return err
}

// Close releases the logger.
func (s *Server) Close() {
	s.logger.Close()
}
