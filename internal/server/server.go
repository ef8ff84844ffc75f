package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/sitetrace/backend/internal/api/http"
	"github.com/GriffinCanCode/sitetrace/backend/internal/api/middleware"
	"github.com/GriffinCanCode/sitetrace/backend/internal/api/ws"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// untracedPrefixes are ingestion paths the SPA calls while reporting its own
// spans; tracing them would flood the store with collector spans
var untracedPrefixes = []string{
	"/api/spans",
	"/api/logs",
	"/api/stream",
	"/metrics",
	"/health",
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	handler  nethttp.Handler
	tracer   *tracing.Tracer
	hub      *ws.Hub
	otel     *tracing.OTelForwarder
	logger   *zap.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
}

// New creates a new server instance
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Initializing sitetrace collector",
		zap.String("port", cfg.Server.Port),
		zap.String("service", cfg.Tracing.Service),
	)

	// Initialize metrics first (needed by other components)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	hub := ws.NewHub(logger, metrics)

	opts := []tracing.Option{
		tracing.WithHistoryLimit(cfg.Tracing.HistoryLimit),
		tracing.WithMetricsWindow(cfg.Tracing.MetricsWindow),
		tracing.WithSpanTimeout(cfg.Tracing.SpanTimeout),
		tracing.WithRecorder(metrics),
		tracing.WithExporter(hub),
	}

	var forwarder *tracing.OTelForwarder
	if cfg.OTel.Enabled {
		fwd, err := tracing.NewOTLPForwarder(ctx, cfg.Tracing.Service)
		if err != nil {
			return nil, fmt.Errorf("failed to start otel forwarding: %w", err)
		}
		forwarder = fwd
		opts = append(opts, tracing.WithExporter(forwarder))
		logger.Info("Forwarding finished spans over OTLP")
	}

	tracer := tracing.New(cfg.Tracing.Service, logger, opts...)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			IdleTTL:           10 * time.Minute,
		}))
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(skipPrefixes(tracing.HTTPMiddleware(tracer), untracedPrefixes...))

	// Register routes
	http.NewHandlers(tracer, logger, metrics, hub).Register(router)
	router.GET("/api/stream", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// WebSocket upgrades bypass compression, which cannot hijack
	gz := gzhttp.GzipHandler(router)
	handler := nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		handler:  handler,
		tracer:   tracer,
		hub:      hub,
		otel:     forwarder,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() nethttp.Handler {
	return s.handler
}

// Tracer returns the collector's tracer
func (s *Server) Tracer() *tracing.Tracer {
	return s.tracer
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, running span maintenance alongside.
// It returns after the HTTP server has shut down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &nethttp.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.tracer.RunMaintenance(ctx, s.config.Tracing.CleanupInterval, s.config.Tracing.MaxAge)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down server...")
		s.hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close flushes forwarded spans and syncs the logger
func (s *Server) Close(ctx context.Context) error {
	var err error
	if s.otel != nil {
		if ferr := s.otel.Shutdown(ctx); ferr != nil {
			s.logger.Error("Failed to flush otel spans", zap.Error(ferr))
			err = fmt.Errorf("failed to flush otel spans: %w", ferr)
		}
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return err
}

func skipPrefixes(next gin.HandlerFunc, prefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}
		next(c)
	}
}
