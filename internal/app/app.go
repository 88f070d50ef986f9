// Package app assembles the gateway's dependencies into a single
// process lifecycle: configuration, backend pool, pub/sub hub, router,
// and HTTP server, started and stopped together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gateway/internal/acl"
	"gateway/internal/backend"
	"gateway/internal/config"
	"gateway/internal/infrastructure"
	gwmiddleware "gateway/internal/middleware"
	"gateway/internal/pubsub"
	handlers "gateway/internal/transport/http"
	"gateway/pkg/contracts"
)

// Application is the process-scoped container spec.md §9 describes:
// the pub/sub registry and connection pool are created before the
// listener binds and dropped after it stops, with no lazy globals.
type Application struct {
	Config *config.Config
	Logger *slog.Logger

	Pool *backend.Pool
	Hub  *pubsub.Hub

	Router chi.Router
	Server *http.Server

	OTel *infrastructure.OTelProviders
}

// NewApplication loads configuration and wires every dependency, but
// does not bind the listener or start background tasks; call Start for
// that.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("gateway starting",
		slog.String("version", contracts.Version),
		slog.Int("http_port", cfg.HTTPPort),
		slog.Int("pool_capacity", cfg.PoolCapacity()))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize otel: %w", err)
	}

	pool, err := backend.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize backend pool: %w", err)
	}

	hub := pubsub.New(pool.Client(), logger)
	evaluator := acl.New(cfg.ACL)

	app := &Application{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Hub:    hub,
		OTel:   otelProviders,
	}
	app.setupRouter(evaluator)
	app.createServer()

	return app, nil
}

func (a *Application) setupRouter(evaluator *acl.Evaluator) {
	r := chi.NewRouter()
	r.Use(gwmiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(gwmiddleware.StructuredLogger(a.Logger))
	r.Use(gwmiddleware.Recoverer(a.Logger))
	r.Use(gwmiddleware.CORS)
	if a.Config.RateLimit.RPS > 0 {
		limiter := gwmiddleware.NewRateLimiter(a.Config.RateLimit.RPS, a.Config.RateLimit.Burst, a.Logger)
		r.Use(limiter.Handler)
	}

	r.Mount("/metrics", a.OTel.PrometheusHTTP)
	r.Mount("/", handlers.NewRouter(a.Config, a.Pool, evaluator, a.Hub, a.Logger))

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.HTTPHost, a.Config.HTTPPort),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start binds the listener and launches the pub/sub background task.
// It returns once the server goroutine is launched; ListenAndServe
// errors are logged and trigger cancel so Run's caller sees the
// process wind down instead of hanging.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Hub.Start(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "gateway started", slog.String("address", a.Server.Addr))
	return nil
}

// Stop gracefully drains the HTTP server, then the pub/sub hub and
// backend pool, bounded by Server.ShutdownTimeout.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "gateway shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.Hub.Close()

	if err := a.Pool.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "error closing backend pool", slog.String("error", err.Error()))
	}

	if a.OTel != nil {
		if err := a.OTel.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down otel", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "gateway shutdown complete")
	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM, then
// shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(ctx)
}
