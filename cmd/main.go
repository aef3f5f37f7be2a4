package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/thejerf/suture/v4"

	"github.com/okian/fanpulse/internal/adapters/http/api"
	"github.com/okian/fanpulse/internal/adapters/http/swagger"
	"github.com/okian/fanpulse/internal/adapters/repository"
	"github.com/okian/fanpulse/internal/adapters/storage"
	app "github.com/okian/fanpulse/internal/app"
	"github.com/okian/fanpulse/internal/config"
	"github.com/okian/fanpulse/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Supervisor tuning.
const (
	supervisorFailureThreshold = 5.0
	supervisorFailureDecay     = 30.0
	supervisorFailureBackoff   = 15 * time.Second
	supervisorTimeout          = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := run(); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Initialize logging
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWithOptions(logger.Options{Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	kv, store, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}

	// The service owns kv and store from here and closes them on Stop.
	svc := newService(cfg, kv, store, log)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		_ = kv.Close()
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	sup := newSupervisor(log)
	sup.Add(repository.NewSweeper(kv, cfg.SweepInterval(), log.Named("cache-sweeper")))
	sup.Add(newSystemMetricsUpdater(systemMetricsInterval))
	sup.Add(newServiceMetricsUpdater(svc, serviceMetricsInterval))
	supErr := sup.ServeBackground(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := <-supErr; err != nil && !errors.Is(err, context.Canceled) {
		log.Error(shutdownCtx, "supervisor stopped with error", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// openBackends opens the configured cache primitive and durable store. The
// durable store is always wrapped in a circuit breaker.
func openBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.KV, storage.Store, error) {
	var kv repository.KV
	switch cfg.CacheBackend {
	case config.BackendBadger:
		b, err := repository.NewBadgerStore(cfg.BadgerPath, repository.WithLogger(log.Named("badger-cache")))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open cache: %w", err)
		}
		kv = b
	default:
		kv = repository.NewMemStore(
			repository.WithShardCount(cfg.ShardCount),
			repository.WithLogger(log.Named("memstore")),
		)
	}

	var inner storage.Store
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath, log.Named("sqlite"))
		if err != nil {
			_ = kv.Close()
			return nil, nil, fmt.Errorf("failed to open durable store: %w", err)
		}
		inner = db
	default:
		inner = storage.NewMemory()
	}

	breaker := storage.DefaultBreakerConfig()
	breaker.FailureThreshold = uint32(cfg.BreakerFailureThreshold) //nolint:gosec // validated positive
	breaker.Timeout = cfg.BreakerTimeout()

	log.Info(ctx, "backends opened",
		logger.String("cache_backend", cfg.CacheBackend),
		logger.String("store_backend", cfg.StoreBackend),
	)
	return kv, storage.NewGuarded(inner, breaker, log.Named("durable-store")), nil
}

func newService(cfg *config.Config, kv repository.KV, store storage.Store, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithKV(kv),
		app.WithStore(store),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithLocationTTL(cfg.LocationTTL()),
		app.WithHeatmapPrecision(cfg.HeatmapPrecision),
		app.WithClusterThreshold(cfg.ClusterThreshold),
		app.WithMaxRecords(cfg.HeatmapMaxRecords),
		app.WithQueryTimeout(cfg.QueryTimeout()),
		app.WithLocation(cfg.Location()),
	)
}

// newRouter mounts the docs and business routes.
func newRouter(ctx context.Context, svc *app.Service, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	swagger.Register(ctx, r)
	api.NewServer(svc, svc, api.WithIngestRateLimit(cfg.IngestRateLimit)).Register(ctx, r)
	return r
}

// newSupervisor builds the root supervisor for background services.
func newSupervisor(log logger.Logger) *suture.Supervisor {
	events := log.Named("supervisor")
	return suture.New("fanpulse", suture.Spec{
		EventHook: func(e suture.Event) {
			events.Warn(context.Background(), "supervisor event",
				logger.Int("type", int(e.Type())),
				logger.String("event", e.String()),
				logger.Any("details", e.Map()),
			)
		},
		FailureThreshold: supervisorFailureThreshold,
		FailureDecay:     supervisorFailureDecay,
		FailureBackoff:   supervisorFailureBackoff,
		Timeout:          supervisorTimeout,
	})
}
