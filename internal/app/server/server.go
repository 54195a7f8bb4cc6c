package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shiftwatch/internal/domain/attendance"
	"shiftwatch/internal/domain/audit"
	"shiftwatch/internal/domain/core"
	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/domain/reports"
	"shiftwatch/internal/domain/zones"
	"shiftwatch/internal/platform/config"
	cryptoutil "shiftwatch/internal/platform/crypto"
	"shiftwatch/internal/platform/db"
	"shiftwatch/internal/platform/device"
	"shiftwatch/internal/platform/jobs"
	"shiftwatch/internal/platform/ledger"
	"shiftwatch/internal/platform/logging"
	"shiftwatch/internal/platform/messaging"
	"shiftwatch/internal/platform/metrics"
	enginehandler "shiftwatch/internal/transport/http/handlers/engine"
	"shiftwatch/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Run wires the engine and serves the ops API until ctx is cancelled.
// Only startup failures are returned; the loops themselves never abort
// the process.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	if !crypto.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set; device passwords are read as plaintext")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	guard, closeGuard, err := ledger.New(ctx, cfg, pool)
	if err != nil {
		return fmt.Errorf("dispatch guard: %w", err)
	}
	defer func() {
		if err := closeGuard(); err != nil {
			slog.Warn("dispatch guard close failed", "err", err)
		}
	}()

	coreStore := core.NewStore(pool, crypto)
	attendanceStore := attendance.NewStore(pool)
	notifyStore := notify.NewStore(pool)
	cursorStore := zones.NewCursorStore(pool)

	gateway := device.NewClient(device.Options{
		Timeout:        cfg.DeviceTimeout,
		PageSize:       cfg.DevicePageSize,
		MaxRetries:     cfg.DeviceMaxRetries,
		BreakerTimeout: cfg.DeviceBreakerTimeout,
		Metrics:        collector,
	})

	jobService := jobs.New(pool, cfg, collector)

	classifier := attendance.NewClassifier(attendance.Policy{ReturnRestoresOnTime: cfg.EarlyLeaveReturnRestores})
	reconciler := attendance.NewReconciler(attendanceStore, coreStore, classifier, loc, collector)
	confirmer := notify.NewConfirmer(notifyStore, coreStore, loc, collector)
	poller := zones.NewPoller(coreStore, cursorStore, gateway, pool, reconciler, confirmer, zones.Options{
		Location:    loc,
		Concurrency: cfg.PollConcurrency,
		Metrics:     collector,
	})
	scheduler := notify.NewScheduler(notifyStore, coreStore, pool, guard, messaging.New(cfg), notify.Options{
		Location:         loc,
		MaxJobs:          cfg.MaxNotificationJobs,
		EvaluateInterval: cfg.NotifyEvaluateInterval,
		Metrics:          collector,
		Recorder:         jobService,
	})

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	jobService.Start(engineCtx, poller, scheduler)

	engine := enginehandler.NewHandler(jobService, notifyStore, attendanceStore, audit.New(pool), reports.NewStore(pool), loc)
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, pool, metricsHandler, engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("shiftwatch engine listening", "addr", cfg.Addr, "timezone", loc.String(), "dispatchGuard", cfg.DispatchGuard)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("http server failed", "err", err)
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "err", err)
	}
	stopEngine()
	jobService.Wait()
	return nil
}

// NewRouter builds the ops HTTP surface. metricsHandler may be nil.
func NewRouter(cfg config.Config, pinger Pinger, metricsHandler http.Handler, engine *enginehandler.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	router.Route("/api/v1", func(r chi.Router) {
		engine.RegisterRoutes(r)
	})
	return router
}
