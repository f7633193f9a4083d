package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/analysis"
	"github.com/shalom-ormsby/sagestocks/internal/api"
	"github.com/shalom-ormsby/sagestocks/internal/config"
	"github.com/shalom-ormsby/sagestocks/internal/cycle"
	"github.com/shalom-ormsby/sagestocks/internal/db"
	"github.com/shalom-ormsby/sagestocks/internal/delivery"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/engine"
	"github.com/shalom-ormsby/sagestocks/internal/metrics"
	"github.com/shalom-ormsby/sagestocks/internal/registry"
	"github.com/shalom-ormsby/sagestocks/internal/report"
	"github.com/shalom-ormsby/sagestocks/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- tenant registry database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- queue store ----
	redisClient, err := store.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	queueStore := store.NewRedisStore(redisClient, cfg.QueueTTL)

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	collector := registry.NewCollector(registry.NewPgRegistry(pool), logger)
	analyzer := analysis.NewClient(cfg.AnalysisBaseURL, cfg.AnalysisTimeout)
	deliverer := delivery.NewClient(cfg.DeliveryBaseURL, cfg.DeliveryTimeout)

	var notifier report.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = report.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout)
	}
	reporter := report.NewReporter(deliverer, notifier, cfg.StatusMessageLimit, cfg.NotifyTimeout, logger)

	eng := engine.New(analyzer, deliverer, reporter, engine.Config{
		MaxAnalysisAttempts: cfg.AnalysisMaxAttempts,
		AnalysisBackoff:     cfg.AnalysisBackoff,
		RetryAfterCap:       cfg.RetryAfterCap,
		DeliveryAttempts:    cfg.DeliveryAttempts,
		DeliveryRetryDelay:  cfg.DeliveryRetryDelay,
		TickerDelay:         cfg.TickerDelay,
		DryRun:              cfg.DryRun,
	}, logger, m.EngineHooks())

	svc := cycle.NewService(collector, queueStore, eng, analyzer, reporter, cfg.ChunkSize, logger)

	// ---- optional in-process cron trigger ----
	// Deployments with an external scheduler leave TRIGGER_CRON empty
	// and POST /api/v1/cycle/run instead.
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	var c *cron.Cron
	if cfg.TriggerCron != "" {
		c = cron.New()
		_, err := c.AddFunc(cfg.TriggerCron, func() {
			summary, err := svc.Run(runCtx)
			if err != nil {
				logger.Error("scheduled invocation failed", zap.Error(err))
				return
			}
			m.ObserveRun(summary)
		})
		if err != nil {
			logger.Fatal("invalid TRIGGER_CRON expression", zap.Error(err))
		}
		c.Start()
		logger.Info("cron trigger enabled", zap.String("spec", cfg.TriggerCron))
	}

	// ---- HTTP server ----
	router := api.NewRouter(svc, cfg.TriggerToken, func(s domain.RunSummary) { m.ObserveRun(s) }, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop the cron trigger and wait for an in-flight run to finish.
	if c != nil {
		<-c.Stop().Done()
	}

	// 2. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 3. Cancel anything still running; the checkpoint only reflects
	// fully attempted tickers, so the next invocation resumes cleanly.
	cancelRuns()

	logger.Info("server stopped cleanly")
}
