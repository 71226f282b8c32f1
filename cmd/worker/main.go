package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/internal/app"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	inventoryRepo := inventory.NewRepository(pool, db.NewTxRunner(pool, cfg.DBTxMaxAttempts))
	inventoryService := inventory.NewService(inventoryRepo, nil, nil, inventory.ServiceConfig{
		ReservationTTL: cfg.ReservationTTL,
	}, logger)

	metrics := observability.NewMetrics()
	sweepJob := jobs.NewReservationSweepJob(inventoryService, logger, metrics.Jobs())

	sweepTask, err := jobs.NewReservationSweepTask(time.Now().UTC(), 0)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReservationSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReservationSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.WorkerMetricsAddr != "" {
		metricsServer = newMetricsServer(cfg.WorkerMetricsAddr, metrics)
		go func() {
			logger.Info("starting metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", slog.Any("error", err))
				stop()
			}
		}()
	}

	runErr := worker.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown", slog.Any("error", err))
		}
	}
	if runErr != nil && runErr != context.Canceled {
		logger.Error("worker run", slog.Any("error", runErr))
		os.Exit(1)
	}
}

// newMetricsServer exposes the worker's job metrics for scraping.
func newMetricsServer(addr string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
