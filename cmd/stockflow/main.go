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
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/rbac"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/internal/transfer"
	"github.com/odyssey-erp/stockflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	runner := db.NewTxRunner(pool, cfg.DBTxMaxAttempts)
	auditLogger := shared.NewAuditLogger(pool)

	inventoryRepo := inventory.NewRepository(pool, runner)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, shared.NewIdempotencyStore(pool), inventory.ServiceConfig{
		ReservationTTL: cfg.ReservationTTL,
	}, logger)

	rbacService := rbac.NewService(rbac.NewPGStore(pool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	transferService := transfer.NewService(
		transfer.NewRepository(pool, runner),
		inventoryService,
		rbacService,
		transfer.ServiceConfig{},
		logger,
		transfer.WithLocker(shared.NewRedisLocker(redisClient, cfg.TransferLockTTL)),
		transfer.WithApprovals(shared.NewApprovalRecorder(pool, logger)),
		transfer.WithAudit(auditLogger),
		transfer.WithMetrics(metrics),
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		TransferHandler:    transfer.NewHandler(logger, transferService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
