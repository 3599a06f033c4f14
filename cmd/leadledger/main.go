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

	"github.com/leadledger/leadledger/internal/app"
	"github.com/leadledger/leadledger/internal/client"
	"github.com/leadledger/leadledger/internal/dashboard"
	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/ledger"
	"github.com/leadledger/leadledger/internal/observability"
	"github.com/leadledger/leadledger/internal/platform/cache"
	"github.com/leadledger/leadledger/internal/platform/db"
	"github.com/leadledger/leadledger/internal/product"
	"github.com/leadledger/leadledger/internal/report"
	"github.com/leadledger/leadledger/internal/shared"
	"github.com/leadledger/leadledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	jobLock := shared.NewJobLock(redisClient)
	loc := cfg.Location()

	clientRepo := client.NewRepository(pool)
	clientService := client.NewService(clientRepo)
	clientHandler := client.NewHandler(logger, clientService)

	productRepo := product.NewRepository(pool)
	productService := product.NewService(productRepo)
	productHandler := product.NewHandler(logger, productService)

	leadRepo := lead.NewRepository(pool)
	leadService := lead.NewService(leadRepo, loc)
	leadHandler := lead.NewHandler(logger, leadService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	reportRepo := report.NewRepository(pool)
	reportService := report.NewService(reportRepo, jobLock, auditLogger, logger)
	reportHandler := report.NewHandler(logger, reportService)

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(leadService, clientService, ledgerService, dashboardCache, loc, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)
	leadService.WithNotifier(dashboardService)
	ledgerService.WithNotifier(dashboardService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ClientHandler:    clientHandler,
		ProductHandler:   productHandler,
		LeadHandler:      leadHandler,
		LedgerHandler:    ledgerHandler,
		ReportHandler:    reportHandler,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
