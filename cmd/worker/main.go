package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/leadledger/leadledger/internal/app"
	"github.com/leadledger/leadledger/internal/client"
	"github.com/leadledger/leadledger/internal/dashboard"
	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/ledger"
	"github.com/leadledger/leadledger/internal/platform/cache"
	"github.com/leadledger/leadledger/internal/platform/db"
	"github.com/leadledger/leadledger/internal/report"
	"github.com/leadledger/leadledger/internal/shared"
	"github.com/leadledger/leadledger/jobs"
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

	reportRepo := report.NewRepository(pool)
	reportService := report.NewService(reportRepo, jobLock, auditLogger, logger)

	leadService := lead.NewService(lead.NewRepository(pool), loc)
	clientService := client.NewService(client.NewRepository(pool))
	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, logger)
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(leadService, clientService, ledgerService, dashboardCache, loc, logger)

	reportJob := jobs.NewDailyReportJob(reportService, dashboardService, logger, nil)
	resetJob := jobs.NewResetCountersJob(reportService, dashboardService, logger, nil)

	reportTask, err := jobs.NewDailyReportTask(jobs.DailyReportPayload{})
	if err != nil {
		logger.Error("build daily report task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Location:  loc,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDailyReport, Handler: reportJob.Handle},
			{Type: jobs.TaskResetCounters, Handler: resetJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReportCronSpec, Task: reportTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ResetCronSpec, Task: jobs.NewResetCountersTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
