package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/leadledger/leadledger/internal/jobs"
	"github.com/leadledger/leadledger/internal/report"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportRunner is the slice of the report service the jobs need.
type ReportRunner interface {
	GenerateDailyReport(ctx context.Context, targetDate string) (*report.DailyReport, error)
	ShouldRunToday(ctx context.Context) (bool, error)
	ResetDailyCounters(ctx context.Context) (int64, error)
}

// CacheInvalidator bumps cached dashboard summaries after a job mutates the
// underlying data.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// DailyReportJob runs the scheduled daily aggregation.
type DailyReportJob struct {
	Reports   ReportRunner
	Dashboard CacheInvalidator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDailyReportJob wires dependencies for the daily report handler.
func NewDailyReportJob(reports ReportRunner, dash CacheInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *DailyReportJob {
	return &DailyReportJob{Reports: reports, Dashboard: dash, Logger: logger, Metrics: metrics}
}

// Handle processes daily report tasks. Duplicate and already-running dates
// are terminal for the task: retrying cannot change the outcome.
func (j *DailyReportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("daily report: handler not configured")
	}
	var payload DailyReportPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskDailyReport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if !payload.Force {
		run, err := j.Reports.ShouldRunToday(ctx)
		if err != nil {
			resultErr = err
			return resultErr
		}
		if !run {
			logger.Info("skipping daily report, weekends disabled")
			return nil
		}
	}

	start := time.Now()
	rep, err := j.Reports.GenerateDailyReport(ctx, payload.ReportDate)
	switch {
	case errors.Is(err, report.ErrDuplicateDate):
		logger.Info("daily report already exists", slog.String("report_date", payload.ReportDate))
		return nil
	case errors.Is(err, report.ErrRunning):
		logger.Info("daily report run already in progress", slog.String("report_date", payload.ReportDate))
		return nil
	case err != nil:
		resultErr = err
		logger.Error("generate daily report", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddFrozenLeads(rep.TotalLeads)
	if j.Dashboard != nil {
		j.Dashboard.Invalidate(ctx)
	}
	logger.Info("daily report job complete",
		slog.String("report_date", rep.ReportDate),
		slog.Int("total_leads", rep.TotalLeads),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *DailyReportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDailyReport))
	}
	return slog.Default().With(slog.String("job", TaskDailyReport))
}

func (j *DailyReportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
