package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/leadledger/leadledger/internal/jobs"
)

// ResetCountersJob zeroes the per-client daily counters at the start of each
// day. The reset is idempotent, so retries are harmless.
type ResetCountersJob struct {
	Reports   ReportRunner
	Dashboard CacheInvalidator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewResetCountersJob wires dependencies for the reset handler.
func NewResetCountersJob(reports ReportRunner, dash CacheInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ResetCountersJob {
	return &ResetCountersJob{Reports: reports, Dashboard: dash, Logger: logger, Metrics: metrics}
}

// Handle processes reset-counters tasks.
func (j *ResetCountersJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reset counters: handler not configured")
	}

	tracker := j.metrics().Track(TaskResetCounters)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	n, err := j.Reports.ResetDailyCounters(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("reset daily counters", slog.Any("error", err))
		return resultErr
	}
	if j.Dashboard != nil {
		j.Dashboard.Invalidate(ctx)
	}
	j.logger().Info("daily counters reset", slog.Int64("clients", n))
	return nil
}

func (j *ResetCountersJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskResetCounters))
	}
	return slog.Default().With(slog.String("job", TaskResetCounters))
}

func (j *ResetCountersJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
