package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/leadledger/leadledger/internal/report"
)

type fakeReports struct {
	runToday    bool
	generateErr error
	generated   []string
	resets      int
}

func (f *fakeReports) GenerateDailyReport(ctx context.Context, targetDate string) (*report.DailyReport, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.generated = append(f.generated, targetDate)
	return &report.DailyReport{ID: 1, ReportDate: "2025-06-02", TotalLeads: 3}, nil
}

func (f *fakeReports) ShouldRunToday(ctx context.Context) (bool, error) {
	return f.runToday, nil
}

func (f *fakeReports) ResetDailyCounters(ctx context.Context) (int64, error) {
	f.resets++
	return 2, nil
}

type fakeInvalidator struct {
	bumps int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) { f.bumps++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReportTask(t *testing.T, payload DailyReportPayload) *asynq.Task {
	t.Helper()
	task, err := NewDailyReportTask(payload)
	require.NoError(t, err)
	return task
}

func TestDailyReportJobRuns(t *testing.T) {
	reports := &fakeReports{runToday: true}
	dash := &fakeInvalidator{}
	job := NewDailyReportJob(reports, dash, discardLogger(), nil)

	err := job.Handle(context.Background(), newReportTask(t, DailyReportPayload{}))
	require.NoError(t, err)
	require.Equal(t, []string{""}, reports.generated)
	require.Equal(t, 1, dash.bumps)
}

func TestDailyReportJobSkipsWeekends(t *testing.T) {
	reports := &fakeReports{runToday: false}
	job := NewDailyReportJob(reports, nil, discardLogger(), nil)

	err := job.Handle(context.Background(), newReportTask(t, DailyReportPayload{}))
	require.NoError(t, err)
	require.Empty(t, reports.generated)

	// Force bypasses the weekend policy.
	err = job.Handle(context.Background(), newReportTask(t, DailyReportPayload{Force: true, ReportDate: "2025-06-01"}))
	require.NoError(t, err)
	require.Equal(t, []string{"2025-06-01"}, reports.generated)
}

func TestDailyReportJobTerminalErrors(t *testing.T) {
	reports := &fakeReports{runToday: true, generateErr: report.ErrDuplicateDate}
	dash := &fakeInvalidator{}
	job := NewDailyReportJob(reports, dash, discardLogger(), nil)

	// Duplicate dates cannot succeed on retry, so the task completes.
	err := job.Handle(context.Background(), newReportTask(t, DailyReportPayload{}))
	require.NoError(t, err)
	require.Zero(t, dash.bumps)

	reports.generateErr = report.ErrRunning
	err = job.Handle(context.Background(), newReportTask(t, DailyReportPayload{}))
	require.NoError(t, err)

	reports.generateErr = errors.New("connection refused")
	err = job.Handle(context.Background(), newReportTask(t, DailyReportPayload{}))
	require.Error(t, err)
}

func TestResetCountersJob(t *testing.T) {
	reports := &fakeReports{}
	dash := &fakeInvalidator{}
	job := NewResetCountersJob(reports, dash, discardLogger(), nil)

	err := job.Handle(context.Background(), NewResetCountersTask())
	require.NoError(t, err)
	require.Equal(t, 1, reports.resets)
	require.Equal(t, 1, dash.bumps)
}
