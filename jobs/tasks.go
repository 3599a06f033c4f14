package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDailyReport generates the daily lead report.
	TaskDailyReport = "report:generate_daily"
	// TaskResetCounters zeroes every client's daily counters.
	TaskResetCounters = "report:reset_counters"
)

// DailyReportPayload parameterises a daily report run. An empty ReportDate
// targets the current day in the configured report timezone. Force skips the
// weekend policy, for manually triggered runs.
type DailyReportPayload struct {
	ReportDate string `json:"report_date,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

// NewDailyReportTask constructs an Asynq task.
func NewDailyReportTask(payload DailyReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailyReport, data), nil
}

// NewResetCountersTask constructs an Asynq task.
func NewResetCountersTask() *asynq.Task {
	return asynq.NewTask(TaskResetCounters, nil)
}
