package report

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the report module.
var (
	ErrNotFound        = errors.New("report: not found")
	ErrDuplicateDate   = errors.New("report: a report for this date already exists")
	ErrRunning         = errors.New("report: generation already in progress for this date")
	ErrInvalidDate     = errors.New("report: invalid report date")
	ErrInvalidTimezone = errors.New("report: unknown timezone")
	ErrInvalidTime     = errors.New("report: report time must be HH:MM")
	ErrNoRecipients    = errors.New("report: at least one recipient required")
)

// ClientBreakdown is one client's slice of a daily report. Revenue is the sum
// of product prices over the client's billable-equivalent leads for the day.
type ClientBreakdown struct {
	ClientID       int64           `json:"client_id"`
	ClientName     string          `json:"client_name"`
	LeadsDelivered int             `json:"leads_delivered"`
	CreditsIssued  int             `json:"credits_issued"`
	NetBillable    int             `json:"net_billable"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// DailyReport is an immutable snapshot of one day's lead activity. Once a
// report is written, the leads it covers are frozen behind their report_id.
type DailyReport struct {
	ID              int64             `json:"id"`
	ReportDate      string            `json:"report_date"`
	TotalLeads      int               `json:"total_leads"`
	TotalCredits    int               `json:"total_credits"`
	NetBillable     int               `json:"net_billable"`
	ActiveClients   int               `json:"active_clients_count"`
	TotalRevenue    decimal.Decimal   `json:"total_revenue"`
	ClientBreakdown []ClientBreakdown `json:"client_breakdown"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Settings is the singleton report configuration row. The timezone defines
// the aggregation day boundary for both the daily job and the "today" views.
type Settings struct {
	Timezone       string    `json:"timezone"`
	ReportTime     string    `json:"report_time"`
	SendOnWeekends bool      `json:"send_reports_on_weekends"`
	Recipients     []string  `json:"report_recipients"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Location resolves the configured timezone, falling back to UTC when the
// name does not load.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UpdateSettingsInput carries a partial settings update. Nil fields keep the
// stored value.
type UpdateSettingsInput struct {
	Timezone       *string
	ReportTime     *string
	SendOnWeekends *bool
	Recipients     []string
}
