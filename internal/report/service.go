package report

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/shared"
)

// SourceLead is the projection of a lead the aggregation job consumes.
type SourceLead struct {
	ID            int64
	ClientID      int64
	ClientName    string
	PaymentStatus lead.PaymentStatus
	ProductPrice  decimal.Decimal
}

// TxPort is the transactional surface of one report generation run. The
// repository rows-locks the selected leads so a concurrent billing transition
// cannot slip between selection and stamping.
type TxPort interface {
	ListUnreportedLeads(ctx context.Context, from, to time.Time) ([]SourceLead, error)
	// InsertReport persists the report row. A unique violation on report_date
	// surfaces as ErrDuplicateDate.
	InsertReport(ctx context.Context, r DailyReport) (*DailyReport, error)
	StampLeads(ctx context.Context, reportID int64, leadIDs []int64) error
	AddLifetimeRevenue(ctx context.Context, clientID int64, amount decimal.Decimal) error
}

// RepositoryPort defines data access for reports and the settings singleton.
type RepositoryPort interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error
	GetReport(ctx context.Context, id int64) (*DailyReport, error)
	GetReportByDate(ctx context.Context, date string) (*DailyReport, error)
	ListReports(ctx context.Context, limit int) ([]DailyReport, error)
	GetSettings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, input UpdateSettingsInput) (*Settings, error)
	ResetDailyCounters(ctx context.Context) (int64, error)
}

// LockPort is the redis mutex guarding concurrent generation runs.
type LockPort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// AuditPort records report operations in the audit trail.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

const lockTTL = 5 * time.Minute

// Service runs the daily aggregation and owns report settings.
type Service struct {
	repo   RepositoryPort
	lock   LockPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, lock LockPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, lock: lock, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GenerateDailyReport aggregates one day's unreported leads into an immutable
// report and freezes them. targetDate is YYYY-MM-DD; empty means the current
// day in the configured report timezone. Leads already attached to a report
// are excluded, so an interrupted run can be retried without double counting.
func (s *Service) GenerateDailyReport(ctx context.Context, targetDate string) (*DailyReport, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	loc := settings.Location()

	var day time.Time
	if targetDate == "" {
		now := s.now().In(loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		parsed, err := time.ParseInLocation(time.DateOnly, targetDate, loc)
		if err != nil {
			return nil, ErrInvalidDate
		}
		day = parsed
	}
	dateStr := day.Format(time.DateOnly)

	if s.lock != nil {
		key := shared.ReportLockKey(dateStr)
		ok, err := s.lock.Acquire(ctx, key, lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunning
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), key); err != nil && s.logger != nil {
				s.logger.Warn("release report lock", slog.Any("error", err))
			}
		}()
	}

	var generated *DailyReport
	err = s.repo.InTx(ctx, func(ctx context.Context, tx TxPort) error {
		leads, err := tx.ListUnreportedLeads(ctx, day, day.AddDate(0, 0, 1))
		if err != nil {
			return err
		}

		draft := buildReport(dateStr, leads)
		generated, err = tx.InsertReport(ctx, draft)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(leads))
		for _, l := range leads {
			ids = append(ids, l.ID)
		}
		if err := tx.StampLeads(ctx, generated.ID, ids); err != nil {
			return err
		}
		for _, row := range generated.ClientBreakdown {
			if row.Revenue.IsZero() {
				continue
			}
			if err := tx.AddLifetimeRevenue(ctx, row.ClientID, row.Revenue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("daily report generated",
			slog.String("report_date", dateStr),
			slog.Int64("report_id", generated.ID),
			slog.Int("total_leads", generated.TotalLeads))
	}
	s.recordAudit(ctx, "report.generate", generated)
	return generated, nil
}

// buildReport folds the day's leads into per-client breakdown rows and
// report totals. Credited leads count toward leads_delivered and
// credits_issued but never toward net_billable or revenue.
func buildReport(date string, leads []SourceLead) DailyReport {
	byClient := make(map[int64]*ClientBreakdown)
	for _, l := range leads {
		row, ok := byClient[l.ClientID]
		if !ok {
			row = &ClientBreakdown{
				ClientID:   l.ClientID,
				ClientName: l.ClientName,
				Revenue:    decimal.Zero,
			}
			byClient[l.ClientID] = row
		}
		row.LeadsDelivered++
		if l.PaymentStatus == lead.StatusCredited {
			row.CreditsIssued++
			continue
		}
		if l.PaymentStatus.Billable() {
			row.NetBillable++
			row.Revenue = row.Revenue.Add(l.ProductPrice)
		}
	}

	r := DailyReport{
		ReportDate:      date,
		TotalRevenue:    decimal.Zero,
		ClientBreakdown: make([]ClientBreakdown, 0, len(byClient)),
	}
	for _, row := range byClient {
		r.TotalLeads += row.LeadsDelivered
		r.TotalCredits += row.CreditsIssued
		r.NetBillable += row.NetBillable
		r.TotalRevenue = r.TotalRevenue.Add(row.Revenue)
		r.ClientBreakdown = append(r.ClientBreakdown, *row)
	}
	r.ActiveClients = len(r.ClientBreakdown)
	sort.Slice(r.ClientBreakdown, func(i, j int) bool {
		return r.ClientBreakdown[i].ClientName < r.ClientBreakdown[j].ClientName
	})
	return r
}

// ResetDailyCounters zeroes every client's daily lead and credit counters.
// Safe to run any number of times.
func (s *Service) ResetDailyCounters(ctx context.Context) (int64, error) {
	n, err := s.repo.ResetDailyCounters(ctx)
	if err != nil {
		return 0, err
	}
	if s.logger != nil {
		s.logger.Info("daily counters reset", slog.Int64("clients", n))
	}
	return n, nil
}

// GetReport returns one report by id.
func (s *Service) GetReport(ctx context.Context, id int64) (*DailyReport, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// ListReports returns reports newest-first.
func (s *Service) ListReports(ctx context.Context, limit int) ([]DailyReport, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.repo.ListReports(ctx, limit)
}

// GetSettings returns the settings singleton.
func (s *Service) GetSettings(ctx context.Context) (*Settings, error) {
	return s.repo.GetSettings(ctx)
}

var reportTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// UpdateSettings applies a partial settings update after validating the
// timezone and report time.
func (s *Service) UpdateSettings(ctx context.Context, input UpdateSettingsInput) (*Settings, error) {
	if input.Timezone != nil {
		if _, err := time.LoadLocation(*input.Timezone); err != nil {
			return nil, ErrInvalidTimezone
		}
	}
	if input.ReportTime != nil && !reportTimeRe.MatchString(*input.ReportTime) {
		return nil, ErrInvalidTime
	}
	if input.Recipients != nil && len(input.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	return s.repo.UpdateSettings(ctx, input)
}

// ShouldRunToday applies the weekend policy to a scheduled run.
func (s *Service) ShouldRunToday(ctx context.Context) (bool, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	if settings.SendOnWeekends {
		return true, nil
	}
	wd := s.now().In(settings.Location()).Weekday()
	return wd != time.Saturday && wd != time.Sunday, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, r *DailyReport) {
	if s.audit == nil || r == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "daily_report",
		EntityID: r.ReportDate,
		Meta: map[string]any{
			"report_id":    r.ID,
			"total_leads":  r.TotalLeads,
			"net_billable": r.NetBillable,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
