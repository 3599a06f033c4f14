package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/leadledger/leadledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for daily reports and
// the report settings singleton.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs one generation pass under a serializable transaction. Selection,
// report insert and lead stamping must observe one consistent snapshot.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txPort{tx: tx})
	})
}

type txPort struct {
	tx pgx.Tx
}

// ListUnreportedLeads selects the day's leads that no report has claimed yet,
// row-locking them so a concurrent billing transition waits for the freeze.
func (t *txPort) ListUnreportedLeads(ctx context.Context, from, to time.Time) ([]SourceLead, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT l.id, l.client_id, c.name, l.payment_status, COALESCE(p.price, 0)
		FROM leads l
		JOIN clients c ON c.id = l.client_id
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.report_id IS NULL
		  AND l.created_at >= $1 AND l.created_at < $2
		ORDER BY l.id
		FOR UPDATE OF l`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceLead
	for rows.Next() {
		var l SourceLead
		if err := rows.Scan(&l.ID, &l.ClientID, &l.ClientName, &l.PaymentStatus, &l.ProductPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertReport persists the report row. The unique index on report_date
// turns a concurrent duplicate into ErrDuplicateDate.
func (t *txPort) InsertReport(ctx context.Context, r DailyReport) (*DailyReport, error) {
	breakdown, err := json.Marshal(r.ClientBreakdown)
	if err != nil {
		return nil, err
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO daily_reports
			(report_date, total_leads, total_credits, net_billable,
			 active_clients_count, total_revenue, client_breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`,
		r.ReportDate, r.TotalLeads, r.TotalCredits, r.NetBillable,
		r.ActiveClients, r.TotalRevenue, breakdown,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateDate
		}
		return nil, err
	}
	return &r, nil
}

// StampLeads freezes the included leads behind the report id.
func (t *txPort) StampLeads(ctx context.Context, reportID int64, leadIDs []int64) error {
	if len(leadIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE leads SET report_id=$1, updated_at=NOW()
		WHERE id = ANY($2) AND report_id IS NULL`, reportID, leadIDs)
	return err
}

// AddLifetimeRevenue rolls the day's revenue into the client's lifetime total.
func (t *txPort) AddLifetimeRevenue(ctx context.Context, clientID int64, amount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE clients SET lifetime_revenue = lifetime_revenue + $2, updated_at=NOW() WHERE id=$1`,
		clientID, amount)
	return err
}

const reportColumns = `id, report_date, total_leads, total_credits, net_billable,
	active_clients_count, total_revenue, client_breakdown, created_at`

func scanReport(row pgx.Row) (*DailyReport, error) {
	var r DailyReport
	var date time.Time
	var breakdown []byte
	err := row.Scan(&r.ID, &date, &r.TotalLeads, &r.TotalCredits, &r.NetBillable,
		&r.ActiveClients, &r.TotalRevenue, &breakdown, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.ReportDate = date.Format(time.DateOnly)
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &r.ClientBreakdown); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// GetReport fetches one report by id. Returns nil when no row matches.
func (r *Repository) GetReport(ctx context.Context, id int64) (*DailyReport, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM daily_reports WHERE id=$1`, id))
}

// GetReportByDate fetches one report by its date. Returns nil when no row
// matches.
func (r *Repository) GetReportByDate(ctx context.Context, date string) (*DailyReport, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM daily_reports WHERE report_date=$1`, date))
}

// ListReports returns reports newest-first.
func (r *Repository) ListReports(ctx context.Context, limit int) ([]DailyReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM daily_reports ORDER BY report_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

// GetSettings loads the settings singleton (row id 1).
func (r *Repository) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, report_time, send_reports_on_weekends, report_recipients, updated_at
		FROM report_settings WHERE id=1`,
	).Scan(&s.Timezone, &s.ReportTime, &s.SendOnWeekends, &s.Recipients, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings applies a partial update to the singleton and returns the
// stored row.
func (r *Repository) UpdateSettings(ctx context.Context, input UpdateSettingsInput) (*Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `
		UPDATE report_settings SET
			timezone = COALESCE($1, timezone),
			report_time = COALESCE($2, report_time),
			send_reports_on_weekends = COALESCE($3, send_reports_on_weekends),
			report_recipients = COALESCE($4, report_recipients),
			updated_at = NOW()
		WHERE id=1
		RETURNING timezone, report_time, send_reports_on_weekends, report_recipients, updated_at`,
		input.Timezone, input.ReportTime, input.SendOnWeekends, input.Recipients,
	).Scan(&s.Timezone, &s.ReportTime, &s.SendOnWeekends, &s.Recipients, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ResetDailyCounters zeroes the per-day counters on every client and stamps
// last_reset_date.
func (r *Repository) ResetDailyCounters(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients SET
			leads_received_today = 0,
			leads_paid_today = 0,
			credits_issued_today = 0,
			last_reset_date = CURRENT_DATE,
			updated_at = NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
