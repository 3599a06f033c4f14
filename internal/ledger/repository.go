package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the credit ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs fn inside one transaction. Row locks taken through the TxPort
// hold until commit, serializing concurrent ledger operations per client.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txPort{tx: tx})
	})
}

type txPort struct {
	tx pgx.Tx
}

func (t *txPort) GetClientBalanceForUpdate(ctx context.Context, clientID int64) (int64, bool, error) {
	var balance int64
	err := t.tx.QueryRow(ctx,
		`SELECT credit_balance FROM clients WHERE id=$1 FOR UPDATE`, clientID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

func (t *txPort) GetLeadForUpdate(ctx context.Context, leadID int64) (*lead.Lead, error) {
	var l lead.Lead
	var creditedReason, creditedBy *string
	err := t.tx.QueryRow(ctx, `
		SELECT id, client_id, product_id, lead_name, payment_status,
			credited_reason, credited_by, credited_at, report_id, created_at, updated_at
		FROM leads WHERE id=$1 FOR UPDATE`, leadID).Scan(
		&l.ID, &l.ClientID, &l.ProductID, &l.Name, &l.PaymentStatus,
		&creditedReason, &creditedBy, &l.CreditedAt, &l.ReportID, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if creditedReason != nil {
		l.CreditedReason = *creditedReason
	}
	if creditedBy != nil {
		l.CreditedBy = *creditedBy
	}
	return &l, nil
}

func (t *txPort) SetClientBalance(ctx context.Context, clientID, balance int64, creditsIssuedDelta int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE clients
		SET credit_balance=$2,
		    credits_issued_today = credits_issued_today + $3,
		    updated_at = NOW()
		WHERE id=$1`, clientID, balance, creditsIssuedDelta)
	return err
}

func (t *txPort) MarkLeadCredited(ctx context.Context, leadID int64, reason Reason, actor string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE leads
		SET payment_status='credited', credited_reason=$2, credited_by=$3,
		    credited_at=$4, updated_at=NOW()
		WHERE id=$1 AND payment_status='billable' AND report_id IS NULL`,
		leadID, reason, actor, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// The FOR UPDATE read precedes this, so a miss means the state
		// machine guard was bypassed; treat as invalid transition.
		return lead.ErrInvalidTransition
	}
	return nil
}

func (t *txPort) InsertEntry(ctx context.Context, entry Entry) (*Entry, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO credits (client_id, lead_id, adjustment_type, amount, balance_after,
			reason, additional_notes, adjusted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		entry.ClientID, entry.LeadID, entry.Type, entry.Amount, entry.BalanceAfter,
		entry.Reason, entry.AdditionalNotes, entry.AdjustedBy, entry.CreatedAt).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntries returns ledger entries newest first, joined with client and
// lead names for display.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]EntryDetail, error) {
	query := `
		SELECT cr.id, cr.client_id, cr.lead_id, cr.adjustment_type, cr.amount,
			cr.balance_after, cr.reason, cr.additional_notes, cr.adjusted_by, cr.created_at,
			COALESCE(c.name, ''), COALESCE(l.lead_name, '')
		FROM credits cr
		LEFT JOIN clients c ON c.id = cr.client_id
		LEFT JOIN leads l ON l.id = cr.lead_id
		WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ClientID != 0 {
		query += ` AND cr.client_id = ` + arg(filter.ClientID)
	}
	if filter.LeadID != 0 {
		query += ` AND cr.lead_id = ` + arg(filter.LeadID)
	}
	query += ` ORDER BY cr.created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryDetail
	for rows.Next() {
		var d EntryDetail
		var notes, adjustedBy, reason *string
		err := rows.Scan(
			&d.ID, &d.ClientID, &d.LeadID, &d.Type, &d.Amount,
			&d.BalanceAfter, &reason, &notes, &adjustedBy, &d.CreatedAt,
			&d.ClientName, &d.LeadName)
		if err != nil {
			return nil, err
		}
		if reason != nil {
			d.Reason = Reason(*reason)
		}
		if notes != nil {
			d.AdditionalNotes = *notes
		}
		if adjustedBy != nil {
			d.AdjustedBy = *adjustedBy
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountEntries returns the number of entries the filter matches, ignoring
// limit and offset.
func (r *Repository) CountEntries(ctx context.Context, filter EntryFilter) (int, error) {
	query := `SELECT COUNT(*) FROM credits cr WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ClientID != 0 {
		query += ` AND cr.client_id = ` + arg(filter.ClientID)
	}
	if filter.LeadID != 0 {
		query += ` AND cr.lead_id = ` + arg(filter.LeadID)
	}
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
