package lead

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadledger/leadledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `l.id, l.client_id, l.product_id, l.lead_name, l.lead_phone, l.lead_address,
	l.additional_info, l.payment_status, l.credited_reason, l.credited_by, l.credited_at,
	l.report_id, l.created_at, l.updated_at`

const bareLeadColumns = `id, client_id, product_id, lead_name, lead_phone, lead_address,
	additional_info, payment_status, credited_reason, credited_by, credited_at,
	report_id, created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	var creditedReason, creditedBy *string
	err := row.Scan(
		&l.ID, &l.ClientID, &l.ProductID, &l.Name, &l.Phone, &l.Address,
		&l.AdditionalInfo, &l.PaymentStatus, &creditedReason, &creditedBy, &l.CreditedAt,
		&l.ReportID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
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

// CreateLead inserts the lead and bumps the owning client's daily and
// lifetime counters in one transaction.
func (r *Repository) CreateLead(ctx context.Context, input CreateLeadInput) (*Lead, error) {
	var created *Lead
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO leads (client_id, product_id, lead_name, lead_phone, lead_address,
				additional_info, payment_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'billable', NOW(), NOW())
			RETURNING ` + bareLeadColumns
		l, err := scanLead(tx.QueryRow(ctx, query,
			input.ClientID, input.ProductID, input.Name, input.Phone, input.Address, input.AdditionalInfo))
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE clients
			SET leads_received_today = leads_received_today + 1,
			    total_leads_count = total_leads_count + 1,
			    updated_at = NOW()
			WHERE id=$1`, input.ClientID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrClientRequired
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetLead fetches one lead by id. Returns nil when no row matches.
func (r *Repository) GetLead(ctx context.Context, id int64) (*Lead, error) {
	return scanLead(r.pool.QueryRow(ctx,
		`SELECT `+bareLeadColumns+` FROM leads WHERE id=$1`, id))
}

// GetLeadDetail fetches one lead joined with client and product.
func (r *Repository) GetLeadDetail(ctx context.Context, id int64) (*Detail, error) {
	rows, err := r.pool.Query(ctx, detailQuery+` WHERE l.id=$1`, id)
	if err != nil {
		return nil, err
	}
	details, err := collectDetails(rows)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, nil
	}
	return &details[0], nil
}

const detailQuery = `
	SELECT ` + leadColumns + `,
		COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.phone, ''),
		COALESCE(p.name, ''), COALESCE(p.price, 0)
	FROM leads l
	LEFT JOIN clients c ON c.id = l.client_id
	LEFT JOIN products p ON p.id = l.product_id`

func collectDetails(rows pgx.Rows) ([]Detail, error) {
	defer rows.Close()
	var out []Detail
	for rows.Next() {
		var d Detail
		var creditedReason, creditedBy *string
		err := rows.Scan(
			&d.ID, &d.ClientID, &d.ProductID, &d.Name, &d.Phone, &d.Address,
			&d.AdditionalInfo, &d.PaymentStatus, &creditedReason, &creditedBy, &d.CreditedAt,
			&d.ReportID, &d.CreatedAt, &d.UpdatedAt,
			&d.ClientName, &d.ClientEmail, &d.ClientPhone,
			&d.ProductName, &d.ProductPrice,
		)
		if err != nil {
			return nil, err
		}
		if creditedReason != nil {
			d.CreditedReason = *creditedReason
		}
		if creditedBy != nil {
			d.CreditedBy = *creditedBy
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListLeads returns leads newest-first, narrowed by the filter.
func (r *Repository) ListLeads(ctx context.Context, filter ListFilter) ([]Detail, error) {
	query := detailQuery + ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ClientID != 0 {
		query += ` AND l.client_id = ` + arg(filter.ClientID)
	}
	if filter.Status != "" {
		query += ` AND l.payment_status = ` + arg(filter.Status)
	}
	if !filter.From.IsZero() {
		query += ` AND l.created_at >= ` + arg(filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND l.created_at < ` + arg(filter.To)
	}
	query += ` ORDER BY l.created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

// TransitionBilling atomically moves a billable, unreported lead to the
// target status. Paid transitions bump the client's leads_paid_today.
func (r *Repository) TransitionBilling(ctx context.Context, id int64, to PaymentStatus) (bool, error) {
	var moved bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var clientID *int64
		err := tx.QueryRow(ctx, `
			UPDATE leads
			SET payment_status=$2, updated_at=NOW()
			WHERE id=$1 AND payment_status='billable' AND report_id IS NULL
			RETURNING client_id`, id, to).Scan(&clientID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		moved = true
		if clientID != nil && (to == StatusPaid || to == StatusPaidByCredit) {
			_, err = tx.Exec(ctx, `
				UPDATE clients
				SET leads_paid_today = leads_paid_today + 1, updated_at = NOW()
				WHERE id=$1`, *clientID)
			return err
		}
		return nil
	})
	return moved, err
}

// AssignProduct updates product_id only while the lead is billable and
// unreported.
func (r *Repository) AssignProduct(ctx context.Context, id int64, productID *int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET product_id=$2, updated_at=NOW()
		WHERE id=$1 AND payment_status='billable' AND report_id IS NULL`, id, productID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
