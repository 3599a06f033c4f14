package client

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for clients.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, name, email, phone, status, credit_balance,
	leads_received_today, leads_paid_today, credits_issued_today,
	total_leads_count, lifetime_revenue, last_reset_date, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.CreditBalance,
		&c.LeadsReceivedToday, &c.LeadsPaidToday, &c.CreditsIssuedToday,
		&c.TotalLeadsCount, &c.LifetimeRevenue, &c.LastResetDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func collectClients(rows pgx.Rows) ([]Client, error) {
	defer rows.Close()
	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CreateClient inserts a new client row.
func (r *Repository) CreateClient(ctx context.Context, input CreateClientInput) (*Client, error) {
	query := `
		INSERT INTO clients (name, email, phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', NOW(), NOW())
		RETURNING ` + clientColumns
	return scanClient(r.pool.QueryRow(ctx, query, input.Name, input.Email, input.Phone))
}

// GetClient fetches one client by id. Returns nil when no row matches.
func (r *Repository) GetClient(ctx context.Context, id int64) (*Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=$1`, id))
}

// ListClients returns all clients ordered by name.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectClients(rows)
}

// ListActiveClients returns active clients ordered by name.
func (r *Repository) ListActiveClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients WHERE status='active' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectClients(rows)
}

// SearchClientsByName matches names case-insensitively on a substring.
func (r *Repository) SearchClientsByName(ctx context.Context, term string) ([]Client, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE name ILIKE '%' || $1 || '%' ORDER BY name`, term)
	if err != nil {
		return nil, err
	}
	return collectClients(rows)
}

// ListClientsWithLeadsToday returns clients with at least one lead today,
// ordered by lead volume.
func (r *Repository) ListClientsWithLeadsToday(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE leads_received_today > 0 ORDER BY leads_received_today DESC`)
	if err != nil {
		return nil, err
	}
	return collectClients(rows)
}

// UpdateClient edits contact info and status. Returns nil when no row matches.
func (r *Repository) UpdateClient(ctx context.Context, id int64, input UpdateClientInput) (*Client, error) {
	query := `
		UPDATE clients
		SET name=$2, email=$3, phone=$4, status=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING ` + clientColumns
	return scanClient(r.pool.QueryRow(ctx, query, id, input.Name, input.Email, input.Phone, input.Status))
}
