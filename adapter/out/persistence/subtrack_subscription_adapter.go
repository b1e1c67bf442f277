package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SubscriptionAdapter implements out.SubscriptionRepository using PostgreSQL.
type SubscriptionAdapter struct {
	db *sqlx.DB
}

// NewSubscriptionAdapter creates a new SubscriptionAdapter.
func NewSubscriptionAdapter(db *sqlx.DB) *SubscriptionAdapter {
	return &SubscriptionAdapter{db: db}
}

type subscriptionRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	Domains      pq.StringArray `db:"domains"`
	Cost         float64        `db:"cost"`
	Currency     string         `db:"currency"`
	BillingCycle string         `db:"billing_cycle"`
	Status       string         `db:"status"`
	AutoRenew    bool           `db:"auto_renew"`
	Category     string         `db:"category"`
	Notes        string         `db:"notes"`
	CreatedBy    string         `db:"created_by"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *subscriptionRow) toDomain() *domain.Subscription {
	return &domain.Subscription{
		ID:           r.ID,
		Name:         r.Name,
		Domains:      []string(r.Domains),
		Cost:         r.Cost,
		Currency:     r.Currency,
		BillingCycle: domain.BillingCycle(r.BillingCycle),
		Status:       domain.SubscriptionStatus(r.Status),
		AutoRenew:    r.AutoRenew,
		Category:     r.Category,
		Notes:        r.Notes,
		CreatedBy:    domain.Provenance(r.CreatedBy),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const subscriptionColumns = `id, name, domains, cost, currency, billing_cycle, status,
	       auto_renew, category, notes, created_by, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// pgx stdlib driver reports the SQLSTATE in the message
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}

// Create creates a new ledger entry. A name collision returns ErrDuplicate.
func (a *SubscriptionAdapter) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (name, domains, cost, currency, billing_cycle, status,
		                           auto_renew, category, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := a.db.QueryRowContext(ctx, query,
		sub.Name,
		pq.Array(sub.Domains),
		sub.Cost,
		sub.Currency,
		string(sub.BillingCycle),
		string(sub.Status),
		sub.AutoRenew,
		sub.Category,
		sub.Notes,
		string(sub.CreatedBy),
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID returns a ledger entry by ID.
func (a *SubscriptionAdapter) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	var row subscriptionRow
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByName returns a ledger entry by its unique name.
func (a *SubscriptionAdapter) GetByName(ctx context.Context, name string) (*domain.Subscription, error) {
	var row subscriptionRow
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE name = $1`
	if err := a.db.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// List returns every ledger entry, newest first.
func (a *SubscriptionAdapter) List(ctx context.Context) ([]*domain.Subscription, error) {
	var rows []*subscriptionRow
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at DESC`
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	subs := make([]*domain.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toDomain())
	}
	return subs, nil
}

// Update replaces the mutable fields of a ledger entry. Renaming onto an
// existing name returns ErrDuplicate.
func (a *SubscriptionAdapter) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET name = $1, domains = $2, cost = $3, currency = $4, billing_cycle = $5,
		    status = $6, auto_renew = $7, category = $8, notes = $9, updated_at = NOW()
		WHERE id = $10`

	res, err := a.db.ExecContext(ctx, query,
		sub.Name,
		pq.Array(sub.Domains),
		sub.Cost,
		sub.Currency,
		string(sub.BillingCycle),
		string(sub.Status),
		sub.AutoRenew,
		sub.Category,
		sub.Notes,
		sub.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a ledger entry.
func (a *SubscriptionAdapter) Delete(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure SubscriptionAdapter implements out.SubscriptionRepository
var _ out.SubscriptionRepository = (*SubscriptionAdapter)(nil)
