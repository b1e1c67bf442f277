package persistence

import (
	"context"
	"database/sql"
	"errors"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EmailAdapter implements out.EmailRepository using PostgreSQL. The unique
// index on gmail_message_id enforces deduplication; conflicting inserts are
// silently skipped and reported as duplicates.
type EmailAdapter struct {
	db *sqlx.DB
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

const emailColumns = `id, account_email, gmail_message_id, subject, sender, sender_domain,
	       received_at, processed_at, is_subscription, confidence_score, vendor, category, user_selected`

type emailRow struct {
	ID              int64        `db:"id"`
	AccountEmail    string       `db:"account_email"`
	MessageID       string       `db:"gmail_message_id"`
	Subject         string       `db:"subject"`
	Sender          string       `db:"sender"`
	SenderDomain    string       `db:"sender_domain"`
	ReceivedAt      sql.NullTime `db:"received_at"`
	ProcessedAt     sql.NullTime `db:"processed_at"`
	IsSubscription  bool         `db:"is_subscription"`
	ConfidenceScore float64      `db:"confidence_score"`
	Vendor          string       `db:"vendor"`
	Category        string       `db:"category"`
	UserSelected    bool         `db:"user_selected"`
}

func (r *emailRow) toDomain() *domain.ProcessedEmail {
	e := &domain.ProcessedEmail{
		ID:              r.ID,
		AccountEmail:    r.AccountEmail,
		MessageID:       r.MessageID,
		Subject:         r.Subject,
		Sender:          r.Sender,
		SenderDomain:    r.SenderDomain,
		IsSubscription:  r.IsSubscription,
		ConfidenceScore: r.ConfidenceScore,
		Vendor:          r.Vendor,
		Category:        r.Category,
		UserSelected:    r.UserSelected,
	}
	if r.ReceivedAt.Valid {
		e.ReceivedAt = r.ReceivedAt.Time
	}
	if r.ProcessedAt.Valid {
		e.ProcessedAt = r.ProcessedAt.Time
	}
	return e
}

// Exists reports whether the message ID was already processed.
func (a *EmailAdapter) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM processed_emails WHERE gmail_message_id = $1)`
	if err := a.db.GetContext(ctx, &exists, query, messageID); err != nil {
		return false, err
	}
	return exists, nil
}

// FilterNew returns, in input order, the subset of ids with no stored row.
func (a *EmailAdapter) FilterNew(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var seen []string
	query := `SELECT gmail_message_id FROM processed_emails WHERE gmail_message_id = ANY($1)`
	if err := a.db.SelectContext(ctx, &seen, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	seenSet := make(map[string]bool, len(seen))
	for _, id := range seen {
		seenSet[id] = true
	}

	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seenSet[id] {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

// InsertChunk inserts the chunk in one transaction and returns how many rows
// were actually created. ON CONFLICT DO NOTHING makes re-ingestion of already
// seen messages a no-op rather than an error.
func (a *EmailAdapter) InsertChunk(ctx context.Context, emails []*domain.ProcessedEmail) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO processed_emails (account_email, gmail_message_id, subject, sender, sender_domain,
		                              received_at, is_subscription, confidence_score, vendor, category, user_selected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (gmail_message_id) DO NOTHING`

	inserted := 0
	for _, e := range emails {
		res, err := tx.ExecContext(ctx, query,
			e.AccountEmail,
			e.MessageID,
			e.Subject,
			e.Sender,
			e.SenderDomain,
			e.ReceivedAt,
			e.IsSubscription,
			e.ConfidenceScore,
			e.Vendor,
			e.Category,
			e.UserSelected,
		)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// List returns a page of processed emails plus the total match count.
func (a *EmailAdapter) List(ctx context.Context, q *out.EmailListQuery) ([]*domain.ProcessedEmail, int, error) {
	where := ""
	args := []interface{}{}
	if q.Classified != nil {
		where = `WHERE is_subscription = $1`
		args = append(args, *q.Classified)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM processed_emails ` + where
	if err := a.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, q.Offset)

	var limitClause string
	if q.Classified != nil {
		limitClause = `LIMIT $2 OFFSET $3`
	} else {
		limitClause = `LIMIT $1 OFFSET $2`
	}

	var rows []*emailRow
	query := `
		SELECT ` + emailColumns + `
		FROM processed_emails ` + where + `
		ORDER BY received_at DESC
		` + limitClause
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, total, nil
		}
		return nil, 0, err
	}

	emails := make([]*domain.ProcessedEmail, 0, len(rows))
	for _, r := range rows {
		emails = append(emails, r.toDomain())
	}
	return emails, total, nil
}

// Count returns the total number of processed emails.
func (a *EmailAdapter) Count(ctx context.Context) (int, error) {
	var total int
	if err := a.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM processed_emails`); err != nil {
		return 0, err
	}
	return total, nil
}

// DomainCounts returns aggregate rows for domain clustering.
func (a *EmailAdapter) DomainCounts(ctx context.Context) ([]*out.DomainCount, error) {
	var rows []*out.DomainCount
	query := `
		SELECT sender_domain, is_subscription, user_selected, COUNT(*) AS count
		FROM processed_emails
		WHERE sender_domain <> ''
		GROUP BY sender_domain, is_subscription, user_selected
		ORDER BY sender_domain`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteAll removes every processed email.
func (a *EmailAdapter) DeleteAll(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM processed_emails`)
	return err
}

// Ensure EmailAdapter implements out.EmailRepository
var _ out.EmailRepository = (*EmailAdapter)(nil)
