package out

import (
	"context"

	"subtrack_server/core/domain"
)

// EmailListQuery filters the processed-email listing.
type EmailListQuery struct {
	// Classified filters on the is_subscription flag when non-nil.
	Classified *bool
	Limit      int
	Offset     int
}

// DomainCount is one (domain, is_subscription, user_selected) aggregate row.
type DomainCount struct {
	Domain         string `db:"sender_domain"`
	IsSubscription bool   `db:"is_subscription"`
	UserSelected   bool   `db:"user_selected"`
	Count          int    `db:"count"`
}

// EmailRepository persists processed emails. The unique constraint on the
// message ID is the deduplication guarantee; inserts colliding on it must be
// swallowed, never surfaced.
type EmailRepository interface {
	// Exists reports whether the message ID was already processed.
	Exists(ctx context.Context, messageID string) (bool, error)

	// FilterNew returns, in input order, the subset of ids with no stored row.
	FilterNew(ctx context.Context, ids []string) ([]string, error)

	// InsertChunk inserts the chunk in one transaction and returns how many
	// rows were actually created. Unique-constraint collisions within the
	// chunk are counted as duplicates, not errors.
	InsertChunk(ctx context.Context, emails []*domain.ProcessedEmail) (inserted int, err error)

	// List returns a page of processed emails plus the total match count.
	List(ctx context.Context, q *EmailListQuery) ([]*domain.ProcessedEmail, int, error)

	// Count returns the total number of processed emails.
	Count(ctx context.Context) (int, error)

	// DomainCounts returns aggregate rows for domain clustering.
	DomainCounts(ctx context.Context) ([]*DomainCount, error)

	// DeleteAll removes every processed email (full reset).
	DeleteAll(ctx context.Context) error
}
