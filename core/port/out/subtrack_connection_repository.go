package out

import (
	"context"
	"time"

	"subtrack_server/core/domain"
)

// ConnectionRepository persists mailbox connections and their OAuth state.
type ConnectionRepository interface {
	// GetActive returns the single active connection, or ErrNotFound.
	GetActive(ctx context.Context) (*domain.Connection, error)

	// GetByEmail returns the connection for an account, or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*domain.Connection, error)

	// Upsert creates the connection or replaces its credential fields when a
	// row for the same account already exists.
	Upsert(ctx context.Context, conn *domain.Connection) error

	// UpdateToken persists a refreshed access token and its new expiry.
	UpdateToken(ctx context.Context, id int64, accessToken string, expiry time.Time) error

	// UpdateCursor persists the opaque pagination cursor ("" clears it).
	UpdateCursor(ctx context.Context, id int64, cursor string) error

	// MarkSynced records a successful sync completion time.
	MarkSynced(ctx context.Context, id int64, at time.Time) error

	// DeleteAll removes every connection (full reset).
	DeleteAll(ctx context.Context) error
}
