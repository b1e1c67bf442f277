// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/pkg/crypto"
	"subtrack_server/pkg/logger"

	"github.com/jmoiron/sqlx"
)

type connectionRow struct {
	ID           int64        `db:"id"`
	Email        string       `db:"email"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	TokenExpiry  time.Time    `db:"token_expiry"`
	SyncCursor   string       `db:"sync_cursor"`
	LastSyncAt   sql.NullTime `db:"last_sync_at"`
	IsActive     bool         `db:"is_active"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// ConnectionAdapter implements out.ConnectionRepository using PostgreSQL.
// OAuth tokens are encrypted at rest when a key is configured.
type ConnectionAdapter struct {
	db                *sqlx.DB
	encryptionEnabled bool
}

// NewConnectionAdapter creates a new ConnectionAdapter.
func NewConnectionAdapter(db *sqlx.DB) *ConnectionAdapter {
	err := crypto.Init()
	encryptionEnabled := err == nil
	if !encryptionEnabled {
		logger.Warn("Token encryption disabled: %v", err)
	} else {
		logger.Info("Token encryption enabled")
	}

	return &ConnectionAdapter{
		db:                db,
		encryptionEnabled: encryptionEnabled,
	}
}

func (a *ConnectionAdapter) encryptToken(token string) string {
	if !a.encryptionEnabled || token == "" {
		return token
	}
	encrypted, err := crypto.EncryptToken(token)
	if err != nil {
		logger.Warn("Failed to encrypt token: %v", err)
		return token
	}
	return encrypted
}

func (a *ConnectionAdapter) decryptToken(token string) string {
	if token == "" || !crypto.IsEncrypted(token) {
		return token
	}
	decrypted, err := crypto.DecryptToken(token)
	if err != nil {
		// Legacy plaintext value, return as-is
		return token
	}
	return decrypted
}

func (a *ConnectionAdapter) toDomain(row *connectionRow) *domain.Connection {
	conn := &domain.Connection{
		ID:           row.ID,
		Email:        row.Email,
		AccessToken:  a.decryptToken(row.AccessToken),
		RefreshToken: a.decryptToken(row.RefreshToken),
		TokenExpiry:  row.TokenExpiry,
		SyncCursor:   row.SyncCursor,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.LastSyncAt.Valid {
		t := row.LastSyncAt.Time
		conn.LastSyncAt = &t
	}
	return conn
}

const connectionColumns = `id, email, access_token, refresh_token, token_expiry,
	       sync_cursor, last_sync_at, is_active, created_at, updated_at`

// GetActive returns the single active connection.
func (a *ConnectionAdapter) GetActive(ctx context.Context) (*domain.Connection, error) {
	var row connectionRow
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE is_active = true
		ORDER BY updated_at DESC
		LIMIT 1`

	if err := a.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a.toDomain(&row), nil
}

// GetByEmail returns the connection for an account.
func (a *ConnectionAdapter) GetByEmail(ctx context.Context, email string) (*domain.Connection, error) {
	var row connectionRow
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE email = $1`

	if err := a.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a.toDomain(&row), nil
}

// Upsert creates the connection or replaces its credential fields when a row
// for the same account already exists. Re-linking a mailbox never duplicates it.
func (a *ConnectionAdapter) Upsert(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (email, access_token, refresh_token, token_expiry, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token ELSE connections.refresh_token END,
			token_expiry = EXCLUDED.token_expiry,
			is_active = true,
			updated_at = NOW()
		RETURNING id`

	return a.db.QueryRowContext(ctx, query,
		conn.Email,
		a.encryptToken(conn.AccessToken),
		a.encryptToken(conn.RefreshToken),
		conn.TokenExpiry,
	).Scan(&conn.ID)
}

// UpdateToken persists a refreshed access token and its new expiry.
func (a *ConnectionAdapter) UpdateToken(ctx context.Context, id int64, accessToken string, expiry time.Time) error {
	query := `
		UPDATE connections
		SET access_token = $1, token_expiry = $2, updated_at = NOW()
		WHERE id = $3`

	_, err := a.db.ExecContext(ctx, query, a.encryptToken(accessToken), expiry, id)
	return err
}

// UpdateCursor persists the opaque pagination cursor.
func (a *ConnectionAdapter) UpdateCursor(ctx context.Context, id int64, cursor string) error {
	query := `
		UPDATE connections
		SET sync_cursor = $1, updated_at = NOW()
		WHERE id = $2`

	_, err := a.db.ExecContext(ctx, query, cursor, id)
	return err
}

// MarkSynced records a successful sync completion time.
func (a *ConnectionAdapter) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE connections
		SET last_sync_at = $1, updated_at = NOW()
		WHERE id = $2`

	_, err := a.db.ExecContext(ctx, query, at, id)
	return err
}

// DeleteAll removes every connection.
func (a *ConnectionAdapter) DeleteAll(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM connections`)
	return err
}

// Ensure ConnectionAdapter implements out.ConnectionRepository
var _ out.ConnectionRepository = (*ConnectionAdapter)(nil)
