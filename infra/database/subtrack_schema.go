package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently on startup. The unique index on
// gmail_message_id is what makes ingestion safe to re-run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS connections (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(320) NOT NULL UNIQUE,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_expiry TIMESTAMP WITH TIME ZONE NOT NULL,
		sync_cursor TEXT NOT NULL DEFAULT '',
		last_sync_at TIMESTAMP WITH TIME ZONE,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS processed_emails (
		id BIGSERIAL PRIMARY KEY,
		account_email VARCHAR(320) NOT NULL,
		gmail_message_id VARCHAR(100) NOT NULL UNIQUE,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		sender_domain VARCHAR(255) NOT NULL DEFAULT '',
		received_at TIMESTAMP WITH TIME ZONE NOT NULL,
		processed_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		is_subscription BOOLEAN NOT NULL DEFAULT false,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		vendor VARCHAR(255) NOT NULL DEFAULT '',
		category VARCHAR(100) NOT NULL DEFAULT '',
		user_selected BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_emails_domain ON processed_emails (sender_domain)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_emails_received ON processed_emails (received_at DESC)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		domains TEXT[] NOT NULL DEFAULT '{}',
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency VARCHAR(10) NOT NULL DEFAULT 'USD',
		billing_cycle VARCHAR(20) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		auto_renew BOOLEAN NOT NULL DEFAULT true,
		category VARCHAR(100) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_by VARCHAR(10) NOT NULL DEFAULT 'user',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
