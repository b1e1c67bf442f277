package out

import (
	"context"
	"time"
)

// ProcessedIDCache is a fast pre-filter in front of the database dedup
// constraint. A cache miss is never authoritative; the unique constraint on
// the message ID remains the source of truth.
type ProcessedIDCache interface {
	// SeenAny returns the subset of ids present in the cache.
	SeenAny(ctx context.Context, ids []string) (map[string]bool, error)

	// MarkProcessed records ids as processed for the given TTL.
	MarkProcessed(ctx context.Context, ids []string, ttl time.Duration) error

	// Flush drops every cached id (full reset).
	Flush(ctx context.Context) error
}
