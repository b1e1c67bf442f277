// Package cache provides Redis-backed adapters.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"subtrack_server/core/port/out"
)

const processedKeyPrefix = "processed:"

// DedupCache is a Redis pre-filter for already-processed message IDs. It only
// saves round trips to the provider and the database; the unique constraint on
// gmail_message_id remains the source of truth.
type DedupCache struct {
	client *redis.Client
}

// NewDedupCache creates a new DedupCache.
func NewDedupCache(client *redis.Client) *DedupCache {
	return &DedupCache{client: client}
}

// SeenAny returns the subset of ids present in the cache.
func (c *DedupCache) SeenAny(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = processedKeyPrefix + id
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for i, v := range values {
		if v != nil {
			seen[ids[i]] = true
		}
	}
	return seen, nil
}

// MarkProcessed records ids as processed for the given TTL.
func (c *DedupCache) MarkProcessed(ctx context.Context, ids []string, ttl time.Duration) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, id := range ids {
		pipe.Set(ctx, processedKeyPrefix+id, "1", ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Flush drops every cached id.
func (c *DedupCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, processedKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ensure DedupCache implements out.ProcessedIDCache
var _ out.ProcessedIDCache = (*DedupCache)(nil)
