package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/stability/internal/core/domain"
)

type cachedResponse struct {
	Response *domain.Response `json:"response"`
	StoredAt time.Time        `json:"stored_at"`
}

// ResponseCache stores successful responses in Redis so every instance can
// serve the cached fallback strategy. Entries expire through Redis TTLs.
type ResponseCache struct {
	client *Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache creates a cache with the given entry lifetime.
func NewResponseCache(client *Client, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached response for key. Redis errors count as a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) (*domain.Response, bool) {
	data, err := c.client.rdb.Get(ctx, c.client.responseKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("response cache get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var entry cachedResponse
	if err := json.Unmarshal(data, &entry); err != nil || entry.Response == nil {
		c.logger.Warn("response cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return entry.Response, true
}

// Put stores resp under key with the configured TTL.
func (c *ResponseCache) Put(ctx context.Context, key string, resp *domain.Response) {
	data, err := json.Marshal(cachedResponse{Response: resp, StoredAt: time.Now()})
	if err != nil {
		c.logger.Warn("response cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.rdb.Set(ctx, c.client.responseKey(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("response cache set failed", "key", key, "error", err)
	}
}

// Prune is a no-op: Redis evicts expired keys itself.
func (c *ResponseCache) Prune(context.Context) int {
	return 0
}

// Clear deletes every response key under the configured prefix.
func (c *ResponseCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, c.client.responsePattern(), 100).Result()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
