package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection shared by the response cache.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Enabled reports whether a Redis URL was configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg.KeyPrefix), nil
}

func newClient(rdb *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = "stability"
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) responseKey(key string) string {
	return fmt.Sprintf("%s:response:%s", c.prefix, key)
}

func (c *Client) responsePattern() string {
	return fmt.Sprintf("%s:response:*", c.prefix)
}
