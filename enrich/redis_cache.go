package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a new Redis cache and checks the connection.
func NewRedisCache(ctx context.Context, address string, ttlSeconds int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		prefix: "enrich:seen:",
	}, nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Seen reports whether feedID was marked within the TTL.
func (c *RedisCache) Seen(ctx context.Context, feedID int64) (bool, error) {
	err := c.client.Get(ctx, c.key(feedID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read seen marker: %w", err)
	}
	return true, nil
}

// MarkSeen records feedID for the cache TTL.
func (c *RedisCache) MarkSeen(ctx context.Context, feedID int64) error {
	if err := c.client.Set(ctx, c.key(feedID), time.Now().Unix(), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write seen marker: %w", err)
	}
	return nil
}

func (c *RedisCache) key(feedID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, feedID)
}
