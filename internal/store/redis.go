package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps the shared Redis client backing the delivery queue and
// the per-endpoint rate limiter counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedis parses a redis:// URL, connects, and verifies connectivity with
// a ping.
func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the raw client for the dispatcher, poller and rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
