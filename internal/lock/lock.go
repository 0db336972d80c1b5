// Package lock implements an optional distributed job-claim lock over
// Redis, so a job is only ever processed by one service instance even
// when several share the same job queue. Single-instance deployments
// simply leave this unconfigured.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker claims and releases a named lock with a TTL.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with SETNX/DEL against a Redis server.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// New builds a client for the Redis server described by addr (a
// redis:// URL). It only parses the URL; no connection is made until
// the first lock operation.
func New(addr string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("lock: parse redis url: %w", err)
	}
	return &RedisLocker{client: redis.NewClient(opts), prefix: "llmtxt:lock:"}, nil
}

// TryAcquire attempts to claim key, returning false without error if
// another holder already owns it.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the lock on key. It is safe to call even if the
// caller never held it.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
