package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker provides per-key mutual exclusion via SET NX with a TTL.
// Locks are best effort: the TTL bounds how long a crashed holder can
// block other workers.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
