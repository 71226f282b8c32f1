package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// TransferLockKey builds redis keys for per-transfer critical sections.
func TransferLockKey(transferID int64) string {
	return fmt.Sprintf("transfer:%d:lock", transferID)
}

// RedisLocker serialises work on a key across processes.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker builds a locker backed by the provided redis client.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// WithLock runs fn while holding key. Contention returns ErrLockNotObtained without retrying.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
