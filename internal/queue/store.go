package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the Redis client dependency is not configured.
var ErrStoreUnavailable = errors.New("queue: store unavailable")

// Store is the read-only view of the job store the gauges are refreshed from.
type Store interface {
	// Len returns the number of entries in the list at key.
	Len(ctx context.Context, key string) (int64, error)
	// Range returns list elements between start and stop inclusive. Negative indices count from the tail.
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	// HashField returns a field of the hash at key and whether it was present.
	HashField(ctx context.Context, key, field string) (string, bool, error)
}

// RedisStore implements Store on top of go-redis. Replies are returned as text.
type RedisStore struct {
	R redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) RedisStore {
	return RedisStore{R: client}
}

// Len issues LLEN.
func (s RedisStore) Len(ctx context.Context, key string) (int64, error) {
	if s.R == nil {
		return 0, ErrStoreUnavailable
	}
	return s.R.LLen(ctx, key).Result()
}

// Range issues LRANGE.
func (s RedisStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if s.R == nil {
		return nil, ErrStoreUnavailable
	}
	return s.R.LRange(ctx, key, start, stop).Result()
}

// HashField issues HGET. A missing key or field is reported as not found rather than an error.
func (s RedisStore) HashField(ctx context.Context, key, field string) (string, bool, error) {
	if s.R == nil {
		return "", false, ErrStoreUnavailable
	}
	val, err := s.R.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PingRedis satisfies the readiness checker used by the health endpoint.
func (s RedisStore) PingRedis(ctx context.Context, timeout time.Duration) error {
	if s.R == nil {
		return ErrStoreUnavailable
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.R.Ping(ctx).Err()
}
