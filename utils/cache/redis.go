package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "examprep:"

// RedisCache holds the short-lived counters and locks behind login
// protection and ingestion quotas. Every key is namespaced with a prefix so
// the instance can share a Redis database.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to redisURL and fails if the server does not answer
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheFromClient(client, defaultPrefix), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) key(k string) string { return r.prefix + k }

// IncrementWindow bumps a fixed-window counter and returns the new count and
// the time left in the window. The expiry is only set by the first hit, and
// both commands run in one transaction so a counter never outlives its window.
func (r *RedisCache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = r.key(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

// Lock sets key for ttl, replacing any lock already held
func (r *RedisCache) Lock(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), 1, ttl).Err()
}

// LockedFor reports how long key stays locked; zero means it is not locked
func (r *RedisCache) LockedFor(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, err
	}
	// -2 is a missing key, -1 a key without expiry; neither is a lock
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Clear removes keys
func (r *RedisCache) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.client.Del(ctx, full...).Err()
}

// Ping checks the connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}
