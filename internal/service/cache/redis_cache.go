package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache adapts a shared redis client to BytesCache. The same client
// backs the job queue, so serve mode opens a single connection pool.
type RedisCache struct {
	cli    *redis.Client
	prefix string
}

func NewRedisCache(cli *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "earnscan:"
	}
	return &RedisCache{cli: cli, prefix: prefix}
}

func (r *RedisCache) key(k string) string { return r.prefix + k }

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	b, err := r.cli.Get(context.Background(), r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(context.Background(), r.key(key), value, ttl).Err()
}
