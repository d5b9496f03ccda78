package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisNamespace = "gmcstatus:"

type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (rc *RedisCache) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	value, err := rc.client.Get(ctx, redisNamespace+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return io.NopCloser(strings.NewReader(value)), nil
}

func (rc *RedisCache) Put(ctx context.Context, key, value string) error {
	return rc.client.Set(ctx, redisNamespace+key, value, 0).Err()
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, redisNamespace+key).Err()
}

func (rc *RedisCache) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := rc.client.Scan(ctx, 0, redisNamespace+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), redisNamespace+prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ready pings the server.
func (rc *RedisCache) Ready(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}
