// Package cache stores finished response envelopes in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"itdocs-query/internal/models"
)

var ErrCacheUnavailable = errors.New("CACHE_UNAVAILABLE")

type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns (nil, nil) on a miss. Entries that no longer decode are
// treated as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*models.ResponseEnvelope, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrCacheUnavailable, key, err)
	}

	var env models.ResponseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil
	}
	return &env, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, env *models.ResponseEnvelope, ttl time.Duration) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrCacheUnavailable, key, err)
	}
	return nil
}
