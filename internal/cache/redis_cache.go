package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirkoperasi/backend/internal/domain"
)

const (
	keyPrefix     = "kasirkoperasi:summary:"
	generationKey = keyPrefix + "generation"
)

// RedisSummaryCache namespaces entries by a generation counter. Invalidate
// bumps the counter so stale entries are never read again and expire by TTL.
// Set writes under the generation the caller read before computing, so a
// value computed before an invalidation lands in a namespace nobody reads.
type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (c *RedisSummaryCache) Version(ctx context.Context) (string, error) {
	return c.generation(ctx)
}

func namespaced(gen string, key string) string {
	return keyPrefix + gen + ":" + key
}

func (c *RedisSummaryCache) Get(ctx context.Context, key string) (*domain.CashFlowSummary, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}
	val, err := c.client.Get(ctx, namespaced(gen, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.CashFlowSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, version string, key string, value *domain.CashFlowSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, namespaced(version, key), payload, ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
