package indicator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trade-agent/internal/logger"
)

// Cache stores the previous-period indicator value per symbol. It is
// written once at session start and read for the rest of the trading day.
type Cache interface {
	Put(ctx context.Context, symbol string, value float64) error
	Get(ctx context.Context, symbol string) (float64, bool)
}

// memCache is the in-process fallback when no Redis is configured.
type memCache struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewMemCache() Cache {
	return &memCache{values: make(map[string]float64)}
}

func (c *memCache) Put(ctx context.Context, symbol string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[symbol] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[symbol]
	return v, ok
}

// redisCache survives process restarts within the trading day, so a
// mid-session crash does not lose the authoritative previous-period values.
type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(addr string, ttl time.Duration) (Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisCache{rdb: rdb, ttl: ttl}, nil
}

func cacheKey(symbol string) string {
	return "indicator:prev:" + symbol
}

func (c *redisCache) Put(ctx context.Context, symbol string, value float64) error {
	err := c.rdb.Set(ctx, cacheKey(symbol), strconv.FormatFloat(value, 'f', -1, 64), c.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set %s: %w", symbol, err)
	}
	return nil
}

func (c *redisCache) Get(ctx context.Context, symbol string) (float64, bool) {
	s, err := c.rdb.Get(ctx, cacheKey(symbol)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "Previous-period cache read failed", "symbol", symbol, "error", err)
		}
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
