package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// Options configures the redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache stores JSON-encoded values in redis
type Cache struct {
	client *redis.Client
}

// New creates a cache backed by a redis client
func New(opts Options) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

// Ping checks the redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the redis connection pool
func (c *Cache) Close() error {
	return c.client.Close()
}

// Memoize returns the cached value for key or calls fn and caches its
// result. A nil cache, or a redis failure, just calls fn.
func Memoize[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}

	var result T

	// Try fetching from cache
	cachedData, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(cachedData, &result); jsonErr == nil {
			return result, nil
		}
	}

	result, err = fn()
	if err != nil {
		return result, err
	}

	if cacheData, err := json.Marshal(result); err == nil {
		c.client.Set(ctx, key, cacheData, ttl)
	}

	return result, nil
}
