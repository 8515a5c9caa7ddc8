package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON encoded values of one type under a key prefix.
type Cache[T any] struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

// NewCache creates a cache storing JSON values under prefix.
func NewCache[T any](client *Client, prefix string, ttl time.Duration) (*Cache[T], error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if ttl <= 0 {
		return nil, errors.New("TTL must be positive")
	}

	return &Cache[T]{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
	}, nil
}

// buildKey creates the full cache key with prefix.
func (c *Cache[T]) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, key)
}

// Get retrieves a cached value by key.
// Returns ErrCacheMiss if the key does not exist.
func (c *Cache[T]) Get(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	start := time.Now()
	fullKey := c.buildKey(key)

	data, err := c.client.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		DefaultMetrics.RecordCacheMiss(c.keyPrefix)
		DefaultMetrics.ObserveOperation("cache_get", time.Since(start), nil)
		return nil, ErrCacheMiss
	}
	if err != nil {
		DefaultMetrics.ObserveOperation("cache_get", time.Since(start), err)
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		DefaultMetrics.ObserveOperation("cache_get", time.Since(start), err)
		return nil, fmt.Errorf("cache unmarshal: %w", err)
	}

	DefaultMetrics.RecordCacheHit(c.keyPrefix)
	DefaultMetrics.ObserveOperation("cache_get", time.Since(start), nil)
	return &value, nil
}

// Set stores a value in the cache with the default TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in the cache with a custom TTL.
func (c *Cache[T]) SetWithTTL(ctx context.Context, key string, value T, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("TTL must be positive")
	}

	start := time.Now()
	fullKey := c.buildKey(key)

	data, err := json.Marshal(value)
	if err != nil {
		DefaultMetrics.ObserveOperation("cache_set", time.Since(start), err)
		return fmt.Errorf("cache marshal: %w", err)
	}

	if err := c.client.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		DefaultMetrics.ObserveOperation("cache_set", time.Since(start), err)
		return fmt.Errorf("cache set: %w", err)
	}

	DefaultMetrics.ObserveOperation("cache_set", time.Since(start), nil)
	return nil
}

// Delete removes a key from the cache.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}

	fullKey := c.buildKey(key)

	if err := c.client.client.Del(ctx, fullKey).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}

	return nil
}

// MGet retrieves multiple values by keys.
// Returns a map of key to value. Missing keys are not included in the result.
func (c *Cache[T]) MGet(ctx context.Context, keys ...string) (map[string]*T, error) {
	if len(keys) == 0 {
		return make(map[string]*T), nil
	}

	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("key at index %d is empty", i)
		}
		fullKeys[i] = c.buildKey(key)
	}

	values, err := c.client.client.MGet(ctx, fullKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache mget: %w", err)
	}

	result := make(map[string]*T)
	for i, v := range values {
		if v == nil {
			continue
		}

		data, ok := v.(string)
		if !ok {
			continue
		}

		var value T
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			c.client.logger.Warn("cache mget unmarshal failed",
				"cache", c.keyPrefix,
				"key", keys[i],
				"error", err,
			)
			continue
		}

		result[keys[i]] = &value
	}

	return result, nil
}

// GetOrSetFallback returns the cached value or calls loader and caches its result.
// Redis errors fall back to the loader.
func (c *Cache[T]) GetOrSetFallback(ctx context.Context, key string, loader func(ctx context.Context) (*T, error)) (*T, error) {
	return c.GetOrSetFallbackWithTTL(ctx, key, c.ttl, loader)
}

// GetOrSetFallbackWithTTL is like GetOrSetFallback but with a custom TTL.
func (c *Cache[T]) GetOrSetFallbackWithTTL(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (*T, error)) (*T, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}
	if loader == nil {
		return nil, errors.New("loader function is required")
	}
	if ttl <= 0 {
		return nil, errors.New("TTL must be positive")
	}

	value, err := c.Get(ctx, key)
	if err == nil {
		return value, nil
	}

	if !errors.Is(err, ErrCacheMiss) {
		c.client.logger.Warn("cache get failed, falling back to source",
			"key", key,
			"error", err,
		)
	}

	return c.loadAndCache(ctx, key, ttl, loader)
}

// loadAndCache loads value from loader and caches it.
func (c *Cache[T]) loadAndCache(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (*T, error)) (*T, error) {
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.SetWithTTL(ctx, key, *value, ttl); err != nil {
		c.client.logger.Warn("cache set failed after load",
			"key", key,
			"error", err,
		)
	}

	return value, nil
}

