package redis

import (
	"context"
	"time"
)

// CacheStore defines the cache operations the stores in this package depend on.
type CacheStore[T any] interface {
	// Get returns ErrCacheMiss if the key does not exist.
	Get(ctx context.Context, key string) (*T, error)
	Set(ctx context.Context, key string, value T) error
	SetWithTTL(ctx context.Context, key string, value T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	MGet(ctx context.Context, keys ...string) (map[string]*T, error)
}

// SetIndex is a named set of members.
type SetIndex interface {
	Add(ctx context.Context, members ...string) error
	Remove(ctx context.Context, members ...string) error
	Members(ctx context.Context) ([]string, error)
}

// Compile-time checks.
var (
	_ CacheStore[struct{}] = (*Cache[struct{}])(nil)
	_ SetIndex             = (*Set)(nil)
)
