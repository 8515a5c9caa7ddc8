package redis

import (
	"context"
	"time"

	"github.com/openctemio/sipguard/pkg/domain/format"
)

const formatPrefix = "sipguard:format"

// CachedFormatRepository caches preferred format definitions in front of the registry.
type CachedFormatRepository struct {
	repo  format.Repository
	cache *Cache[format.Definition]
}

// NewCachedFormatRepository wraps repo with a definition cache.
func NewCachedFormatRepository(client *Client, repo format.Repository, ttl time.Duration) (*CachedFormatRepository, error) {
	cache, err := NewCache[format.Definition](client, formatPrefix, ttl)
	if err != nil {
		return nil, err
	}
	return &CachedFormatRepository{repo: repo, cache: cache}, nil
}

// FindPreferredByPUID returns the cached definition or loads it from the registry.
func (r *CachedFormatRepository) FindPreferredByPUID(ctx context.Context, puid string) (*format.Definition, error) {
	return r.cache.GetOrSetFallback(ctx, puid, func(ctx context.Context) (*format.Definition, error) {
		return r.repo.FindPreferredByPUID(ctx, puid)
	})
}

// Upsert writes through to the registry and drops the cached entry.
func (r *CachedFormatRepository) Upsert(ctx context.Context, def *format.Definition) error {
	if err := r.repo.Upsert(ctx, def); err != nil {
		return err
	}
	return r.cache.Delete(ctx, def.PUID)
}

var _ format.Repository = (*CachedFormatRepository)(nil)
