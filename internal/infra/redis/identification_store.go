package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/sipguard/pkg/domain/format"
)

const identificationPrefix = "sipguard:identification"

// IdentificationStore keeps the format identification result of each workflow.
type IdentificationStore struct {
	cache CacheStore[format.Result]
}

// NewIdentificationStore creates an IdentificationStore whose entries expire after ttl.
func NewIdentificationStore(client *Client, ttl time.Duration) (*IdentificationStore, error) {
	cache, err := NewCache[format.Result](client, identificationPrefix, ttl)
	if err != nil {
		return nil, err
	}
	return newIdentificationStore(cache), nil
}

func newIdentificationStore(cache CacheStore[format.Result]) *IdentificationStore {
	return &IdentificationStore{cache: cache}
}

// Save replaces the stored result of a workflow.
func (s *IdentificationStore) Save(ctx context.Context, workflowExternalID string, result format.Result) error {
	if result == nil {
		result = format.Result{}
	}
	if err := s.cache.Set(ctx, workflowExternalID, result); err != nil {
		return fmt.Errorf("failed to save identification result: %w", err)
	}
	return nil
}

// Load returns the stored result of a workflow or format.ErrResultNotFound.
func (s *IdentificationStore) Load(ctx context.Context, workflowExternalID string) (format.Result, error) {
	result, err := s.cache.Get(ctx, workflowExternalID)
	if errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", format.ErrResultNotFound, workflowExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identification result: %w", err)
	}
	return *result, nil
}

// Delete removes the stored result of a workflow.
func (s *IdentificationStore) Delete(ctx context.Context, workflowExternalID string) error {
	return s.cache.Delete(ctx, workflowExternalID)
}

var _ format.ResultStore = (*IdentificationStore)(nil)
