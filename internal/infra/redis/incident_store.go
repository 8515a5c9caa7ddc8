package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/openctemio/sipguard/pkg/domain/incident"
)

const (
	incidentPrefix   = "sipguard:incident"
	incidentIndexKey = "sipguard:incidents"
)

// IncidentStore keeps pending incidents keyed by workflow, plus an index of open workflows.
type IncidentStore struct {
	cache CacheStore[incident.Incident]
	index SetIndex
}

// NewIncidentStore creates an IncidentStore whose entries expire after ttl.
func NewIncidentStore(client *Client, ttl time.Duration) (*IncidentStore, error) {
	cache, err := NewCache[incident.Incident](client, incidentPrefix, ttl)
	if err != nil {
		return nil, err
	}
	return newIncidentStore(cache, client.NewSet(incidentIndexKey)), nil
}

func newIncidentStore(cache CacheStore[incident.Incident], index SetIndex) *IncidentStore {
	return &IncidentStore{cache: cache, index: index}
}

// Save stores the incident, replacing any pending one for the same workflow.
func (s *IncidentStore) Save(ctx context.Context, inc *incident.Incident) error {
	if inc == nil {
		return errors.New("incident is required")
	}
	key := inc.Workflow.ExternalID
	if err := s.cache.Set(ctx, key, *inc); err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	if err := s.index.Add(ctx, key); err != nil {
		return fmt.Errorf("failed to index incident: %w", err)
	}
	return nil
}

// Get returns the pending incident of a workflow or incident.ErrIncidentNotFound.
func (s *IncidentStore) Get(ctx context.Context, workflowExternalID string) (*incident.Incident, error) {
	inc, err := s.cache.Get(ctx, workflowExternalID)
	if errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", incident.ErrIncidentNotFound, workflowExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	return inc, nil
}

// Delete removes the pending incident of a workflow.
func (s *IncidentStore) Delete(ctx context.Context, workflowExternalID string) error {
	if err := s.cache.Delete(ctx, workflowExternalID); err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	return s.index.Remove(ctx, workflowExternalID)
}

// List returns the pending incidents, oldest first. Expired entries are pruned from the index.
func (s *IncidentStore) List(ctx context.Context) ([]*incident.Incident, error) {
	keys, err := s.index.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	found, err := s.cache.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}

	var stale []string
	out := make([]*incident.Incident, 0, len(found))
	for _, key := range keys {
		inc, ok := found[key]
		if !ok {
			stale = append(stale, key)
			continue
		}
		out = append(out, inc)
	}
	if len(stale) > 0 {
		if err := s.index.Remove(ctx, stale...); err != nil {
			return nil, fmt.Errorf("failed to prune incident index: %w", err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Workflow.ExternalID < out[j].Workflow.ExternalID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ incident.Repository = (*IncidentStore)(nil)
