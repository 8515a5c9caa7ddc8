package incident

import (
	"context"
	"errors"
)

// ErrIncidentNotFound is returned when no incident is pending for a workflow.
var ErrIncidentNotFound = errors.New("incident not found")

// Repository stores pending incidents, at most one per workflow.
type Repository interface {
	Save(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, workflowExternalID string) (*Incident, error)
	Delete(ctx context.Context, workflowExternalID string) error
	List(ctx context.Context) ([]*Incident, error)
}
