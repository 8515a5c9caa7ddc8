package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/openctemio/sipguard/internal/metrics"
	"github.com/openctemio/sipguard/pkg/domain/incident"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/logger"
)

// Enqueuer schedules a check run.
type Enqueuer interface {
	EnqueueCheck(ctx context.Context, in Input) error
}

// IncidentService lets an operator resolve pending incidents.
type IncidentService struct {
	repo     incident.Repository
	enqueuer Enqueuer
	logger   *logger.Logger
}

// NewIncidentService creates a new IncidentService.
func NewIncidentService(repo incident.Repository, enqueuer Enqueuer, log *logger.Logger) *IncidentService {
	return &IncidentService{
		repo:     repo,
		enqueuer: enqueuer,
		logger:   log.With("service", "incident"),
	}
}

// List returns all pending incidents, oldest first.
func (s *IncidentService) List(ctx context.Context) ([]*incident.Incident, error) {
	incidents, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	metrics.IncidentsOpen.Set(float64(len(incidents)))
	return incidents, nil
}

// Get returns the pending incident of a workflow.
func (s *IncidentService) Get(ctx context.Context, workflowExternalID string) (*incident.Incident, error) {
	if !ingest.ValidExternalID(workflowExternalID) {
		return nil, fmt.Errorf("%w: invalid workflow external id %q", shared.ErrValidation, workflowExternalID)
	}
	return s.repo.Get(ctx, workflowExternalID)
}

// Solve merges the operator override into the workflow configuration and
// schedules the check again. The incident is dropped before the check is
// enqueued so that a new incident from the rerun is never lost.
func (s *IncidentService) Solve(ctx context.Context, workflowExternalID string, override policy.Document) (*incident.Incident, error) {
	if override.IsZero() {
		return nil, fmt.Errorf("%w: config override is required", shared.ErrValidation)
	}
	inc, err := s.Get(ctx, workflowExternalID)
	if err != nil {
		return nil, err
	}
	solved, err := inc.WithOverride(override)
	if err != nil {
		return nil, err
	}

	in := Input{
		Check:    Kind(solved.Check),
		Workflow: solved.Workflow,
		SIPPath:  solved.SIPPath,
		Nodes:    solved.Nodes,
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, workflowExternalID); err != nil {
		return nil, fmt.Errorf("failed to delete incident: %w", err)
	}
	if err := s.enqueuer.EnqueueCheck(ctx, in); err != nil {
		if restoreErr := s.repo.Save(ctx, inc); restoreErr != nil {
			s.logger.Error("failed to restore incident", "workflow_id", workflowExternalID, "error", restoreErr)
		}
		return nil, fmt.Errorf("failed to enqueue check: %w", err)
	}

	metrics.IncidentsOpen.Dec()
	metrics.IncidentsTotal.WithLabelValues("solved").Inc()
	s.logger.Info("incident solved", "workflow_id", workflowExternalID, "check", solved.Check)
	return solved, nil
}

// Cancel drops the incident and returns the failure to report for the workflow.
func (s *IncidentService) Cancel(ctx context.Context, workflowExternalID, reason string) (*issue.ProcessFailureError, error) {
	inc, err := s.Get(ctx, workflowExternalID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, workflowExternalID); err != nil {
		return nil, fmt.Errorf("failed to delete incident: %w", err)
	}

	metrics.IncidentsOpen.Dec()
	metrics.IncidentsTotal.WithLabelValues("cancelled").Inc()
	s.logger.Info("incident cancelled", "workflow_id", workflowExternalID, "check", inc.Check)

	msg := fmt.Sprintf("Incident of workflow %s raised by check %s was cancelled by the operator", inc.Workflow.ExternalID, inc.Check)
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += ": " + reason
	}
	return issue.NewProcessFailureError("%s", msg), nil
}
