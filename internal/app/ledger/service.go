// Package ledger records and queries the issues raised while ingesting packages.
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openctemio/sipguard/internal/metrics"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
	"github.com/openctemio/sipguard/pkg/logger"
)

// DefaultQueryLimit caps FindByCheckCode results when no limit is given.
const DefaultQueryLimit = 1000

// Service is the issue ledger. Every call to Record creates a new issue.
type Service struct {
	repo   issue.Repository
	logger *logger.Logger
}

// NewService creates a new ledger Service.
func NewService(repo issue.Repository, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log.With("service", "ledger"),
	}
}

// Record persists one issue.
func (s *Service) Record(ctx context.Context, p issue.Params) (*issue.Issue, error) {
	is, err := issue.New(p)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, is); err != nil {
		return nil, fmt.Errorf("failed to record issue: %w", err)
	}
	s.observe(is)
	return is, nil
}

// RecordAll persists the issues in a single transaction. Nothing is saved
// when any of them is invalid.
func (s *Service) RecordAll(ctx context.Context, params []issue.Params) ([]*issue.Issue, error) {
	if len(params) == 0 {
		return nil, nil
	}
	issues := make([]*issue.Issue, 0, len(params))
	for i, p := range params {
		is, err := issue.New(p)
		if err != nil {
			return nil, fmt.Errorf("issue %d: %w", i, err)
		}
		issues = append(issues, is)
	}
	if err := s.repo.SaveAll(ctx, issues); err != nil {
		return nil, fmt.Errorf("failed to record issues: %w", err)
	}
	for _, is := range issues {
		s.observe(is)
	}
	return issues, nil
}

func (s *Service) observe(is *issue.Issue) {
	metrics.IssuesRecordedTotal.WithLabelValues(
		string(is.CheckCode()),
		strconv.FormatBool(is.ResolvedByPolicy()),
	).Inc()
	s.logger.Info("issue recorded",
		"issue_id", is.ID().String(),
		"workflow_id", is.WorkflowExternalID(),
		"check_code", string(is.CheckCode()),
		"tool", is.Tool().Name,
		"resolved_by_policy", is.ResolvedByPolicy(),
	)
}

// FindByToolAndWorkflow returns the issues recorded by tools of one function
// for a workflow, oldest first.
func (s *Service) FindByToolAndWorkflow(ctx context.Context, function tool.Function, workflowExternalID string) ([]*issue.Issue, error) {
	if !function.IsValid() {
		return nil, fmt.Errorf("%w: unknown tool function %q", shared.ErrValidation, function)
	}
	if workflowExternalID == "" {
		return nil, fmt.Errorf("%w: workflow external id is required", shared.ErrValidation)
	}
	return s.repo.FindByToolAndWorkflow(ctx, function, workflowExternalID)
}

// FindByCheckCode returns the issues with a check code, newest first.
func (s *Service) FindByCheckCode(ctx context.Context, code issue.CheckCode, filter issue.Filter) ([]*issue.Issue, error) {
	if !code.IsValid() {
		return nil, fmt.Errorf("%w: unknown check code %q", shared.ErrValidation, code)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", shared.ErrValidation)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultQueryLimit
	}
	return s.repo.FindByCheckCode(ctx, code, filter)
}
