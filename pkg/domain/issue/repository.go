package issue

import (
	"context"

	"github.com/openctemio/sipguard/pkg/domain/tool"
)

// Repository persists issues. Issues are append-only.
type Repository interface {
	Save(ctx context.Context, issue *Issue) error
	// SaveAll persists all issues atomically.
	SaveAll(ctx context.Context, issues []*Issue) error

	FindByToolAndWorkflow(ctx context.Context, function tool.Function, workflowExternalID string) ([]*Issue, error)
	FindByCheckCode(ctx context.Context, code CheckCode, filter Filter) ([]*Issue, error)
}

// Filter narrows FindByCheckCode queries.
type Filter struct {
	WorkflowExternalID string
	Limit              int
}
