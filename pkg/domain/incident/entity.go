// Package incident models a workflow suspended until an operator decides how to continue.
package incident

import (
	"fmt"
	"time"

	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

// Incident is a pending operator decision for one workflow.
type Incident struct {
	ID       shared.ID       `json:"id"`
	Check    string          `json:"check"`
	Workflow ingest.Workflow `json:"workflow"`
	SIPPath  string          `json:"sip_path"`

	// Nodes is set for structural validation checks.
	Nodes []ingest.NodeAnomaly `json:"nodes,omitempty"`

	IssueIDs  []string  `json:"issue_ids"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a pending incident.
func New(check string, wf ingest.Workflow, sipPath string, issueIDs []string, message string) (*Incident, error) {
	if check == "" {
		return nil, fmt.Errorf("%w: check is required", shared.ErrValidation)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	if sipPath == "" {
		return nil, fmt.Errorf("%w: sip path is required", shared.ErrValidation)
	}
	return &Incident{
		ID:        shared.NewID(),
		Check:     check,
		Workflow:  wf,
		SIPPath:   sipPath,
		IssueIDs:  issueIDs,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// WithOverride returns a copy of the incident whose workflow configuration has
// the operator override merged in.
func (i *Incident) WithOverride(override policy.Document) (*Incident, error) {
	merged, err := policy.Merge(i.Workflow.Config, override)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	out := *i
	out.Workflow.Config = merged
	return &out, nil
}
