package checks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

// Kind names an ingest check.
type Kind string

const (
	KindAntivirus            Kind = "antivirus"
	KindFormatIdentification Kind = "format_identification"
	KindFixity               Kind = "fixity"
	KindMissingNodes         Kind = "missing_nodes"
)

// IsValid checks if the check kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindAntivirus, KindFormatIdentification, KindFixity, KindMissingNodes:
		return true
	default:
		return false
	}
}

// AllKinds returns every check kind.
func AllKinds() []Kind {
	return []Kind{KindAntivirus, KindFormatIdentification, KindFixity, KindMissingNodes}
}

// ParseKind parses a check kind from its string form.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: unknown check %q", shared.ErrValidation, s)
	}
	return k, nil
}

// Scanner inspects a package on disk. Besides ordinary errors it returns
// *issue.IncidentError, *issue.ProcessFailureError or *issue.RemediationError.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, sipPath string, wf *ingest.Workflow) error
}

// NodeHandler resolves missing node anomalies reported by package validation.
type NodeHandler interface {
	Handle(ctx context.Context, wf *ingest.Workflow, anomalies []ingest.NodeAnomaly) error
}

// Outcome is how a check ended for the orchestrator.
type Outcome string

const (
	// OutcomeCompleted lets the workflow continue.
	OutcomeCompleted Outcome = "completed"
	// OutcomeIncident suspends the workflow until an operator decides.
	OutcomeIncident Outcome = "incident"
	// OutcomeProcessFailure ends the workflow.
	OutcomeProcessFailure Outcome = "process_failure"
)

// MaxNodeAnomalies bounds the anomalies accepted in one request.
const MaxNodeAnomalies = 10000

// Input is a request to run one check.
type Input struct {
	Check    Kind                 `json:"check"`
	Workflow ingest.Workflow      `json:"workflow"`
	SIPPath  string               `json:"sip_path"`
	Nodes    []ingest.NodeAnomaly `json:"nodes,omitempty"`
}

// Validate checks the request before any tool runs.
func (in Input) Validate() error {
	if !in.Check.IsValid() {
		return fmt.Errorf("%w: unknown check %q", shared.ErrValidation, in.Check)
	}
	if err := in.Workflow.Validate(); err != nil {
		return err
	}
	if in.SIPPath == "" || !filepath.IsAbs(in.SIPPath) {
		return fmt.Errorf("%w: sip path must be absolute, got %q", shared.ErrValidation, in.SIPPath)
	}
	if in.Check != KindMissingNodes {
		if len(in.Nodes) > 0 {
			return fmt.Errorf("%w: nodes are only accepted by the %s check", shared.ErrValidation, KindMissingNodes)
		}
		return nil
	}
	if len(in.Nodes) > MaxNodeAnomalies {
		return fmt.Errorf("%w: too many node anomalies: %d (max %d)", shared.ErrValidation, len(in.Nodes), MaxNodeAnomalies)
	}
	for _, n := range in.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Output reports how a check ended.
type Output struct {
	Check      Kind          `json:"check"`
	WorkflowID string        `json:"workflow_id"`
	Outcome    Outcome       `json:"outcome"`
	Message    string        `json:"message,omitempty"`
	IncidentID string        `json:"incident_id,omitempty"`
	IssueIDs   []string      `json:"issue_ids,omitempty"`
	Duration   time.Duration `json:"duration"`
}
