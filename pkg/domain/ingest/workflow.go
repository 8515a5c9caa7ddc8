// Package ingest describes a single ingest workflow as seen by the inspection checks.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

// externalIDPattern keeps workflow ids usable as a single path segment.
var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Workflow is one pipeline execution over one submission package.
type Workflow struct {
	ExternalID string          `json:"external_id"`
	SIPID      string          `json:"sip_id"`
	Config     policy.Document `json:"config"`
}

// NewWorkflow creates a workflow after validating its identifiers.
func NewWorkflow(externalID, sipID string, config policy.Document) (*Workflow, error) {
	w := &Workflow{ExternalID: externalID, SIPID: sipID, Config: config}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks the workflow identifiers.
func (w *Workflow) Validate() error {
	if !ValidExternalID(w.ExternalID) {
		return fmt.Errorf("%w: invalid workflow external id %q", shared.ErrValidation, w.ExternalID)
	}
	if strings.TrimSpace(w.SIPID) == "" {
		return fmt.Errorf("%w: sip id is required", shared.ErrValidation)
	}
	return nil
}

// ValidExternalID reports whether id can name a workflow.
func ValidExternalID(id string) bool {
	return externalIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// NodeAnomaly is a required metadata node that a validation stage did not find.
type NodeAnomaly struct {
	Location string       `json:"location"`
	Source   policy.Stage `json:"source"`
}

// Validate checks that the anomaly names a node and a known stage.
func (a NodeAnomaly) Validate() error {
	if !a.Source.IsValid() {
		return fmt.Errorf("%w: unknown validation stage %q", shared.ErrValidation, a.Source)
	}
	if strings.TrimSpace(a.Location) == "" {
		return fmt.Errorf("%w: anomaly location is required", shared.ErrValidation)
	}
	return nil
}
