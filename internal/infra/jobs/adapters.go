package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

// NewCheckPayload converts a check request to its queued form.
func NewCheckPayload(in checks.Input) (CheckPayload, error) {
	payload := CheckPayload{
		Check:      string(in.Check),
		WorkflowID: in.Workflow.ExternalID,
		SIPID:      in.Workflow.SIPID,
		SIPPath:    in.SIPPath,
	}
	if !in.Workflow.Config.IsZero() {
		cfg, err := json.Marshal(in.Workflow.Config)
		if err != nil {
			return CheckPayload{}, fmt.Errorf("marshal workflow config: %w", err)
		}
		payload.Config = cfg
	}
	for _, n := range in.Nodes {
		payload.Nodes = append(payload.Nodes, NodePayload{Location: n.Location, Source: string(n.Source)})
	}
	return payload, nil
}

// toInput converts a validated payload back to a check request.
func (p CheckPayload) toInput() (checks.Input, error) {
	var cfg policy.Document
	if len(p.Config) > 0 {
		if err := json.Unmarshal(p.Config, &cfg); err != nil {
			return checks.Input{}, fmt.Errorf("%w: workflow config: %v", shared.ErrValidation, err)
		}
	}
	in := checks.Input{
		Check:    checks.Kind(p.Check),
		Workflow: ingest.Workflow{ExternalID: p.WorkflowID, SIPID: p.SIPID, Config: cfg},
		SIPPath:  p.SIPPath,
	}
	for _, n := range p.Nodes {
		in.Nodes = append(in.Nodes, ingest.NodeAnomaly{Location: n.Location, Source: policy.Stage(n.Source)})
	}
	return in, nil
}
