// Package validation applies the configured policy to structural anomalies
// reported by the package validator.
package validation

import (
	"context"
	"strings"

	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/tool"
	"github.com/openctemio/sipguard/pkg/logger"
)

// Recorder persists issues.
type Recorder interface {
	RecordAll(ctx context.Context, params []issue.Params) ([]*issue.Issue, error)
}

// MissingNodesHandler records missing node anomalies and applies the action
// configured for the validation stage that found them.
type MissingNodesHandler struct {
	ledger Recorder
	logger *logger.Logger
}

// NewMissingNodesHandler creates a MissingNodesHandler.
func NewMissingNodesHandler(ledger Recorder, log *logger.Logger) *MissingNodesHandler {
	return &MissingNodesHandler{
		ledger: ledger,
		logger: log.With("component", "validation"),
	}
}

// Handle records one issue per anomaly. Anomalies are grouped by stage and
// each group is resolved at its own configuration path. Any unresolved group
// makes the whole call an incident; otherwise a cancelled group ends the workflow.
func (h *MissingNodesHandler) Handle(ctx context.Context, wf *ingest.Workflow, anomalies []ingest.NodeAnomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	groups, err := groupByStage(anomalies)
	if err != nil {
		return err
	}
	log := h.logger.ForWorkflow(wf.ExternalID, wf.SIPID)
	ref := tool.Builtin(tool.NameValidation, tool.FunctionValidation)

	var (
		params    []issue.Params
		decisions = make(map[policy.Stage]policy.Decision[policy.MissingNodes], len(groups))
	)
	for _, g := range groups {
		decision := policy.MissingNodesAction(wf.Config, g.stage)
		decisions[g.stage] = decision
		for _, location := range g.locations {
			params = append(params, issue.Params{
				WorkflowExternalID: wf.ExternalID,
				Tool:               ref,
				CheckCode:          issue.CodeNodeMissing,
				Description:        "missing node " + location,
				ResolvedByPolicy:   decision.Resolved(),
				ConfigNote:         decision.Note,
			})
		}
	}

	issues, err := h.ledger.RecordAll(ctx, params)
	if err != nil {
		return err
	}

	for _, g := range groups {
		if d := decisions[g.stage]; !d.Resolved() {
			log.Warn("missing nodes action not configured", "stage", g.stage, "note", d.Note)
			return issue.NewIncidentError(issues)
		}
	}

	for _, g := range groups {
		if decisions[g.stage].Action == policy.MissingNodesCancel {
			return issue.NewProcessFailureError(
				"Missing nodes detected during %s validation, the process is cancelled according to the config. Missing nodes: %s",
				stageLabel(g.stage), strings.Join(g.locations, ","))
		}
	}

	log.Info("missing nodes ignored by policy", "count", len(anomalies))
	return nil
}

type stageGroup struct {
	stage     policy.Stage
	locations []string
}

// groupByStage keeps XSLT anomalies before final validation ones.
func groupByStage(anomalies []ingest.NodeAnomaly) ([]stageGroup, error) {
	byStage := map[policy.Stage][]string{}
	for _, a := range anomalies {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		byStage[a.Source] = append(byStage[a.Source], a.Location)
	}
	var groups []stageGroup
	for _, stage := range []policy.Stage{policy.StageXSLT, policy.StageFinal} {
		if locations, ok := byStage[stage]; ok {
			groups = append(groups, stageGroup{stage: stage, locations: locations})
		}
	}
	return groups, nil
}

func stageLabel(s policy.Stage) string {
	if s == policy.StageXSLT {
		return "XSLT"
	}
	return "final"
}
