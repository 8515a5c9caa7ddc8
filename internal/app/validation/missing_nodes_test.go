package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/sipguard/internal/app/ledger/ledgertest"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
	"github.com/openctemio/sipguard/pkg/logger"
)

func newWorkflow(t *testing.T, config string) *ingest.Workflow {
	t.Helper()
	doc, err := policy.Load([]byte(config))
	require.NoError(t, err)
	return &ingest.Workflow{ExternalID: "wf-1", SIPID: "sip-1", Config: doc}
}

var xsltAnomalies = []ingest.NodeAnomaly{
	{Location: "/mets:mets/mets:metsHdr", Source: policy.StageXSLT},
	{Location: "/mets:mets/mets:dmdSec", Source: policy.StageXSLT},
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		anomalies    []ingest.NodeAnomaly
		wantIncident bool
		wantFailure  string
		wantResolved bool
		wantNote     string
	}{
		{
			name:         "ignore",
			config:       "systemWideValidation:\n  missingNodesAfterXsltAction: IGNORE\n",
			anomalies:    xsltAnomalies,
			wantResolved: true,
			wantNote:     "used config value IGNORE at /systemWideValidation/missingNodesAfterXsltAction",
		},
		{
			name:         "cancel",
			config:       "systemWideValidation:\n  missingNodesAfterXsltAction: CANCEL\n",
			anomalies:    xsltAnomalies,
			wantFailure:  "Missing nodes detected during XSLT validation, the process is cancelled according to the config. Missing nodes: /mets:mets/mets:metsHdr,/mets:mets/mets:dmdSec",
			wantResolved: true,
			wantNote:     "used config value CANCEL at /systemWideValidation/missingNodesAfterXsltAction",
		},
		{
			name:         "absent",
			config:       "systemWideValidation:\n  missingNodesAfterFinalValidationAction: IGNORE\n",
			anomalies:    xsltAnomalies,
			wantIncident: true,
			wantNote:     "missing config at /systemWideValidation/missingNodesAfterXsltAction",
		},
		{
			name:         "invalid",
			config:       "systemWideValidation:\n  missingNodesAfterFinalValidationAction: QUARANTINE\n",
			anomalies:    []ingest.NodeAnomaly{{Location: "/mets:mets", Source: policy.StageFinal}},
			wantIncident: true,
			wantNote:     "invalid config value QUARANTINE at /systemWideValidation/missingNodesAfterFinalValidationAction, expected one of [IGNORE, CANCEL]",
		},
		{
			name:         "final stage cancel",
			config:       "systemWideValidation:\n  missingNodesAfterFinalValidationAction: CANCEL\n",
			anomalies:    []ingest.NodeAnomaly{{Location: "/mets:mets", Source: policy.StageFinal}},
			wantFailure:  "Missing nodes detected during final validation, the process is cancelled according to the config. Missing nodes: /mets:mets",
			wantResolved: true,
			wantNote:     "used config value CANCEL at /systemWideValidation/missingNodesAfterFinalValidationAction",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ledgertest.Recorder{}
			h := NewMissingNodesHandler(rec, logger.NewNop())

			err := h.Handle(context.Background(), newWorkflow(t, tt.config), tt.anomalies)

			issues := rec.Issues()
			require.Len(t, issues, len(tt.anomalies))
			for i, is := range issues {
				assert.Equal(t, issue.CodeNodeMissing, is.CheckCode())
				assert.Equal(t, "missing node "+tt.anomalies[i].Location, is.Description())
				assert.Equal(t, tt.wantResolved, is.ResolvedByPolicy())
				assert.Equal(t, tt.wantNote, is.ConfigNote())
				assert.Equal(t, tool.FunctionValidation, is.Tool().Function)
			}

			switch {
			case tt.wantIncident:
				inc, ok := issue.AsIncident(err)
				require.True(t, ok, "expected incident, got %v", err)
				assert.Len(t, inc.Issues, len(tt.anomalies))
			case tt.wantFailure != "":
				pf, ok := issue.AsProcessFailure(err)
				require.True(t, ok, "expected process failure, got %v", err)
				assert.Equal(t, tt.wantFailure, pf.Message)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestHandle_MixedStages(t *testing.T) {
	rec := &ledgertest.Recorder{}
	h := NewMissingNodesHandler(rec, logger.NewNop())
	wf := newWorkflow(t, "systemWideValidation:\n  missingNodesAfterXsltAction: IGNORE\n")

	err := h.Handle(context.Background(), wf, []ingest.NodeAnomaly{
		{Location: "/b", Source: policy.StageFinal},
		{Location: "/a", Source: policy.StageXSLT},
	})
	inc, ok := issue.AsIncident(err)
	require.True(t, ok, "expected incident, got %v", err)
	require.Len(t, inc.Issues, 2)
	assert.Equal(t, "missing node /a", inc.Issues[0].Description())
	assert.True(t, inc.Issues[0].ResolvedByPolicy())
	assert.False(t, inc.Issues[1].ResolvedByPolicy())
}

func TestHandle_NoAnomalies(t *testing.T) {
	rec := &ledgertest.Recorder{}
	h := NewMissingNodesHandler(rec, logger.NewNop())

	require.NoError(t, h.Handle(context.Background(), newWorkflow(t, ""), nil))
	assert.Empty(t, rec.Issues())
}

func TestHandle_InvalidAnomaly(t *testing.T) {
	rec := &ledgertest.Recorder{}
	h := NewMissingNodesHandler(rec, logger.NewNop())

	err := h.Handle(context.Background(), newWorkflow(t, ""), []ingest.NodeAnomaly{{Location: "/a", Source: "SCHEMA"}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = h.Handle(context.Background(), newWorkflow(t, ""), []ingest.NodeAnomaly{{Location: " ", Source: policy.StageXSLT}})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, rec.Issues())
}
