package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

func TestNewWorkflow(t *testing.T) {
	tests := []struct {
		name       string
		externalID string
		sipID      string
		wantErr    bool
	}{
		{name: "valid", externalID: "wf-2024.01_a", sipID: "sip-1"},
		{name: "empty id", externalID: "", sipID: "sip-1", wantErr: true},
		{name: "path separator", externalID: "wf/1", sipID: "sip-1", wantErr: true},
		{name: "parent reference", externalID: "wf..1", sipID: "sip-1", wantErr: true},
		{name: "leading dot", externalID: ".wf", sipID: "sip-1", wantErr: true},
		{name: "missing sip id", externalID: "wf-1", sipID: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWorkflow(tt.externalID, tt.sipID, policy.Document{})
			if tt.wantErr {
				assert.ErrorIs(t, err, shared.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.externalID, w.ExternalID)
		})
	}
}

func TestNodeAnomaly_Validate(t *testing.T) {
	assert.NoError(t, NodeAnomaly{Location: "/mets:mets", Source: policy.StageXSLT}.Validate())
	assert.ErrorIs(t, NodeAnomaly{Location: "/mets:mets", Source: "SCHEMA"}.Validate(), shared.ErrValidation)
	assert.ErrorIs(t, NodeAnomaly{Location: "  ", Source: policy.StageFinal}.Validate(), shared.ErrValidation)
}
