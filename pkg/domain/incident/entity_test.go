package incident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

func TestNew(t *testing.T) {
	wf := ingest.Workflow{ExternalID: "wf-1", SIPID: "sip-1"}

	inc, err := New("antivirus", wf, "/data/sip", []string{"a"}, "incident")
	require.NoError(t, err)
	assert.False(t, inc.ID.IsZero())

	_, err = New("", wf, "/data/sip", nil, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New("antivirus", ingest.Workflow{ExternalID: "../x", SIPID: "s"}, "/data/sip", nil, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestIncident_WithOverride(t *testing.T) {
	cfg, err := policy.Load([]byte(`{"antivirus":{"infectedSipAction":"FOO"}}`))
	require.NoError(t, err)
	override, err := policy.Load([]byte(`{"antivirus":{"infectedSipAction":"IGNORE"}}`))
	require.NoError(t, err)

	inc, err := New("antivirus", ingest.Workflow{ExternalID: "wf-1", SIPID: "sip-1", Config: cfg}, "/data/sip", nil, "")
	require.NoError(t, err)

	solved, err := inc.WithOverride(override)
	require.NoError(t, err)

	assert.Equal(t, policy.InfectedSIPIgnore, policy.InfectedSIPAction(solved.Workflow.Config).Action)
	assert.Equal(t, policy.OutcomeInvalid, policy.InfectedSIPAction(inc.Workflow.Config).Outcome)
	assert.Equal(t, inc.ID, solved.ID)

	arrays, err := policy.Load([]byte(`{"antivirus":[]}`))
	require.NoError(t, err)
	_, err = inc.WithOverride(arrays)
	assert.Error(t, err)
}
