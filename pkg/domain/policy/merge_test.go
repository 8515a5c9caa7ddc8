package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	target := mustLoad(t, `{"antivirus":{"infectedSipAction":"FOO","type":"CLAMAV"},"fixityCheck":{"continueOnMissingFiles":"CANCEL"}}`)
	source := mustLoad(t, `{"antivirus":{"infectedSipAction":"IGNORE"},"systemWideValidation":{"missingNodesAfterXsltAction":"IGNORE"}}`)

	merged, err := Merge(target, source)
	require.NoError(t, err)

	data, err := json.Marshal(merged)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"antivirus":{"infectedSipAction":"IGNORE","type":"CLAMAV"},
		"fixityCheck":{"continueOnMissingFiles":"CANCEL"},
		"systemWideValidation":{"missingNodesAfterXsltAction":"IGNORE"}
	}`, string(data))

	// inputs are untouched
	assert.Equal(t, OutcomeInvalid, InfectedSIPAction(target).Outcome)
	assert.Equal(t, InfectedSIPIgnore, InfectedSIPAction(merged).Action)
}

func TestMerge_Arrays(t *testing.T) {
	target := mustLoad(t, `{"antivirus":[{"infectedSipAction":"FOO"}]}`)
	source := mustLoad(t, `{"antivirus":[{"infectedSipAction":"IGNORE"}]}`)

	_, err := Merge(target, source)
	assert.ErrorIs(t, err, ErrArrayMerge)
}

func TestMerge_EmptySides(t *testing.T) {
	doc := mustLoad(t, `{"a":1}`)

	merged, err := Merge(doc, Document{})
	require.NoError(t, err)
	assert.Equal(t, doc.Root(), merged.Root())

	merged, err = Merge(Document{}, doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Root(), merged.Root())
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Config Document `json:"config"`
	}
	in := payload{Config: mustLoad(t, "antivirus:\n  infectedSipAction: CANCEL\n")}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, InfectedSIPCancel, InfectedSIPAction(out.Config).Action)
}
