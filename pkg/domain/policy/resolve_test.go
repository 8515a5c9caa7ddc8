package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, src string) Document {
	t.Helper()
	doc, err := Load([]byte(src))
	require.NoError(t, err)
	return doc
}

func TestResolve(t *testing.T) {
	legal := []InfectedSIP{InfectedSIPIgnore, InfectedSIPQuarantine, InfectedSIPCancel}
	const path = "/antivirus/infectedSipAction"

	tests := []struct {
		name        string
		doc         string
		wantOutcome Outcome
		wantAction  InfectedSIP
		wantNote    string
	}{
		{
			name:        "resolved",
			doc:         `{"antivirus":{"infectedSipAction":"QUARANTINE"}}`,
			wantOutcome: OutcomeResolved,
			wantAction:  InfectedSIPQuarantine,
			wantNote:    "used config value QUARANTINE at /antivirus/infectedSipAction",
		},
		{
			name:        "missing leaf",
			doc:         `{"antivirus":{}}`,
			wantOutcome: OutcomeAbsent,
			wantNote:    "missing config at /antivirus/infectedSipAction",
		},
		{
			name:        "missing intermediate",
			doc:         `{}`,
			wantOutcome: OutcomeAbsent,
			wantNote:    "missing config at /antivirus/infectedSipAction",
		},
		{
			name:        "empty document",
			doc:         ``,
			wantOutcome: OutcomeAbsent,
			wantNote:    "missing config at /antivirus/infectedSipAction",
		},
		{
			name:        "unknown label",
			doc:         `{"antivirus":{"infectedSipAction":"DELETE"}}`,
			wantOutcome: OutcomeInvalid,
			wantNote:    "invalid config value DELETE at /antivirus/infectedSipAction, expected one of [IGNORE, QUARANTINE, CANCEL]",
		},
		{
			name:        "case sensitive",
			doc:         `{"antivirus":{"infectedSipAction":"ignore"}}`,
			wantOutcome: OutcomeInvalid,
			wantNote:    "invalid config value ignore at /antivirus/infectedSipAction, expected one of [IGNORE, QUARANTINE, CANCEL]",
		},
		{
			name:        "not a string",
			doc:         `{"antivirus":{"infectedSipAction":{"a":1}}}`,
			wantOutcome: OutcomeInvalid,
			wantNote:    `invalid config value {"a":1} at /antivirus/infectedSipAction, expected one of [IGNORE, QUARANTINE, CANCEL]`,
		},
		{
			name:        "null value",
			doc:         `{"antivirus":{"infectedSipAction":null}}`,
			wantOutcome: OutcomeInvalid,
			wantNote:    "invalid config value null at /antivirus/infectedSipAction, expected one of [IGNORE, QUARANTINE, CANCEL]",
		},
		{
			name:        "yaml document",
			doc:         "antivirus:\n  infectedSipAction: CANCEL\n",
			wantOutcome: OutcomeResolved,
			wantAction:  InfectedSIPCancel,
			wantNote:    "used config value CANCEL at /antivirus/infectedSipAction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(mustLoad(t, tt.doc), path, legal)

			assert.Equal(t, tt.wantOutcome, d.Outcome)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantNote, d.Note)
			assert.Equal(t, path, d.Path)
			assert.Equal(t, tt.wantOutcome == OutcomeResolved, d.Resolved())
		})
	}
}

func TestResolve_IsPure(t *testing.T) {
	doc := mustLoad(t, `{"antivirus":{"infectedSipAction":"CANCEL"}}`)

	first := InfectedSIPAction(doc)
	second := InfectedSIPAction(doc)

	assert.Equal(t, first, second)
}

func TestDocument_At(t *testing.T) {
	doc := mustLoad(t, `{"a":{"b/c":[10,{"d":"x"}],"e~f":true}}`)

	tests := []struct {
		pointer string
		want    any
		found   bool
	}{
		{pointer: "/a/b~1c/1/d", want: "x", found: true},
		{pointer: "/a/e~0f", want: true, found: true},
		{pointer: "/a/b~1c/5", found: false},
		{pointer: "/a/b~1c/-1", found: false},
		{pointer: "/a/missing", found: false},
		{pointer: "/a/e~0f/deeper", found: false},
		{pointer: "a", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.pointer, func(t *testing.T) {
			got, ok := doc.At(tt.pointer)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	root, ok := doc.At("")
	assert.True(t, ok)
	assert.IsType(t, map[string]any{}, root)
}

func TestTypedAccessors(t *testing.T) {
	doc := mustLoad(t, `
antivirus:
  - type: CLAMAV
    infectedSipAction: IGNORE
    cmd: ["clamscan", "-r"]
systemWideValidation:
  missingNodesAfterXsltAction: IGNORE
  missingNodesAfterFinalValidationAction: PANIC
fixityCheck:
  continueOnMissingFiles: CONTINUE
  continueOnInvalidChecksums: CANCEL
`)

	av := InfectedSIPAction(doc)
	assert.Equal(t, InfectedSIPIgnore, av.Action)
	assert.Equal(t, "/antivirus/0/infectedSipAction", av.Path)

	cmd, err := AntivirusCommand(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"clamscan", "-r"}, cmd)

	assert.Equal(t, MissingNodesIgnore, MissingNodesAction(doc, StageXSLT).Action)
	final := MissingNodesAction(doc, StageFinal)
	assert.Equal(t, OutcomeInvalid, final.Outcome)
	assert.Equal(t, PathMissingNodesAfterFinal, final.Path)

	assert.Equal(t, OutcomeAbsent, FixityAction(doc, FixityUnsupportedChecksumType).Outcome)
	assert.Equal(t, FixityContinue, FixityAction(doc, FixityMissingFiles).Action)
	assert.Equal(t, FixityCancel, FixityAction(doc, FixityInvalidChecksums).Action)
}

func TestAntivirusCommand(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []string
		wantErr string
	}{
		{name: "absent", doc: `{"antivirus":{}}`},
		{name: "flat", doc: `{"antivirus":{"cmd":["clamdscan","--fdpass"]}}`, want: []string{"clamdscan", "--fdpass"}},
		{
			name:    "not a list",
			doc:     `{"antivirus":{"cmd":"clamscan"}}`,
			wantErr: "invalid config value clamscan at /antivirus/cmd, expected a non-empty list of strings",
		},
		{
			name:    "empty list",
			doc:     `{"antivirus":{"cmd":[]}}`,
			wantErr: "invalid config value [] at /antivirus/cmd, expected a non-empty list of strings",
		},
		{
			name:    "non string element",
			doc:     `{"antivirus":{"cmd":["clamscan",1]}}`,
			wantErr: `invalid config value ["clamscan",1] at /antivirus/cmd, expected a non-empty list of strings`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AntivirusCommand(mustLoad(t, tt.doc))
			if tt.wantErr != "" {
				var perr *ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.wantErr, perr.Note())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
