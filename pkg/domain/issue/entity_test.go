package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
)

func validParams() Params {
	return Params{
		WorkflowExternalID: "wf-1",
		Tool:               tool.Ref{Name: "ClamAV", Version: "ClamAV 1.0.1", Function: tool.FunctionVirusCheck},
		CheckCode:          CodeVirusFound,
		Description:        "infected file: data/a.txt of SIP: sip-1",
		ResolvedByPolicy:   true,
		ConfigNote:         "used config value IGNORE at /antivirus/infectedSipAction",
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Params)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *Params) {}},
		{name: "with format", mutate: func(p *Params) { p.Format = &format.Definition{PUID: "fmt/18"} }},
		{name: "missing workflow", mutate: func(p *Params) { p.WorkflowExternalID = " " }, wantErr: true},
		{name: "missing tool name", mutate: func(p *Params) { p.Tool.Name = "" }, wantErr: true},
		{name: "unknown tool function", mutate: func(p *Params) { p.Tool.Function = "lint" }, wantErr: true},
		{name: "unknown check code", mutate: func(p *Params) { p.CheckCode = "FILE_TOO_BIG" }, wantErr: true},
		{name: "empty description", mutate: func(p *Params) { p.Description = "" }, wantErr: true},
		{name: "format without puid", mutate: func(p *Params) { p.Format = &format.Definition{Name: "PDF"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			is, err := New(p)
			if tt.wantErr {
				assert.ErrorIs(t, err, shared.ErrValidation)
				assert.Nil(t, is)
				return
			}
			require.NoError(t, err)
			assert.False(t, is.ID().IsZero())
			assert.Equal(t, p.WorkflowExternalID, is.WorkflowExternalID())
			assert.Equal(t, p.CheckCode, is.CheckCode())
			assert.Equal(t, p.ConfigNote, is.ConfigNote())
			assert.True(t, is.ResolvedByPolicy())
			assert.False(t, is.CreatedAt().IsZero())
		})
	}
}

func TestNew_DistinctIDs(t *testing.T) {
	a, err := New(validParams())
	require.NoError(t, err)
	b, err := New(validParams())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
}

func TestParseCheckCode(t *testing.T) {
	code, err := ParseCheckCode(" file_missing ")
	require.NoError(t, err)
	assert.Equal(t, CodeFileMissing, code)

	_, err = ParseCheckCode("nope")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSummarize(t *testing.T) {
	p := validParams()
	p.Format = &format.Definition{PUID: "fmt/18", Name: "PDF"}
	is, err := New(p)
	require.NoError(t, err)

	s := is.Summarize()
	assert.Equal(t, "fmt/18", s.FormatPUID)
	assert.Equal(t, is.ID(), s.ID)
	assert.Equal(t, p.Tool, s.Tool)
}

func TestIncidentError(t *testing.T) {
	p := validParams()
	p.ResolvedByPolicy = false
	p.ConfigNote = "missing config at /antivirus/infectedSipAction"
	is, err := New(p)
	require.NoError(t, err)

	var wrapped error = fmt.Errorf("scan: %w", NewIncidentError([]*Issue{is}))

	inc, ok := AsIncident(wrapped)
	require.True(t, ok)
	assert.Len(t, inc.Issues, 1)
	assert.Equal(t, []string{is.ID().String()}, inc.IssueIDs())
	assert.Contains(t, inc.Error(), "missing config at /antivirus/infectedSipAction")

	_, ok = AsProcessFailure(wrapped)
	assert.False(t, ok)
}

func TestProcessFailureError(t *testing.T) {
	short := NewProcessFailureError("infected files: %v solving with action: %s", []string{"a"}, "CANCEL")
	assert.Equal(t, "infected files: [a] solving with action: CANCEL", short.Message)

	long := NewProcessFailureError("%s", strings.Repeat("x", 5000))
	assert.Len(t, long.Message, MaxFailureMessageLength)
	assert.True(t, strings.HasSuffix(long.Message, "... message reduced"))

	pf, ok := AsProcessFailure(fmt.Errorf("wrap: %w", long))
	require.True(t, ok)
	assert.Same(t, long, pf)
}

func TestRemediationError(t *testing.T) {
	cause := errors.New("permission denied")
	err := &RemediationError{Action: "QUARANTINE", Path: "/tmp/sip", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "remediation QUARANTINE failed for /tmp/sip: permission denied", err.Error())
}
