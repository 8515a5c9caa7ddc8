package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func newCheckCmd(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addCheckRunFlags(cmd)
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	return cmd
}

func TestCheckInput(t *testing.T) {
	cfg := writeFile(t, "policy.yaml", "antivirus:\n  infectedSipAction: QUARANTINE\n")
	nodes := writeFile(t, "nodes.json", `[{"location": "/mets/dmdSec", "source": "xslt"}]`)

	tests := []struct {
		name    string
		args    []string
		flags   map[string]string
		wantErr error
		check   func(t *testing.T, in checks.Input)
	}{
		{
			name:  "antivirus with policy",
			args:  []string{"antivirus", "/data/sip-1"},
			flags: map[string]string{"workflow": "wf-1", "sip-id": "sip-1", "config": cfg},
			check: func(t *testing.T, in checks.Input) {
				assert.Equal(t, checks.KindAntivirus, in.Check)
				assert.Equal(t, "/data/sip-1", in.SIPPath)
				assert.Equal(t, policy.InfectedSIPQuarantine, policy.InfectedSIPAction(in.Workflow.Config).Action)
			},
		},
		{
			name:  "missing nodes",
			args:  []string{"missing_nodes", "/data/sip-1"},
			flags: map[string]string{"workflow": "wf-1", "sip-id": "sip-1", "nodes": nodes},
			check: func(t *testing.T, in checks.Input) {
				assert.Equal(t, []ingest.NodeAnomaly{{Location: "/mets/dmdSec", Source: policy.StageXSLT}}, in.Nodes)
			},
		},
		{
			name:    "unknown check",
			args:    []string{"ocr", "/data/sip-1"},
			flags:   map[string]string{"workflow": "wf-1", "sip-id": "sip-1"},
			wantErr: shared.ErrValidation,
		},
		{
			name:    "nodes on another check",
			args:    []string{"fixity", "/data/sip-1"},
			flags:   map[string]string{"workflow": "wf-1", "sip-id": "sip-1", "nodes": nodes},
			wantErr: shared.ErrValidation,
		},
		{
			name:    "invalid workflow id",
			args:    []string{"fixity", "/data/sip-1"},
			flags:   map[string]string{"workflow": "../wf", "sip-id": "sip-1"},
			wantErr: shared.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := checkInput(newCheckCmd(t, tt.flags), tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, in)
		})
	}
}

func TestReadNodes_Invalid(t *testing.T) {
	_, err := readNodes(writeFile(t, "nodes.yaml", "location: /mets"))
	assert.Error(t, err)

	_, err = readNodes(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	v := checks.Output{Check: checks.KindFixity, WorkflowID: "wf-1", Outcome: checks.OutcomeCompleted}

	tests := []struct {
		format   string
		wantDone bool
		wantErr  bool
		contains string
	}{
		{format: outputJSON, wantDone: true, contains: `"workflow_id": "wf-1"`},
		{format: outputYAML, wantDone: true, contains: "workflow_id: wf-1"},
		{format: outputTable},
		{format: "xml", wantDone: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			done, err := render(&buf, tt.format, v)
			assert.Equal(t, tt.wantDone, done)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "missing...", truncate("missing file: data/a.txt", 10))
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "sipguard version 1.2.3")
}
