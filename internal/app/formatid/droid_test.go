package formatid

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/sipguard/internal/infra/process"
	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/logger"
)

const exportHeader = `"ID","PARENT_ID","URI","FILE_PATH","NAME","METHOD","STATUS","SIZE","TYPE","EXT","LAST_MODIFIED","EXTENSION_MISMATCH","HASH","FORMAT_COUNT","PUID","MIME_TYPE","FORMAT_NAME","FORMAT_VERSION"`

const exportTemplate = exportHeader + `
"2","1","file:@SIP@/objects/a.pdf","@SIP@/objects/a.pdf","a.pdf","Signature","Done","1024","File","pdf","2023-01-01","false","","1","fmt/18","application/pdf","Acrobat PDF 1.4 - Portable Document Format","1.4"
"3","1","file:@SIP@/objects/my%20doc.txt","@SIP@/objects/my doc.txt","my doc.txt","Extension","Done","12","File","txt","2023-01-01","false","","1","x-fmt/111","text/plain","Plain Text File",""
"4","1","file:@SIP@/objects/multi.xml","@SIP@/objects/multi.xml","multi.xml","Signature","Done","80","File","xml","2023-01-01","false","","2","fmt/101","text/xml","Extensible Markup Language","1.0"
"4","1","file:@SIP@/objects/multi.xml","@SIP@/objects/multi.xml","multi.xml","Signature","Done","80","File","xml","2023-01-01","false","","2","fmt/1474","text/xml","METS",""
"5","1","file:@SIP@/objects/blob.bin","@SIP@/objects/blob.bin","blob.bin","","Done","7","File","bin","2023-01-01","false","","0","","","",""
`

const droidScript = `
dir=$(dirname "$0")
case "$1" in
  -v)
    echo "2023-05-10 Starting DROID."
    echo "6.7.0"
    ;;
  -x)
    echo "2023-05-10 Starting DROID."
    echo "Type: Container Version:  20230307  File name: container-signature-20230307.xml"
    echo "Type: Binary Version:  111  File name: DROID_SignatureFile_V111.xml"
    ;;
  -R)
    echo profile > "$5"
    ;;
  -p)
    [ -f "$dir/fail-export" ] && { echo "export failed" >&2; exit 1; }
    sip="${2%.droid}"
    sed "s#@SIP@#$sip#g" "$dir/export.tmpl" > "$6"
    ;;
esac
`

type memoryResults map[string]format.Result

func (m memoryResults) Save(_ context.Context, wfID string, r format.Result) error {
	m[wfID] = r
	return nil
}

func (m memoryResults) Load(_ context.Context, wfID string) (format.Result, error) {
	r, ok := m[wfID]
	if !ok {
		return nil, format.ErrResultNotFound
	}
	return r, nil
}

type droidFixture struct {
	toolDir string
	sipPath string
	results memoryResults
	droid   *Droid
}

func newDroidFixture(t *testing.T) *droidFixture {
	t.Helper()
	toolDir := t.TempDir()
	script := filepath.Join(toolDir, "droid.sh")
	require.NoError(t, os.WriteFile(script, []byte(droidScript), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "export.tmpl"), []byte(exportTemplate), 0o600))

	sipPath := filepath.Join(t.TempDir(), "sip-1")
	require.NoError(t, os.MkdirAll(filepath.Join(sipPath, "objects"), 0o750))

	results := memoryResults{}
	runner := process.NewRunner(process.Config{SigtermTimeout: 10 * time.Second, SigkillTimeout: time.Second}, logger.NewNop())
	droid, err := NewDroid([]string{"/bin/sh", script}, runner, results, logger.NewNop())
	require.NoError(t, err)
	return &droidFixture{toolDir: toolDir, sipPath: sipPath, results: results, droid: droid}
}

func TestIdentify(t *testing.T) {
	f := newDroidFixture(t)

	result, err := f.droid.Identify(context.Background(), f.sipPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"objects/a.pdf", "objects/blob.bin", "objects/multi.xml", "objects/my doc.txt"}, result.Paths())
	assert.Equal(t, []format.Identification{{PUID: "fmt/18", Method: "Signature"}}, result["objects/a.pdf"])
	assert.Equal(t, []format.Identification{{PUID: "x-fmt/111", Method: "Extension"}}, result["objects/my doc.txt"])
	assert.Equal(t, []string{"objects/blob.bin"}, result.Unidentified())
	assert.Equal(t, []string{"objects/multi.xml"}, result.Ambiguous())

	assert.NoFileExists(t, f.sipPath+".droid")
	assert.NoFileExists(t, f.sipPath+".csv")
}

func TestIdentify_ExportFailureCleansUp(t *testing.T) {
	f := newDroidFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.toolDir, "fail-export"), nil, 0o600))

	_, err := f.droid.Identify(context.Background(), f.sipPath)
	var te *process.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.ExitCode)

	assert.NoFileExists(t, f.sipPath+".droid")
	assert.NoFileExists(t, f.sipPath+".csv")
}

func TestIdentify_MissingPackage(t *testing.T) {
	f := newDroidFixture(t)

	_, err := f.droid.Identify(context.Background(), filepath.Join(f.sipPath, "missing"))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.droid.Identify(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestScan_StoresResult(t *testing.T) {
	f := newDroidFixture(t)
	wf := &ingest.Workflow{ExternalID: "wf-1", SIPID: "sip-1"}

	require.NoError(t, f.droid.Scan(context.Background(), f.sipPath, wf))

	stored, err := f.results.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	primary, ok := stored.Primary("objects/a.pdf")
	require.True(t, ok)
	assert.Equal(t, "fmt/18", primary.PUID)
}

type countingRunner struct {
	calls int
}

func (r *countingRunner) RunChecked(_ context.Context, _ string, _ ...string) (*process.Result, error) {
	r.calls++
	return &process.Result{}, nil
}

func TestScan_MissingPackageRunsNoTool(t *testing.T) {
	runner := &countingRunner{}
	droid, err := NewDroid([]string{"droid"}, runner, memoryResults{}, logger.NewNop())
	require.NoError(t, err)
	wf := &ingest.Workflow{ExternalID: "wf-1", SIPID: "sip-1"}

	err = droid.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), wf)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Zero(t, runner.calls)
}

func TestToolVersion(t *testing.T) {
	f := newDroidFixture(t)

	assert.Equal(t,
		"DROID: version: 6.7.0, Signature files: "+
			"1. Type: Binary Version:  111  File name: DROID_SignatureFile_V111.xml "+
			"2. Type: Container Version:  20230307  File name: container-signature-20230307.xml",
		f.droid.ToolVersion(context.Background()))
}

func TestToolVersion_Unknown(t *testing.T) {
	runner := process.NewRunner(process.Config{SigtermTimeout: time.Second, SigkillTimeout: time.Second}, logger.NewNop())
	droid, err := NewDroid([]string{"/nonexistent/droid"}, runner, memoryResults{}, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "unknown", droid.ToolVersion(context.Background()))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "DROID: version: 6.7.0, Signature files: 1. a.xml 2. b.xml",
		FormatVersion("6.7.0", []string{"b.xml", "a.xml"}))
	assert.Equal(t, "DROID: version: 6.7.0, Signature files:", FormatVersion("6.7.0", nil))
}

func TestParseExport(t *testing.T) {
	tests := []struct {
		name    string
		sipPath string
		csv     string
		want    format.Result
		wantErr string
	}{
		{
			name:    "columns located by header",
			sipPath: "/data/sip",
			csv: "\"PUID\",\"METHOD\",\"URI\"\n" +
				"\"fmt/18\",\"Signature\",\"file:/data/sip/a.pdf\"\n",
			want: format.Result{"a.pdf": {{PUID: "fmt/18", Method: "Signature"}}},
		},
		{
			name:    "triple slash uri and byte order mark",
			sipPath: "/data/sip",
			csv: "\ufeffURI,PUID,METHOD\n" +
				"file:///data/sip/dir/b.txt,x-fmt/111,Extension\n",
			want: format.Result{"dir/b.txt": {{PUID: "x-fmt/111", Method: "Extension"}}},
		},
		{
			name:    "plain path and percent encoding",
			sipPath: "/data/my sip",
			csv: "URI,PUID,METHOD\n" +
				"/data/my%20sip/c%23.txt,x-fmt/111,Extension\n",
			want: format.Result{"c#.txt": {{PUID: "x-fmt/111", Method: "Extension"}}},
		},
		{
			name:    "blank puid and short row",
			sipPath: "/data/sip",
			csv: "URI,METHOD,PUID\n" +
				"file:/data/sip/blob.bin,,\n" +
				"file:/data/sip/short.bin\n",
			want: format.Result{"blob.bin": nil, "short.bin": nil},
		},
		{
			name:    "missing column",
			sipPath: "/data/sip",
			csv:     "URI,PUID\nfile:/data/sip/a,fmt/1\n",
			wantErr: "missing column METHOD",
		},
		{
			name:    "empty export",
			sipPath: "/data/sip",
			csv:     "",
			wantErr: "empty export",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExport(strings.NewReader(tt.csv), tt.sipPath)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
