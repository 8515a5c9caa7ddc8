// Package fixity verifies the checksum manifests of BagIt packages and applies
// the configured fixity policy.
package fixity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
	"github.com/openctemio/sipguard/pkg/logger"
)

// Recorder persists issues.
type Recorder interface {
	RecordAll(ctx context.Context, params []issue.Params) ([]*issue.Issue, error)
}

// Verifier is the fixity check.
type Verifier struct {
	ledger  Recorder
	formats format.Lookup
	workers int
	logger  *logger.Logger
}

// NewVerifier creates the fixity check. formats may be nil. A non-positive
// workers value hashes with one goroutine per CPU.
func NewVerifier(ledger Recorder, formats format.Lookup, workers int, log *logger.Logger) *Verifier {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Verifier{
		ledger:  ledger,
		formats: formats,
		workers: workers,
		logger:  log.With("component", "fixity"),
	}
}

// Name returns the check name.
func (v *Verifier) Name() string {
	return "fixity"
}

// Verify checks every manifest of the package rooted at sipPath without
// applying any policy.
func (v *Verifier) Verify(ctx context.Context, sipPath string) (*Report, error) {
	info, err := os.Stat(sipPath)
	if sipPath == "" || errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no package found at: %s", shared.ErrNotFound, sipPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat package: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: package is not a directory: %s", shared.ErrValidation, sipPath)
	}
	return verifyPackage(ctx, sipPath, v.workers, v.logger.Warn)
}

// Scan verifies the package and resolves its anomalies kind by kind:
// unsupported checksum types, then missing files, then invalid checksums.
// The first kind without a usable policy raises an incident and stops the
// check; a kind configured to cancel ends the workflow.
func (v *Verifier) Scan(ctx context.Context, sipPath string, wf *ingest.Workflow) error {
	log := v.logger.ForWorkflow(wf.ExternalID, wf.SIPID)

	report, err := v.Verify(ctx, sipPath)
	if err != nil {
		return err
	}
	log.Info("manifests verified", "files", len(report.Entries))
	if report.Clean() {
		return nil
	}

	ref := tool.Builtin(tool.NameFixity, tool.FunctionFixityCheck)
	for _, a := range anomalies(report) {
		decision := policy.FixityAction(wf.Config, a.kind)

		params := make([]issue.Params, 0, len(a.files))
		for _, f := range a.files {
			rel, def := v.lookupFormat(ctx, log, wf.ExternalID, sipPath, f.path)
			params = append(params, issue.Params{
				WorkflowExternalID: wf.ExternalID,
				Tool:               ref,
				CheckCode:          a.code,
				Format:             def,
				Description:        f.prefix + rel,
				ResolvedByPolicy:   decision.Resolved(),
				ConfigNote:         decision.Note,
			})
		}
		issues, err := v.ledger.RecordAll(ctx, params)
		if err != nil {
			return err
		}

		if !decision.Resolved() {
			log.Warn("fixity action not configured", "kind", a.kind, "note", decision.Note)
			return issue.NewIncidentError(issues)
		}
		if decision.Action == policy.FixityCancel {
			return issue.NewProcessFailureError(
				"Fixity check of SIP with id: %s failed with %s, the process is cancelled according to the config",
				wf.SIPID, a.summary)
		}
		log.Info("fixity anomalies accepted by policy", "kind", a.kind, "count", len(a.files))
	}
	return nil
}

func (v *Verifier) lookupFormat(ctx context.Context, log *logger.Logger, wfID, sipPath, rel string) (string, *format.Definition) {
	if v.formats == nil {
		return rel, nil
	}
	found, def, err := v.formats.Find(ctx, wfID, sipPath, rel)
	if err != nil {
		log.Warn("format lookup failed", "file", rel, "error", err)
		return rel, nil
	}
	return found, def
}

type anomalyFile struct {
	path   string
	prefix string
}

type anomaly struct {
	kind    policy.FixityKind
	code    issue.CheckCode
	files   []anomalyFile
	summary string
}

// anomalies lists the non-empty anomaly kinds in resolution order.
func anomalies(r *Report) []anomaly {
	var out []anomaly

	if len(r.Unsupported) > 0 {
		algorithms := make([]string, 0, len(r.Unsupported))
		for alg := range r.Unsupported {
			algorithms = append(algorithms, alg)
		}
		sort.Strings(algorithms)

		a := anomaly{kind: policy.FixityUnsupportedChecksumType, code: issue.CodeUnsupportedChecksumType}
		var parts []string
		for _, alg := range algorithms {
			files := r.Unsupported[alg]
			for _, f := range files {
				a.files = append(a.files, anomalyFile{path: f, prefix: "unsupported checksum algorithm: " + alg + " used for file: "})
			}
			parts = append(parts, fmt.Sprintf("unsupported checksum algorithm: %s used for files: [%s]", alg, strings.Join(files, ", ")))
		}
		a.summary = strings.Join(parts, "; ")
		out = append(out, a)
	}

	if len(r.Missing) > 0 {
		out = append(out, anomaly{
			kind:    policy.FixityMissingFiles,
			code:    issue.CodeFileMissing,
			files:   describe(r.Missing, "missing file: "),
			summary: "missing files: [" + strings.Join(r.Missing, ", ") + "]",
		})
	}

	if len(r.Invalid) > 0 {
		out = append(out, anomaly{
			kind:    policy.FixityInvalidChecksums,
			code:    issue.CodeInvalidChecksum,
			files:   describe(r.Invalid, "invalid checksum of file: "),
			summary: "invalid checksum of files: [" + strings.Join(r.Invalid, ", ") + "]",
		})
	}
	return out
}

func describe(paths []string, prefix string) []anomalyFile {
	out := make([]anomalyFile, len(paths))
	for i, p := range paths {
		out[i] = anomalyFile{path: p, prefix: prefix}
	}
	return out
}
