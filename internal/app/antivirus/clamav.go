// Package antivirus scans submission packages with ClamAV and applies the
// configured infected package policy.
package antivirus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openctemio/sipguard/internal/app/formatid"
	"github.com/openctemio/sipguard/internal/infra/process"
	"github.com/openctemio/sipguard/internal/metrics"
	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/policy"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
	"github.com/openctemio/sipguard/pkg/logger"
)

// ToolName is recorded on every issue raised by the scanner.
const ToolName = "ClamAV"

// clamscan exit codes.
const (
	exitClean    = 0
	exitInfected = 1
)

var (
	infectedLinePattern = regexp.MustCompile(`^(.+): .+ FOUND$`)
	versionPattern      = regexp.MustCompile(`ClamAV [\d.]+`)
)

// CommandRunner runs the scanner with stderr merged into stdout.
type CommandRunner interface {
	RunMerged(ctx context.Context, name string, args ...string) (*process.Result, error)
}

// Recorder persists issues.
type Recorder interface {
	RecordAll(ctx context.Context, params []issue.Params) ([]*issue.Issue, error)
}

// Config configures the scanner.
type Config struct {
	// Command is the scan command line; the package path is appended.
	Command []string
	// VersionCommand defaults to the first element of Command followed by -V.
	VersionCommand []string
	QuarantineRoot string
}

// ClamAV is the virus check.
type ClamAV struct {
	cfg     Config
	runner  CommandRunner
	ledger  Recorder
	formats format.Lookup
	logger  *logger.Logger
}

// NewClamAV creates the virus check. formats may be nil, in which case issues
// carry no format.
func NewClamAV(cfg Config, runner CommandRunner, ledger Recorder, formats format.Lookup, log *logger.Logger) (*ClamAV, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("clamscan command is required")
	}
	if !filepath.IsAbs(cfg.QuarantineRoot) {
		return nil, fmt.Errorf("quarantine root must be absolute, got %q", cfg.QuarantineRoot)
	}
	if len(cfg.VersionCommand) == 0 {
		cfg.VersionCommand = []string{cfg.Command[0], "-V"}
	}
	return &ClamAV{
		cfg:     cfg,
		runner:  runner,
		ledger:  ledger,
		formats: formats,
		logger:  log.With("component", "antivirus"),
	}, nil
}

// Name returns the check name.
func (c *ClamAV) Name() string {
	return "antivirus"
}

// Scan scans the package at sipPath. It returns nil when the package is clean
// or the infected files are ignored by policy.
func (c *ClamAV) Scan(ctx context.Context, sipPath string, wf *ingest.Workflow) error {
	if err := checkPath(sipPath); err != nil {
		return err
	}
	log := c.logger.ForWorkflow(wf.ExternalID, wf.SIPID)

	cmd, err := policy.AntivirusCommand(wf.Config)
	if err != nil {
		return c.configParseIncident(ctx, wf, err)
	}
	if cmd == nil {
		cmd = c.cfg.Command
	}

	args := append(append([]string{}, cmd[1:]...), sipPath)
	log.Info("scanning package", "path", sipPath, "cmd", strings.Join(append([]string{cmd[0]}, args...), " "))

	res, err := c.runner.RunMerged(ctx, cmd[0], args...)
	if err != nil {
		return err
	}

	switch res.ExitCode {
	case exitClean:
		log.Info("no infected file found")
		return nil
	case exitInfected:
		infected := parseInfected(res.Stdout)
		if len(infected) == 0 {
			return process.NewToolError(ToolName, "parse scan output", res, errNoInfectedLines)
		}
		log.Info("infected files found", "count", len(infected))
		return c.handleInfected(ctx, log, sipPath, wf, infected)
	default:
		return process.NewToolError(ToolName, "scan", res, nil)
	}
}

var errNoInfectedLines = errors.New("exit code 1 without infected file lines")

func parseInfected(lines []string) []string {
	var out []string
	for _, line := range lines {
		if m := infectedLinePattern.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

func (c *ClamAV) handleInfected(ctx context.Context, log *logger.Logger, sipPath string, wf *ingest.Workflow, infected []string) error {
	decision := policy.InfectedSIPAction(wf.Config)
	ref := tool.Ref{Name: ToolName, Version: c.ToolVersion(ctx), Function: tool.FunctionVirusCheck}

	params := make([]issue.Params, 0, len(infected))
	relPaths := make([]string, 0, len(infected))
	for _, file := range infected {
		rel, def := c.lookupFormat(ctx, log, wf.ExternalID, sipPath, file)
		relPaths = append(relPaths, rel)
		params = append(params, issue.Params{
			WorkflowExternalID: wf.ExternalID,
			Tool:               ref,
			CheckCode:          issue.CodeVirusFound,
			Format:             def,
			Description:        fmt.Sprintf("infected file: %s of SIP: %s", rel, wf.SIPID),
			ResolvedByPolicy:   decision.Resolved(),
			ConfigNote:         decision.Note,
		})
	}

	issues, err := c.ledger.RecordAll(ctx, params)
	if err != nil {
		return err
	}
	if !decision.Resolved() {
		log.Warn("infected package action not configured", "note", decision.Note)
		return issue.NewIncidentError(issues)
	}

	message := fmt.Sprintf("Antivirus scan on SIP with id: %s has found infected files: [%s] solving with action: %s",
		wf.SIPID, strings.Join(relPaths, ", "), decision.Action)

	switch decision.Action {
	case policy.InfectedSIPIgnore:
		log.Info("infected files ignored by policy")
		return nil
	case policy.InfectedSIPQuarantine:
		dest, err := c.quarantine(sipPath, wf.ExternalID)
		if err != nil {
			return &issue.RemediationError{Action: string(decision.Action), Path: sipPath, Err: err}
		}
		metrics.QuarantinedTotal.Inc()
		log.Warn("package moved to quarantine", "destination", dest)
		return issue.NewProcessFailureError("%s", message)
	default:
		return issue.NewProcessFailureError("%s", message)
	}
}

// lookupFormat never fails: a missing identification yields a nil format.
func (c *ClamAV) lookupFormat(ctx context.Context, log *logger.Logger, wfID, sipPath, file string) (string, *format.Definition) {
	rel := formatid.RelativePath(sipPath, file)
	if c.formats == nil {
		return rel, nil
	}
	found, def, err := c.formats.Find(ctx, wfID, sipPath, file)
	if err != nil {
		log.Warn("format lookup failed", "file", rel, "error", err)
		return rel, nil
	}
	return found, def
}

func (c *ClamAV) configParseIncident(ctx context.Context, wf *ingest.Workflow, parseErr error) error {
	var pe *policy.ParseError
	if !errors.As(parseErr, &pe) {
		return parseErr
	}
	issues, err := c.ledger.RecordAll(ctx, []issue.Params{{
		WorkflowExternalID: wf.ExternalID,
		Tool:               tool.Ref{Name: ToolName, Version: c.ToolVersion(ctx), Function: tool.FunctionVirusCheck},
		CheckCode:          issue.CodeConfigParseError,
		Description:        "failed to build virus check: " + pe.Note(),
		ConfigNote:         pe.Note(),
	}})
	if err != nil {
		return err
	}
	return issue.NewIncidentError(issues)
}

// ToolVersion returns the short scanner version, or "unknown" when it cannot be queried.
func (c *ClamAV) ToolVersion(ctx context.Context) string {
	res, err := c.runner.RunMerged(ctx, c.cfg.VersionCommand[0], c.cfg.VersionCommand[1:]...)
	if err != nil || res.ExitCode != 0 || len(res.Stdout) == 0 {
		c.logger.Warn("failed to query clamscan version", "error", err)
		return tool.UnknownVersion
	}
	for _, line := range res.Stdout {
		if v := versionPattern.FindString(line); v != "" {
			return v
		}
	}
	return strings.TrimSpace(res.Stdout[0])
}

func checkPath(sipPath string) error {
	if sipPath == "" {
		return fmt.Errorf("%w: empty package path", shared.ErrNotFound)
	}
	if _, err := os.Stat(sipPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no file/folder found at: %s", shared.ErrNotFound, sipPath)
		}
		return fmt.Errorf("failed to stat package: %w", err)
	}
	return nil
}
