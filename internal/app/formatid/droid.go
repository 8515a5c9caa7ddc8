// Package formatid identifies file formats of submission packages with DROID.
package formatid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openctemio/sipguard/internal/infra/process"
	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
	"github.com/openctemio/sipguard/pkg/logger"
)

// ToolName is the name reported for the identification tool.
const ToolName = "DROID"

// exportFilter keeps files and expanded container entries.
const exportFilter = "type any FILE CONTAINER"

const startupBanner = "Starting DROID"

// CommandRunner runs DROID, failing on a non-zero exit code.
type CommandRunner interface {
	RunChecked(ctx context.Context, name string, args ...string) (*process.Result, error)
}

// Droid is the format identification check.
type Droid struct {
	command []string
	runner  CommandRunner
	results format.ResultStore
	logger  *logger.Logger
}

// NewDroid creates the format identification check. command is the DROID
// executable, optionally preceded by an interpreter.
func NewDroid(command []string, runner CommandRunner, results format.ResultStore, log *logger.Logger) (*Droid, error) {
	if len(command) == 0 {
		return nil, errors.New("droid command is required")
	}
	return &Droid{
		command: command,
		runner:  runner,
		results: results,
		logger:  log.With("component", "format_identification"),
	}, nil
}

// Name returns the check name.
func (d *Droid) Name() string {
	return "format_identification"
}

// Scan identifies the package and stores the result for the workflow.
func (d *Droid) Scan(ctx context.Context, sipPath string, wf *ingest.Workflow) error {
	if _, err := resolvePackage(sipPath); err != nil {
		return err
	}
	log := d.logger.ForWorkflow(wf.ExternalID, wf.SIPID)
	log.Info("format identification started", "tool_version", d.ToolVersion(ctx))

	result, err := d.Identify(ctx, sipPath)
	if err != nil {
		return err
	}
	for _, path := range result.Unidentified() {
		log.Warn("file was not identified", "file", path)
	}
	for _, path := range result.Ambiguous() {
		log.Warn("file identified with multiple formats", "file", path, "formats", result[path])
	}

	if err := d.results.Save(ctx, wf.ExternalID, result); err != nil {
		return err
	}
	log.Info("format identification finished", "files", len(result))
	return nil
}

// Identify profiles the package and returns the identifications per
// package-relative path. The profile and export files are always removed.
func (d *Droid) Identify(ctx context.Context, sipPath string) (format.Result, error) {
	abs, err := resolvePackage(sipPath)
	if err != nil {
		return nil, err
	}

	profile := abs + ".droid"
	export := abs + ".csv"
	defer d.cleanUp(profile, export)

	if _, err := d.run(ctx, "-R", "-a", abs, "-p", profile); err != nil {
		return nil, err
	}
	if _, err := os.Stat(profile); err != nil {
		return nil, process.NewToolError(ToolName, "profile", nil, fmt.Errorf("profile not created at %s: %w", profile, err))
	}
	if _, err := d.run(ctx, "-p", profile, "-f", exportFilter, "-E", export); err != nil {
		return nil, err
	}

	f, err := os.Open(export)
	if err != nil {
		return nil, process.NewToolError(ToolName, "export", nil, err)
	}
	defer f.Close()

	result, err := ParseExport(f, abs)
	if err != nil {
		return nil, process.NewToolError(ToolName, "parse export", nil, err)
	}
	return result, nil
}

// resolvePackage returns the absolute package path, failing with
// shared.ErrNotFound when nothing exists there.
func resolvePackage(sipPath string) (string, error) {
	if sipPath == "" {
		return "", fmt.Errorf("%w: empty package path", shared.ErrNotFound)
	}
	abs, err := filepath.Abs(sipPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve package path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: no file/folder found at: %s", shared.ErrNotFound, abs)
		}
		return "", fmt.Errorf("failed to stat package: %w", err)
	}
	return abs, nil
}

// ToolVersion returns the DROID version followed by the sorted signature
// files, or "unknown" when DROID cannot be queried.
func (d *Droid) ToolVersion(ctx context.Context) string {
	version, err := d.query(ctx, "-v")
	if err != nil || len(version) == 0 {
		d.logger.Warn("failed to query droid version", "error", err)
		return tool.UnknownVersion
	}
	signatures, err := d.query(ctx, "-x")
	if err != nil {
		d.logger.Warn("failed to query droid signature files", "error", err)
		return tool.UnknownVersion
	}
	return FormatVersion(version[0], signatures)
}

// FormatVersion renders a version string with the signature files sorted.
func FormatVersion(version string, signatures []string) string {
	sorted := append([]string(nil), signatures...)
	sort.Strings(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "DROID: version: %s, Signature files:", version)
	for i, sig := range sorted {
		fmt.Fprintf(&b, " %d. %s", i+1, sig)
	}
	return b.String()
}

func (d *Droid) query(ctx context.Context, flag string) ([]string, error) {
	res, err := d.run(ctx, flag)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range res.Stdout {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, startupBanner) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func (d *Droid) run(ctx context.Context, args ...string) (*process.Result, error) {
	full := append(append([]string{}, d.command[1:]...), args...)
	return d.runner.RunChecked(ctx, d.command[0], full...)
}

func (d *Droid) cleanUp(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("failed to remove droid artifact", "path", p, "error", err)
		}
	}
}
