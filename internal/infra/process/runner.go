// Package process runs external inspection tools with bounded run time.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/openctemio/sipguard/internal/metrics"
	"github.com/openctemio/sipguard/pkg/logger"
)

const maxLineSize = 1024 * 1024

var tracer = otel.Tracer("github.com/openctemio/sipguard/internal/infra/process")

// Result is the outcome of a finished tool run.
type Result struct {
	ExitCode int
	Stdout   []string
	// Stderr is empty when the streams were merged.
	Stderr   []string
	Duration time.Duration
}

// Config holds the two-stage timeout.
type Config struct {
	// SigtermTimeout is the run time after which SIGTERM is sent.
	SigtermTimeout time.Duration
	// SigkillTimeout is the grace period after SIGTERM before SIGKILL.
	SigkillTimeout time.Duration
}

// Runner runs external tools. It is safe for concurrent use.
type Runner struct {
	cfg    Config
	logger *logger.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg Config, log *logger.Logger) *Runner {
	if cfg.SigtermTimeout <= 0 {
		cfg.SigtermTimeout = time.Hour
	}
	if cfg.SigkillTimeout <= 0 {
		cfg.SigkillTimeout = 10 * time.Second
	}
	return &Runner{cfg: cfg, logger: log.With("component", "process_runner")}
}

// Run executes name with args, capturing stdout and stderr separately.
// A non-zero exit code is not an error.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return r.run(ctx, false, name, args)
}

// RunMerged executes name with args, interleaving stderr into Stdout.
func (r *Runner) RunMerged(ctx context.Context, name string, args ...string) (*Result, error) {
	return r.run(ctx, true, name, args)
}

// RunChecked executes name with args and returns a ToolError on a non-zero exit code.
func (r *Runner) RunChecked(ctx context.Context, name string, args ...string) (*Result, error) {
	res, err := r.run(ctx, false, name, args)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, NewToolError(toolName(name), "run "+strings.Join(args, " "), res, nil)
	}
	return res, nil
}

// The context only carries the trace; a started tool is stopped by the timeout alone.
func (r *Runner) run(ctx context.Context, merged bool, name string, args []string) (*Result, error) {
	tool := toolName(name)
	_, span := tracer.Start(ctx, "process.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("process.tool", tool),
		attribute.StringSlice("process.args", args),
		attribute.Bool("process.merged_output", merged),
	)

	log := r.logger.With("tool", tool)
	start := time.Now()

	res, err := r.exec(log, merged, name, args)
	elapsed := time.Since(start)
	metrics.ProcessDuration.WithLabelValues(tool).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Duration = elapsed
	span.SetAttributes(attribute.Int("process.exit_code", res.ExitCode))

	log.Debug("process finished",
		"exit_code", res.ExitCode,
		"duration", elapsed,
		"stdout_lines", len(res.Stdout),
		"stderr_lines", len(res.Stderr),
	)
	return res, nil
}

func (r *Runner) exec(log *logger.Logger, merged bool, name string, args []string) (*Result, error) {
	tool := toolName(name)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &ToolError{Tool: tool, Op: "create pipe", Err: err}
	}
	errR, errW := outR, outW
	if !merged {
		if errR, errW, err = os.Pipe(); err != nil {
			outR.Close()
			outW.Close()
			return nil, &ToolError{Tool: tool, Op: "create pipe", Err: err}
		}
	}
	closeReaders := func() {
		outR.Close()
		if !merged {
			errR.Close()
		}
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	outW.Close()
	if !merged {
		errW.Close()
	}
	if startErr != nil {
		closeReaders()
		return nil, &ToolError{Tool: tool, Op: "start", Err: startErr}
	}

	res := &Result{}
	var g errgroup.Group
	g.Go(func() error {
		lines, err := readLines(outR)
		res.Stdout = lines
		return err
	})
	if !merged {
		g.Go(func() error {
			lines, err := readLines(errR)
			res.Stderr = lines
			return err
		})
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-exited:
	case <-time.After(r.cfg.SigtermTimeout):
		log.Warn("process exceeded timeout, sending SIGTERM", "timeout", r.cfg.SigtermTimeout, "pid", cmd.Process.Pid)
		metrics.ProcessTimeoutsTotal.WithLabelValues(tool, "SIGTERM").Inc()
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-exited:
		case <-time.After(r.cfg.SigkillTimeout):
			log.Error("process ignored SIGTERM, killing", "grace", r.cfg.SigkillTimeout, "pid", cmd.Process.Pid)
			metrics.ProcessTimeoutsTotal.WithLabelValues(tool, "SIGKILL").Inc()
			_ = cmd.Process.Kill()
			<-exited
		}
		closeReaders()
		_ = g.Wait()
		return nil, fmt.Errorf("%s: %w after %s", tool, ErrTimeout, r.cfg.SigtermTimeout)
	}

	// Descendants of the tool may still hold the pipes open.
	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()
	var readErr error
	select {
	case readErr = <-drained:
	case <-time.After(r.cfg.SigkillTimeout):
		log.Warn("process output still open after exit, closing")
		closeReaders()
		<-drained
	}
	closeReaders()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, &ToolError{Tool: tool, Op: "wait", Err: waitErr}
	}
	if readErr != nil {
		return nil, &ToolError{Tool: tool, Op: "read output", Err: readErr}
	}
	res.ExitCode = cmd.ProcessState.ExitCode()
	return res, nil
}

// readLines drains r until EOF. Lines longer than maxLineSize are cut
// and the rest of the line is discarded, so the pipe never stops being read.
func readLines(r io.Reader) ([]string, error) {
	var (
		lines []string
		line  []byte
	)
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(line) < maxLineSize {
			line = append(line, chunk[:min(len(chunk), maxLineSize-len(line))]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return lines, nil
			}
			return lines, err
		}
		if isPrefix {
			continue
		}
		lines = append(lines, strings.TrimRight(string(line), "\r"))
		line = line[:0]
	}
}

func toolName(name string) string {
	return filepath.Base(name)
}
