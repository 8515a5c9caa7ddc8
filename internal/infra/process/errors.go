package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is returned when a tool had to be stopped by the timeout.
var ErrTimeout = errors.New("process timed out")

// ToolError reports that an external tool could not be run or produced
// output that cannot be interpreted. It never becomes an issue.
type ToolError struct {
	Tool     string
	Op       string
	ExitCode int
	Output   []string
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Tool, e.Op)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Output) > 0 {
		fmt.Fprintf(&b, ": %s", tail(e.Output, 5))
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a ToolError for an unexpected tool result.
func NewToolError(tool, op string, res *Result, err error) *ToolError {
	te := &ToolError{Tool: tool, Op: op, Err: err}
	if res != nil {
		te.ExitCode = res.ExitCode
		te.Output = append(append([]string{}, res.Stdout...), res.Stderr...)
	}
	return te
}

// IsToolError reports whether err is or wraps a ToolError.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

func tail(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
