package issue

import (
	"errors"
	"fmt"
)

// ErrIssueNotFound is returned when an issue lookup matches nothing.
var ErrIssueNotFound = errors.New("issue not found")

// MaxFailureMessageLength bounds the message carried by a ProcessFailureError.
const MaxFailureMessageLength = 3500

const reducedSuffix = "... message reduced"

// IncidentError suspends the workflow until an operator decides. It carries
// the issues that the configuration could not resolve; they are already persisted.
type IncidentError struct {
	Issues []*Issue
}

// NewIncidentError creates an incident signal for the given issues.
func NewIncidentError(issues []*Issue) *IncidentError {
	return &IncidentError{Issues: issues}
}

func (e *IncidentError) Error() string {
	if len(e.Issues) == 0 {
		return "incident: no issues"
	}
	first := e.Issues[0]
	msg := fmt.Sprintf("incident: %d unresolved issue(s) from %s: %s", len(e.Issues), first.Tool().Name, first.Description())
	if note := first.ConfigNote(); note != "" {
		msg += " (" + note + ")"
	}
	return msg
}

// IssueIDs returns the identifiers of the carried issues.
func (e *IncidentError) IssueIDs() []string {
	ids := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		ids[i] = is.ID().String()
	}
	return ids
}

// ProcessFailureError terminates the workflow because the policy demanded it.
type ProcessFailureError struct {
	Message string
}

// NewProcessFailureError creates a failure signal, trimming long messages.
func NewProcessFailureError(msg string, args ...any) *ProcessFailureError {
	return &ProcessFailureError{Message: TrimMessage(fmt.Sprintf(msg, args...))}
}

func (e *ProcessFailureError) Error() string {
	return "process failure: " + e.Message
}

// TrimMessage cuts msg to MaxFailureMessageLength characters.
func TrimMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxFailureMessageLength {
		return msg
	}
	keep := MaxFailureMessageLength - len(reducedSuffix)
	return string(runes[:keep]) + reducedSuffix
}

// RemediationError reports that an action chosen by policy could not be carried out.
type RemediationError struct {
	Action string
	Path   string
	Err    error
}

func (e *RemediationError) Error() string {
	return fmt.Sprintf("remediation %s failed for %s: %v", e.Action, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemediationError) Unwrap() error {
	return e.Err
}

// AsIncident extracts an IncidentError from err.
func AsIncident(err error) (*IncidentError, bool) {
	var inc *IncidentError
	if errors.As(err, &inc) {
		return inc, true
	}
	return nil, false
}

// AsProcessFailure extracts a ProcessFailureError from err.
func AsProcessFailure(err error) (*ProcessFailureError, bool) {
	var pf *ProcessFailureError
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
