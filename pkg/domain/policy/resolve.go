package policy

import (
	"fmt"
	"strings"
)

// Outcome classifies the result of resolving a configuration value.
type Outcome int

const (
	// OutcomeAbsent means a segment of the path is missing.
	OutcomeAbsent Outcome = iota
	// OutcomeInvalid means the value is not one of the legal labels.
	OutcomeInvalid
	// OutcomeResolved means a legal action was found.
	OutcomeResolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAbsent:
		return "ABSENT"
	case OutcomeInvalid:
		return "INVALID"
	case OutcomeResolved:
		return "RESOLVED"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Action is a label-backed remediation action.
type Action interface {
	~string
}

// Decision is the result of resolving an action at a configuration path.
// Action is meaningful only when Outcome is OutcomeResolved.
type Decision[A Action] struct {
	Path    string
	Outcome Outcome
	Action  A
	Note    string
}

// Resolved reports whether a legal action was found. Issues raised under this
// decision carry it as their resolved-by-policy flag.
func (d Decision[A]) Resolved() bool {
	return d.Outcome == OutcomeResolved
}

// Resolve looks up path in doc and matches its value against legal, case-sensitively.
func Resolve[A Action](doc Document, path string, legal []A) Decision[A] {
	node, ok := doc.At(path)
	if !ok {
		return Decision[A]{Path: path, Outcome: OutcomeAbsent, Note: MissingNote(path)}
	}

	value, isString := node.(string)
	if isString {
		for _, a := range legal {
			if string(a) == value {
				return Decision[A]{Path: path, Outcome: OutcomeResolved, Action: a, Note: UsedNote(path, value)}
			}
		}
	}

	return Decision[A]{Path: path, Outcome: OutcomeInvalid, Note: InvalidNote(path, render(node), labels(legal))}
}

// MissingNote is recorded when no value exists at path.
func MissingNote(path string) string {
	return "missing config at " + path
}

// InvalidNote is recorded when the value at path is not acceptable.
func InvalidNote(path, value string, expected []string) string {
	return fmt.Sprintf("invalid config value %s at %s, expected one of [%s]", value, path, strings.Join(expected, ", "))
}

// UsedNote is recorded when the value at path decided the action.
func UsedNote(path, value string) string {
	return fmt.Sprintf("used config value %s at %s", value, path)
}

func labels[A Action](legal []A) []string {
	out := make([]string, len(legal))
	for i, a := range legal {
		out[i] = string(a)
	}
	return out
}
