// Package tool identifies the external and built-in tools that raise ingest issues.
package tool

import (
	"fmt"
	"strings"
)

// Function is the kind of check a tool performs during ingest.
type Function string

const (
	FunctionVirusCheck           Function = "virus_check"
	FunctionFormatIdentification Function = "format_identification"
	FunctionFixityCheck          Function = "fixity_check"
	FunctionValidation           Function = "validation"
)

// IsValid checks if the tool function is known.
func (f Function) IsValid() bool {
	switch f {
	case FunctionVirusCheck, FunctionFormatIdentification, FunctionFixityCheck, FunctionValidation:
		return true
	default:
		return false
	}
}

// AllFunctions returns every known tool function.
func AllFunctions() []Function {
	return []Function{
		FunctionVirusCheck,
		FunctionFormatIdentification,
		FunctionFixityCheck,
		FunctionValidation,
	}
}

// ParseFunction parses a tool function from its string form.
func ParseFunction(s string) (Function, error) {
	f := Function(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("unknown tool function %q", s)
	}
	return f, nil
}

// EngineVersion is the version stamped on issues raised by built-in checks.
// Overridden at build time through -ldflags.
var EngineVersion = "dev"

// UnknownVersion is recorded when a tool cannot report its version.
const UnknownVersion = "unknown"

// Names of the built-in tools.
const (
	NameFixity     = "sipguard_fixity_check"
	NameValidation = "sipguard_validation"
)

// Ref identifies the tool that produced an issue.
type Ref struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Function Function `json:"function"`
}

// NewRef creates a tool reference.
func NewRef(name, version string, function Function) (Ref, error) {
	if strings.TrimSpace(name) == "" {
		return Ref{}, fmt.Errorf("tool name is required")
	}
	if !function.IsValid() {
		return Ref{}, fmt.Errorf("unknown tool function %q", function)
	}
	return Ref{Name: name, Version: version, Function: function}, nil
}

// Builtin returns the reference of a check implemented by the engine itself.
func Builtin(name string, function Function) Ref {
	return Ref{Name: name, Version: EngineVersion, Function: function}
}

// Validate checks that the reference names a tool and a known function.
func (r Ref) Validate() error {
	_, err := NewRef(r.Name, r.Version, r.Function)
	return err
}

func (r Ref) String() string {
	if r.Version == "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.Function)
	}
	return fmt.Sprintf("%s %s (%s)", r.Name, r.Version, r.Function)
}
