package policy

import "fmt"

// Configuration paths read by the ingest checks.
const (
	PathAntivirus                 = "/antivirus"
	PathMissingNodesAfterXSLT     = "/systemWideValidation/missingNodesAfterXsltAction"
	PathMissingNodesAfterFinal    = "/systemWideValidation/missingNodesAfterFinalValidationAction"
	PathFixityUnsupportedChecksum = "/fixityCheck/continueOnUnsupportedChecksumType"
	PathFixityMissingFiles        = "/fixityCheck/continueOnMissingFiles"
	PathFixityInvalidChecksums    = "/fixityCheck/continueOnInvalidChecksums"
)

// InfectedSIP is the action taken when a virus scan finds infected files.
type InfectedSIP string

const (
	InfectedSIPIgnore     InfectedSIP = "IGNORE"
	InfectedSIPQuarantine InfectedSIP = "QUARANTINE"
	InfectedSIPCancel     InfectedSIP = "CANCEL"
)

// MissingNodes is the action taken when validation reports missing nodes.
type MissingNodes string

const (
	MissingNodesIgnore MissingNodes = "IGNORE"
	MissingNodesCancel MissingNodes = "CANCEL"
)

// Fixity is the action taken for one kind of fixity anomaly.
type Fixity string

const (
	FixityContinue Fixity = "CONTINUE"
	FixityCancel   Fixity = "CANCEL"
)

// Stage names the validation step that reported missing nodes.
type Stage string

const (
	StageXSLT  Stage = "XSLT"
	StageFinal Stage = "FINAL"
)

// IsValid checks if the stage is known.
func (s Stage) IsValid() bool {
	return s == StageXSLT || s == StageFinal
}

// FixityKind is a class of fixity anomaly, checked in declaration order.
type FixityKind string

const (
	FixityUnsupportedChecksumType FixityKind = "unsupported_checksum_type"
	FixityMissingFiles            FixityKind = "missing_files"
	FixityInvalidChecksums        FixityKind = "invalid_checksums"
)

// AntivirusBase returns the object holding the antivirus settings. When the
// antivirus section is a list of tool configurations the first entry is used.
func AntivirusBase(doc Document) string {
	if node, ok := doc.At(PathAntivirus); ok {
		if _, isList := node.([]any); isList {
			return PathAntivirus + "/0"
		}
	}
	return PathAntivirus
}

// InfectedSIPAction resolves the action for infected packages.
func InfectedSIPAction(doc Document) Decision[InfectedSIP] {
	return Resolve(doc, AntivirusBase(doc)+"/infectedSipAction",
		[]InfectedSIP{InfectedSIPIgnore, InfectedSIPQuarantine, InfectedSIPCancel})
}

// MissingNodesAction resolves the action for nodes missing after the given stage.
func MissingNodesAction(doc Document, stage Stage) Decision[MissingNodes] {
	path := PathMissingNodesAfterFinal
	if stage == StageXSLT {
		path = PathMissingNodesAfterXSLT
	}
	return Resolve(doc, path, []MissingNodes{MissingNodesIgnore, MissingNodesCancel})
}

// FixityAction resolves the action for a kind of fixity anomaly.
func FixityAction(doc Document, kind FixityKind) Decision[Fixity] {
	var path string
	switch kind {
	case FixityUnsupportedChecksumType:
		path = PathFixityUnsupportedChecksum
	case FixityMissingFiles:
		path = PathFixityMissingFiles
	default:
		path = PathFixityInvalidChecksums
	}
	return Resolve(doc, path, []Fixity{FixityContinue, FixityCancel})
}

// ParseError reports a configuration value that cannot be used to build a check.
type ParseError struct {
	Path  string
	Value string
	Want  string
}

func (e *ParseError) Error() string {
	return e.Note()
}

// Note renders the error in the same form as InvalidNote.
func (e *ParseError) Note() string {
	return fmt.Sprintf("invalid config value %s at %s, expected %s", e.Value, e.Path, e.Want)
}

// AntivirusCommand returns the command line override for the scanner, or nil
// when none is configured.
func AntivirusCommand(doc Document) ([]string, error) {
	return commandAt(doc, AntivirusBase(doc)+"/cmd")
}

func commandAt(doc Document, path string) ([]string, error) {
	node, ok := doc.At(path)
	if !ok {
		return nil, nil
	}
	invalid := &ParseError{Path: path, Value: render(node), Want: "a non-empty list of strings"}
	list, isList := node.([]any)
	if !isList || len(list) == 0 {
		return nil, invalid
	}
	cmd := make([]string, len(list))
	for i, item := range list {
		s, isString := item.(string)
		if !isString || s == "" {
			return nil, invalid
		}
		cmd[i] = s
	}
	return cmd, nil
}
