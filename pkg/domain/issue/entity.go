// Package issue provides the persisted record of an anomaly detected during ingest.
package issue

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
)

// CheckCode is the stable classification of an issue.
type CheckCode string

const (
	CodeVirusFound              CheckCode = "FILE_VIRUS_FOUND"
	CodeFormatUnidentified      CheckCode = "FILE_FORMAT_UNIDENTIFIED"
	CodeNodeMissing             CheckCode = "SYSTEM_WIDE_VALIDATION_NODE_MISSING"
	CodeInvalidChecksum         CheckCode = "FILE_INVALID_CHECKSUM"
	CodeFileMissing             CheckCode = "FILE_MISSING"
	CodeUnsupportedChecksumType CheckCode = "FILE_UNSUPPORTED_CHECKSUM_TYPE"
	CodeConfigParseError        CheckCode = "CONFIG_PARSE_ERROR"
)

// IsValid checks if the check code is known.
func (c CheckCode) IsValid() bool {
	switch c {
	case CodeVirusFound, CodeFormatUnidentified, CodeNodeMissing, CodeInvalidChecksum,
		CodeFileMissing, CodeUnsupportedChecksumType, CodeConfigParseError:
		return true
	default:
		return false
	}
}

// ParseCheckCode parses a check code, accepting any letter case.
func ParseCheckCode(s string) (CheckCode, error) {
	c := CheckCode(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown check code %q", shared.ErrValidation, s)
	}
	return c, nil
}

// Issue is an immutable record of one anomaly.
type Issue struct {
	id                 shared.ID
	workflowExternalID string
	tool               tool.Ref
	checkCode          CheckCode
	format             *format.Definition
	description        string

	// resolvedByPolicy is true when the configuration yielded a legal action,
	// whatever that action was. False means the note is a missing or invalid note.
	resolvedByPolicy bool
	configNote       string

	createdAt time.Time
}

// Params describes an issue to be created.
type Params struct {
	WorkflowExternalID string
	Tool               tool.Ref
	CheckCode          CheckCode
	Format             *format.Definition
	Description        string
	// ResolvedByPolicy reports that configuration decided the action,
	// including CANCEL and QUARANTINE. It is false when the policy was
	// absent or invalid.
	ResolvedByPolicy bool
	ConfigNote       string
}

// New creates a new issue.
func New(p Params) (*Issue, error) {
	if strings.TrimSpace(p.WorkflowExternalID) == "" {
		return nil, fmt.Errorf("%w: workflow external id is required", shared.ErrValidation)
	}
	if err := p.Tool.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !p.CheckCode.IsValid() {
		return nil, fmt.Errorf("%w: invalid check code %q", shared.ErrValidation, p.CheckCode)
	}
	if strings.TrimSpace(p.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", shared.ErrValidation)
	}
	if p.Format != nil && p.Format.PUID == "" {
		return nil, fmt.Errorf("%w: format reference requires a puid", shared.ErrValidation)
	}

	return &Issue{
		id:                 shared.NewID(),
		workflowExternalID: p.WorkflowExternalID,
		tool:               p.Tool,
		checkCode:          p.CheckCode,
		format:             p.Format,
		description:        p.Description,
		resolvedByPolicy:   p.ResolvedByPolicy,
		configNote:         p.ConfigNote,
		createdAt:          time.Now().UTC(),
	}, nil
}

// Data contains all data needed to reconstitute an Issue from persistence.
type Data struct {
	ID                 shared.ID
	WorkflowExternalID string
	Tool               tool.Ref
	CheckCode          CheckCode
	Format             *format.Definition
	Description        string
	ResolvedByPolicy   bool
	ConfigNote         string
	CreatedAt          time.Time
}

// Reconstitute recreates an Issue from persistence.
func Reconstitute(d Data) *Issue {
	return &Issue{
		id:                 d.ID,
		workflowExternalID: d.WorkflowExternalID,
		tool:               d.Tool,
		checkCode:          d.CheckCode,
		format:             d.Format,
		description:        d.Description,
		resolvedByPolicy:   d.ResolvedByPolicy,
		configNote:         d.ConfigNote,
		createdAt:          d.CreatedAt,
	}
}

// Getters

func (i *Issue) ID() shared.ID              { return i.id }
func (i *Issue) WorkflowExternalID() string { return i.workflowExternalID }
func (i *Issue) Tool() tool.Ref             { return i.tool }
func (i *Issue) CheckCode() CheckCode       { return i.checkCode }
func (i *Issue) Format() *format.Definition { return i.format }
func (i *Issue) Description() string        { return i.description }
func (i *Issue) ResolvedByPolicy() bool     { return i.resolvedByPolicy }
func (i *Issue) ConfigNote() string         { return i.configNote }
func (i *Issue) CreatedAt() time.Time       { return i.createdAt }

// Summary is a flat view of an issue for payloads and CLI output.
type Summary struct {
	ID                 shared.ID `json:"id"`
	WorkflowExternalID string    `json:"workflow_external_id"`
	Tool               tool.Ref  `json:"tool"`
	CheckCode          CheckCode `json:"check_code"`
	FormatPUID         string    `json:"format_puid,omitempty"`
	Description        string    `json:"description"`
	ResolvedByPolicy   bool      `json:"resolved_by_policy"`
	ConfigNote         string    `json:"config_note,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Summarize returns the flat view of the issue.
func (i *Issue) Summarize() Summary {
	s := Summary{
		ID:                 i.id,
		WorkflowExternalID: i.workflowExternalID,
		Tool:               i.tool,
		CheckCode:          i.checkCode,
		Description:        i.description,
		ResolvedByPolicy:   i.resolvedByPolicy,
		ConfigNote:         i.configNote,
		CreatedAt:          i.createdAt,
	}
	if i.format != nil {
		s.FormatPUID = i.format.PUID
	}
	return s
}
