package format

import (
	"context"
	"errors"
)

// ErrResultNotFound is returned when no identification result is stored for a workflow.
var ErrResultNotFound = errors.New("format identification result not found")

// ErrDefinitionNotFound is returned when the registry holds no definition for a PUID.
var ErrDefinitionNotFound = errors.New("format definition not found")

// Repository reads the format registry.
type Repository interface {
	// FindPreferredByPUID returns the preferred definition for a PUID.
	FindPreferredByPUID(ctx context.Context, puid string) (*Definition, error)
	Upsert(ctx context.Context, def *Definition) error
}

// ResultStore keeps the latest identification result per workflow.
type ResultStore interface {
	Save(ctx context.Context, workflowExternalID string, result Result) error
	Load(ctx context.Context, workflowExternalID string) (Result, error)
}

// Lookup resolves the format of a file inside a package.
type Lookup interface {
	// Find returns the package-relative path of file and its preferred definition.
	// The definition is nil when the format is unknown.
	Find(ctx context.Context, workflowExternalID, sipPath, file string) (string, *Definition, error)
}
