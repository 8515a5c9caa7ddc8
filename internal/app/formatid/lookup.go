package formatid

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/logger"
)

// ResultLookup finds the format of a file from the stored identification
// result of its workflow and the format registry.
type ResultLookup struct {
	results format.ResultStore
	formats format.Repository
	logger  *logger.Logger
}

// NewResultLookup creates a ResultLookup.
func NewResultLookup(results format.ResultStore, formats format.Repository, log *logger.Logger) *ResultLookup {
	return &ResultLookup{
		results: results,
		formats: formats,
		logger:  log.With("component", "format_lookup"),
	}
}

// Find returns the package-relative path of file and its preferred format
// definition. Files that were never identified yield a nil definition. A PUID
// missing from the registry yields a definition carrying only the PUID.
func (l *ResultLookup) Find(ctx context.Context, workflowExternalID, sipPath, file string) (string, *format.Definition, error) {
	rel := RelativePath(sipPath, file)

	result, err := l.results.Load(ctx, workflowExternalID)
	if errors.Is(err, format.ErrResultNotFound) {
		l.logger.Debug("no identification result for workflow", "workflow_id", workflowExternalID)
		return rel, nil, nil
	}
	if err != nil {
		return rel, nil, err
	}

	id, ok := result.Primary(rel)
	if !ok {
		return rel, nil, nil
	}
	def, err := l.formats.FindPreferredByPUID(ctx, id.PUID)
	if errors.Is(err, format.ErrDefinitionNotFound) {
		return rel, &format.Definition{PUID: id.PUID}, nil
	}
	if err != nil {
		return rel, nil, err
	}
	return rel, def, nil
}

// RelativePath returns file relative to sipPath with forward slashes. Paths
// outside the package are returned unchanged.
func RelativePath(sipPath, file string) string {
	if !filepath.IsAbs(file) {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(sipPath, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return file
	}
	return filepath.ToSlash(rel)
}

var _ format.Lookup = (*ResultLookup)(nil)
