package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openctemio/sipguard/pkg/domain/format"
)

// FormatRepository reads and maintains the format registry.
type FormatRepository struct {
	db *DB
}

// NewFormatRepository creates a new FormatRepository.
func NewFormatRepository(db *DB) *FormatRepository {
	return &FormatRepository{db: db}
}

// FindPreferredByPUID returns the preferred definition registered for puid.
func (r *FormatRepository) FindPreferredByPUID(ctx context.Context, puid string) (*format.Definition, error) {
	query := `
		SELECT puid, format_name, format_version, preferred
		FROM format_definitions
		WHERE puid = $1
		ORDER BY preferred DESC, updated_at DESC
		LIMIT 1
	`

	var (
		def     format.Definition
		name    sql.NullString
		version sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, puid).Scan(&def.PUID, &name, &version, &def.Preferred)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", format.ErrDefinitionNotFound, puid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find format definition: %w", err)
	}
	def.Name = nullStringValue(name)
	def.Version = nullStringValue(version)
	return &def, nil
}

// Upsert registers a definition. A preferred definition demotes the others for its PUID.
func (r *FormatRepository) Upsert(ctx context.Context, def *format.Definition) error {
	if def == nil || def.PUID == "" {
		return fmt.Errorf("format definition requires a puid")
	}
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if def.Preferred {
			if _, err := tx.ExecContext(ctx,
				`UPDATE format_definitions SET preferred = FALSE, updated_at = NOW() WHERE puid = $1 AND preferred`,
				def.PUID,
			); err != nil {
				return fmt.Errorf("failed to demote format definitions: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO format_definitions (puid, format_name, format_version, preferred, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (puid, format_version) DO UPDATE SET
				format_name = EXCLUDED.format_name,
				preferred = EXCLUDED.preferred,
				updated_at = EXCLUDED.updated_at
		`, def.PUID, nullString(def.Name), def.Version, def.Preferred)
		if err != nil {
			return fmt.Errorf("failed to upsert format definition: %w", err)
		}
		return nil
	})
}
