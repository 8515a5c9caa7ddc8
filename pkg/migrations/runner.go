// Package migrations applies the embedded database schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

// Runner executes database migrations.
type Runner struct {
	db    *sql.DB
	files fs.FS
	out   io.Writer
}

// NewRunner creates a migration runner over the embedded schema.
func NewRunner(db *sql.DB, out io.Writer) *Runner {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return NewRunnerFS(db, sub, out)
}

// NewRunnerFS creates a migration runner over files named <version>_<name>.<up|down>.sql.
func NewRunnerFS(db *sql.DB, files fs.FS, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{db: db, files: files, out: out}
}

// MigrationRecord represents a row of the schema_migrations table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Status describes one available migration.
type Status struct {
	Version string
	Name    string
	Applied bool
}

// EnsureMigrationTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

// GetAppliedMigrations returns all applied migration versions.
func (r *Runner) GetAppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		if err := rows.Scan(&rec.Version, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Status lists every available migration and whether it has been applied.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure migration table: %w", err)
	}
	available, err := scanMigrations(r.files)
	if err != nil {
		return nil, err
	}
	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	out := make([]Status, 0, len(available))
	for _, m := range available {
		out = append(out, Status{Version: m.version, Name: m.name, Applied: appliedSet[m.version]})
	}
	return out, nil
}

// Up runs all pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	statuses, err := r.Status(ctx)
	if err != nil {
		return err
	}

	var pending []Status
	for _, s := range statuses {
		if !s.Applied {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		fmt.Fprintln(r.out, "No pending migrations")
		return nil
	}

	fmt.Fprintf(r.out, "Running %d migrations...\n", len(pending))
	for _, s := range pending {
		if err := r.runMigration(ctx, s.Version, "up"); err != nil {
			return fmt.Errorf("migration %s failed: %w", s.Version, err)
		}
		fmt.Fprintf(r.out, "  Applied: %s_%s\n", s.Version, s.Name)
	}
	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}
	applied, err := r.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(r.out, "No migrations to rollback")
		return nil
	}

	last := applied[len(applied)-1]
	if err := r.runMigration(ctx, last.Version, "down"); err != nil {
		return fmt.Errorf("rollback %s failed: %w", last.Version, err)
	}
	fmt.Fprintf(r.out, "Rolled back: %s\n", last.Version)
	return nil
}

func (r *Runner) runMigration(ctx context.Context, version, direction string) error {
	file, err := findMigrationFile(r.files, version, direction)
	if err != nil {
		return err
	}
	content, err := fs.ReadFile(r.files, file)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}

	if direction == "up" {
		_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
	} else {
		_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

type migration struct {
	version string
	name    string
}

// scanMigrations lists the versions that have an up file, in version order.
func scanMigrations(files fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	seen := make(map[string]bool)
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".up.sql")
		version, name, ok := strings.Cut(base, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("invalid migration file name: %s", e.Name())
		}
		if seen[version] {
			return nil, fmt.Errorf("duplicate migration version: %s", version)
		}
		seen[version] = true
		out = append(out, migration{version: version, name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func findMigrationFile(files fs.FS, version, direction string) (string, error) {
	matches, err := fs.Glob(files, fmt.Sprintf("%s_*.%s.sql", version, direction))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("migration file not found: %s (%s)", version, direction)
	}
	return path.Clean(matches[0]), nil
}
