package migrations

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMigrations(t *testing.T) {
	files := fstest.MapFS{
		"000002_formats.up.sql":   {Data: []byte("CREATE TABLE b ();")},
		"000002_formats.down.sql": {Data: []byte("DROP TABLE b;")},
		"000001_issues.up.sql":    {Data: []byte("CREATE TABLE a ();")},
		"000001_issues.down.sql":  {Data: []byte("DROP TABLE a;")},
		"README.md":               {Data: []byte("docs")},
	}

	got, err := scanMigrations(files)
	require.NoError(t, err)
	assert.Equal(t, []migration{
		{version: "000001", name: "issues"},
		{version: "000002", name: "formats"},
	}, got)

	file, err := findMigrationFile(files, "000002", "down")
	require.NoError(t, err)
	assert.Equal(t, "000002_formats.down.sql", file)

	_, err = findMigrationFile(files, "000003", "up")
	assert.Error(t, err)
}

func TestScanMigrations_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
	}{
		{name: "no separator", files: fstest.MapFS{"initial.up.sql": {}}},
		{name: "duplicate version", files: fstest.MapFS{"000001_a.up.sql": {}, "000001_b.up.sql": {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanMigrations(tt.files)
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedSchema(t *testing.T) {
	sub, err := fs.Sub(embedded, "sql")
	require.NoError(t, err)

	got, err := scanMigrations(sub)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	for _, m := range got {
		_, err := findMigrationFile(sub, m.version, "down")
		assert.NoError(t, err, "migration %s has no down file", m.version)
	}

	up, err := fs.ReadFile(sub, "000001_create_ingest_issues.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "resolved_by_policy")
}
