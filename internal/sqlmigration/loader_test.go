package sqlmigration_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/data-migration-runner/internal/sqlmigration"
)

func TestLoadDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		setup       func(t *testing.T) string // returns directory path
		wantErr     bool
		errContains string
		check       func(t *testing.T, fs []sqlmigration.File)
	}{
		{
			name: "loads from testdata directory",
			setup: func(t *testing.T) string {
				t.Helper()

				return filepath.Join("..", "..", "testdata", "migrations")
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				require.Len(t, fs, 3)

				assert.Equal(t, "backfill_user_slugs", fs[0].Name)
				assert.Equal(t, "001", fs[0].Version)
				assert.Contains(t, fs[0].UpSQL, "UPDATE users")
				assert.Contains(t, fs[0].VerifySQL, "NOT EXISTS")
				assert.Empty(t, fs[0].DownSQL)
				assert.Len(t, fs[0].Checksum, 64)
				assert.True(t, strings.HasSuffix(fs[0].Path, "V001_backfill_user_slugs.up.sql"))

				assert.Equal(t, "normalize_emails", fs[1].Name)
				assert.True(t, fs[1].Reversible())
				assert.False(t, fs[1].Verifiable())

				assert.Equal(t, "index_user_slugs", fs[2].Name)
			},
		},
		{
			name: "missing directory returns error",
			setup: func(t *testing.T) string {
				t.Helper()

				return filepath.Join(t.TempDir(), "nonexistent")
			},
			wantErr:     true,
			errContains: "reading migrations directory",
		},
		{
			name: "empty directory returns empty slice",
			setup: func(t *testing.T) string {
				t.Helper()

				return t.TempDir()
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				assert.Empty(t, fs)
			},
		},
		{
			name: "non-matching files are skipped",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "README.md", "# readme")
				writeFile(t, dir, "V001_test.sql", "SELECT 1;")

				return dir
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				assert.Empty(t, fs)
			},
		},
		{
			name: "down and verify scripts are paired with up",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "V001_test.up.sql", "UPDATE t SET a = 1;")
				writeFile(t, dir, "V001_test.down.sql", "UPDATE t SET a = 0;")
				writeFile(t, dir, "V001_test.verify.sql", "SELECT true;")

				return dir
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				require.Len(t, fs, 1)
				assert.Equal(t, "UPDATE t SET a = 0;", fs[0].DownSQL)
				assert.Equal(t, "SELECT true;", fs[0].VerifySQL)
			},
		},
		{
			name: "orphan down and verify scripts are skipped",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "V001_test.down.sql", "UPDATE t SET a = 0;")
				writeFile(t, dir, "V002_other.verify.sql", "SELECT true;")

				return dir
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				assert.Empty(t, fs)
			},
		},
		{
			name: "timestamp filename pattern works",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "20240101120000_backfill_posts.up.sql", "UPDATE posts SET x = 1;")

				return dir
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				require.Len(t, fs, 1)
				assert.Equal(t, "20240101120000", fs[0].Version)
				assert.Equal(t, "backfill_posts", fs[0].Name)
			},
		},
		{
			name: "result is sorted by version",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "V003_c.up.sql", "SELECT 3;")
				writeFile(t, dir, "V001_a.up.sql", "SELECT 1;")
				writeFile(t, dir, "V002_b.up.sql", "SELECT 2;")

				return dir
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				require.Len(t, fs, 3)
				assert.Equal(t, []string{"a", "b", "c"}, []string{fs[0].Name, fs[1].Name, fs[2].Name})
			},
		},
		{
			name: "content is trimmed before checksum",
			setup: func(t *testing.T) string {
				t.Helper()
				dir := t.TempDir()
				writeFile(t, dir, "V001_test.up.sql", "  SELECT 1;  \n")

				return dir
			},
			check: func(t *testing.T, fs []sqlmigration.File) {
				t.Helper()
				require.Len(t, fs, 1)
				assert.Equal(t, "SELECT 1;", fs[0].UpSQL)
				assert.Equal(t, sqlmigration.ComputeChecksum("SELECT 1;"), fs[0].Checksum)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := tt.setup(t)
			fs, err := sqlmigration.LoadDir(dir)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)

				return
			}

			require.NoError(t, err)

			if tt.check != nil {
				tt.check(t, fs)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
