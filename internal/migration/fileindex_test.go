package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIndex(dir string) *FileIndex {
	return NewFileIndex(func(string) string { return dir }, zap.NewNop())
}

func TestFileIndex_List(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20240102_b", "CREATE TABLE b (id INTEGER);", "DROP TABLE b;")
	writeMigration(t, dir, "20240101_a", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	writeMigration(t, dir, "0003_leading_zero", "SELECT 1;", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.sql"), []byte("--"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_bad.up.sql"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7_.up.sql"), []byte(""), 0o644))

	migrations, warnings, err := newIndex(dir).List("")
	require.NoError(t, err)

	require.Len(t, migrations, 3)
	assert.Equal(t, "0003_leading_zero", migrations[0].Name)
	assert.Equal(t, Revision(3), migrations[0].Revision)
	assert.Equal(t, "leading_zero", migrations[0].Label)
	assert.False(t, migrations[0].HasDown())

	assert.Equal(t, "20240101_a", migrations[1].Name)
	assert.Equal(t, "CREATE TABLE a (id INTEGER);", migrations[1].Up)
	assert.Equal(t, "DROP TABLE a;", migrations[1].Down)
	assert.True(t, migrations[1].HasDown())
	assert.Len(t, migrations[1].Checksum, 16)

	assert.Equal(t, "20240102_b", migrations[2].Name)

	assert.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.NotContains(t, w, "README.md")
	}
}

func TestFileIndex_List_MissingDir(t *testing.T) {
	migrations, warnings, err := newIndex(filepath.Join(t.TempDir(), "nope")).List("")
	require.NoError(t, err)
	assert.Empty(t, migrations)
	assert.Empty(t, warnings)
}

func TestFileIndex_List_DownOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5_orphan.down.sql"), []byte("DROP TABLE x;"), 0o644))

	migrations, warnings, err := newIndex(dir).List("")
	require.NoError(t, err)
	assert.Empty(t, migrations)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "5_orphan.down.sql")
}

func TestFileIndex_List_DuplicateRevision(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{name: "two up scripts", files: []string{"1_a.up.sql", "1_b.up.sql"}},
		{name: "mismatched labels", files: []string{"1_a.up.sql", "1_b.down.sql"}},
		{name: "different padding", files: []string{"01_a.up.sql", "1_a.down.sql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("SELECT 1;"), 0o644))
			}

			_, _, err := newIndex(dir).List("")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicateRevision)
			assert.Equal(t, KindIntegrity, KindOf(err))
		})
	}
}

func TestFileIndex_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "users")
	idx := newIndex(dir)

	upPath, downPath, err := idx.Write("users", "1_init", "CREATE TABLE u (id INTEGER);", "DROP TABLE u;")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1_init.up.sql"), upPath)
	assert.Equal(t, filepath.Join(dir, "1_init.down.sql"), downPath)

	data, err := os.ReadFile(upPath)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE u (id INTEGER);", string(data))

	_, _, err = idx.Write("users", "1_init", "x", "y")
	require.Error(t, err)
	data, err = os.ReadFile(upPath)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE u (id INTEGER);", string(data), "existing file must not be overwritten")

	migrations, _, err := idx.List("users")
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, "users", migrations[0].Module)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"20240101120000_add_users", false},
		{"1_a", false},
		{"1_add-index", false},
		{"add_users", true},
		{"1_", true},
		{"1_-bad", true},
		{"1_has space", true},
		{"-1_neg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncorrectMigrationName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextRevision(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, Revision(20240301113045), NextRevision(now, 0))
	assert.Equal(t, Revision(20240301113045), NextRevision(now, 20240101000000))
	assert.Equal(t, Revision(20240301113046), NextRevision(now, 20240301113045))
	assert.Equal(t, Revision(20990101000001), NextRevision(now, 20990101000000))
}

func TestParseRevision(t *testing.T) {
	r, err := ParseRevision("0042")
	require.NoError(t, err)
	assert.Equal(t, Revision(42), r)
	assert.Equal(t, "42", r.String())

	_, err = ParseRevision("abc")
	assert.ErrorIs(t, err, ErrIncorrectMigrationName)
}
