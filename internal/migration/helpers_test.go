package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/migrateflow/internal/database"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	root string
	pool *database.PoolManager
	mgr  *Manager
	rec  *fakeRecorder
}

func (e *testEnv) dir(module string) string {
	if module == "" {
		return filepath.Join(e.root, "migrations")
	}
	return filepath.Join(e.root, "migrations", module)
}

func (e *testEnv) db() *gorm.DB {
	return e.pool.DB()
}

type fakeRecorder struct {
	observed []string
	applied  map[string]int
}

func (r *fakeRecorder) ObserveMigration(module, direction, status string, _ time.Duration) {
	r.observed = append(r.observed, fmt.Sprintf("%s/%s/%s", module, direction, status))
}

func (r *fakeRecorder) SetApplied(module string, count int) {
	if r.applied == nil {
		r.applied = make(map[string]int)
	}
	r.applied[module] = count
}

// newTestEnv creates a manager on a temp-file sqlite database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	db, err := database.Open(database.DatabaseTypeSQLite, filepath.Join(root, "test.db"), false)
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.DatabaseTypeSQLite, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	env := &testEnv{root: root, pool: pool, rec: &fakeRecorder{}}
	runs := 0
	mgr, err := NewManager(context.Background(), pool, Options{
		Dirs:     env.dir,
		Logger:   zap.NewNop(),
		Recorder: env.rec,
		Now:      func() time.Time { return fixedNow },
		NewRunID: func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		},
	})
	require.NoError(t, err)
	env.mgr = mgr
	return env
}

func writeMigration(t *testing.T, dir, name, up, down string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".up.sql"), []byte(up), 0o644))
	if down != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".down.sql"), []byte(down), 0o644))
	}
}

func hasTable(t *testing.T, db *gorm.DB, name string) bool {
	t.Helper()
	return db.Migrator().HasTable(name)
}
