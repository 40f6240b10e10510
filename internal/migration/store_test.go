package migration

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestRecordStore_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewRecordStore("", zap.NewNop())
	db := env.db()

	assert.Equal(t, DefaultTable, store.Table())
	require.NoError(t, store.EnsureTable(ctx, db), "second call must be a no-op")
	assert.True(t, db.Migrator().HasIndex(DefaultTable, "idx_schema_migrations_module_migration"))

	last, err := store.GetLast(ctx, db, "")
	require.NoError(t, err)
	assert.True(t, last.Zero())

	require.NoError(t, store.Insert(ctx, db, &Record{Migration: "1_a", Revision: 1}))
	require.NoError(t, store.Insert(ctx, db, &Record{Migration: "2_b", Revision: 2}))
	require.NoError(t, store.Insert(ctx, db, &Record{Migration: "1_a", Module: "billing", Revision: 1}))

	applied, err := store.GetApplied(ctx, db, "")
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "1_a", applied[0].Migration)
	assert.Equal(t, "2_b", applied[1].Migration)
	assert.Less(t, applied[0].ID, applied[1].ID)
	assert.Equal(t, "", applied[0].Module)

	billing, err := store.GetApplied(ctx, db, "billing")
	require.NoError(t, err)
	require.Len(t, billing, 1)
	assert.Equal(t, "billing", billing[0].Module)

	last, err = store.GetLast(ctx, db, "")
	require.NoError(t, err)
	assert.Equal(t, "2_b", last.Migration)

	ok, err := store.Exists(ctx, db, "billing", "1_a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Exists(ctx, db, "billing", "2_b")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := store.GetAll(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Delete(ctx, db, "", "2_b"))
	err = store.Delete(ctx, db, "", "2_b")
	assert.ErrorIs(t, err, ErrMigrationNotLoaded)

	applied, err = store.GetApplied(ctx, db, "")
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

func TestRecordStore_UniquePerModule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewRecordStore(DefaultTable, nil)

	require.NoError(t, store.Insert(ctx, env.db(), &Record{Migration: "1_a", Module: "billing"}))
	err := store.Insert(ctx, env.db(), &Record{Migration: "1_a", Module: "billing"})
	assert.Error(t, err)

	// 默认模块同样受唯一索引约束
	require.NoError(t, store.Insert(ctx, env.db(), &Record{Migration: "1_a"}))
	err = store.Insert(ctx, env.db(), &Record{Migration: "1_a"})
	assert.Error(t, err)

	var modules []string
	require.NoError(t, env.db().Table(DefaultTable).Order("id").Pluck("module", &modules).Error)
	assert.Equal(t, []string{"billing", ""}, modules)
}

func TestRecordStore_CustomTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewRecordStore("app_migrations", zap.NewNop())

	require.NoError(t, store.EnsureTable(ctx, env.db()))
	assert.True(t, env.db().Migrator().HasTable("app_migrations"))

	require.NoError(t, store.Insert(ctx, env.db(), &Record{Migration: "1_a"}))
	applied, err := store.GetApplied(ctx, env.db(), "")
	require.NoError(t, err)
	assert.Len(t, applied, 1)

	other, err := NewRecordStore(DefaultTable, nil).GetApplied(ctx, env.db(), "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return mock, gormDB
}

func TestRecordStore_QueryFailures(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore(DefaultTable, zap.NewNop())

	t.Run("get last", func(t *testing.T) {
		mock, db := setupMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "schema_migrations" WHERE module = $1`)).
			WillReturnError(errors.New("connection reset"))

		_, err := store.GetLast(ctx, db, "billing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert", func(t *testing.T) {
		mock, db := setupMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "schema_migrations"`)).
			WillReturnError(errors.New("disk full"))

		err := store.Insert(ctx, db, &Record{Migration: "1_a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1_a")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exists", func(t *testing.T) {
		mock, db := setupMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "schema_migrations" WHERE module = $1 AND migration = $2`)).
			WithArgs("", "1_a").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		ok, err := store.Exists(ctx, db, "", "1_a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
