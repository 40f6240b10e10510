package schema

import (
	"bytes"
	"context"
	"log"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schema.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func execAll(t *testing.T, db *gorm.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		require.NoError(t, db.Exec(s).Error, s)
	}
}

func TestIntrospector_Snapshot(t *testing.T) {
	db := openSQLite(t)
	execAll(t, db,
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, email TEXT)`,
		`CREATE UNIQUE INDEX idx_users_email ON users (email)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL, title TEXT)`,
	)

	snap, err := NewIntrospector(zaptest.NewLogger(t)).Snapshot(context.Background(), db)
	require.NoError(t, err)

	// sqlite_sequence 等系统表不出现
	assert.Equal(t, []string{"posts", "users"}, snap.TableNames())

	users := snap.Table("users")
	require.NotNil(t, users)
	require.Len(t, users.Columns, 3)
	assert.Equal(t, "id", users.Columns[0].Name)
	assert.Equal(t, "name", users.Columns[1].Name)
	assert.False(t, users.Columns[1].Nullable)
	assert.True(t, users.Columns[2].Nullable)
	assert.Equal(t, []string{"id"}, users.PrimaryKey)

	idx, ok := users.Index("idx_users_email")
	require.True(t, ok)
	assert.True(t, idx.Unique)
	assert.Equal(t, []string{"email"}, idx.Columns)
}

func TestIntrospector_SnapshotOfSameSchemaHasNoDiff(t *testing.T) {
	ddl := []string{
		`CREATE TABLE accounts (id INTEGER PRIMARY KEY, balance INTEGER NOT NULL DEFAULT 0)`,
		`CREATE INDEX idx_accounts_balance ON accounts (balance)`,
	}
	a := openSQLite(t)
	b := openSQLite(t)
	execAll(t, a, ddl...)
	execAll(t, b, ddl...)

	in := NewIntrospector(nil)
	sa, err := in.Snapshot(context.Background(), a)
	require.NoError(t, err)
	sb, err := in.Snapshot(context.Background(), b)
	require.NoError(t, err)

	assert.True(t, Diff(sa, sb, Filter{}, DialectOf(a)).Empty())
}

func TestIntrospector_DetectsAddedColumn(t *testing.T) {
	base := openSQLite(t)
	live := openSQLite(t)
	execAll(t, base, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`)
	execAll(t, live,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
		`ALTER TABLE users ADD COLUMN age INTEGER`,
	)

	in := NewIntrospector(nil)
	sBase, err := in.Snapshot(context.Background(), base)
	require.NoError(t, err)
	sLive, err := in.Snapshot(context.Background(), live)
	require.NoError(t, err)

	res := Diff(sBase, sLive, Filter{}, DialectOf(live))
	require.Len(t, res.Up, 1)
	assert.Contains(t, res.Up[0], "ADD COLUMN")
	assert.Contains(t, res.Up[0], "age")
	require.Len(t, res.Down, 1)
	assert.Contains(t, res.Down[0], "DROP COLUMN")

	// 生成的语句可以直接在基准库上执行
	execAll(t, base, res.Up...)
	after, err := in.Snapshot(context.Background(), base)
	require.NoError(t, err)
	assert.True(t, Diff(after, sLive, Filter{}, DialectOf(live)).Empty())
}

func TestReadSQLiteIndexes(t *testing.T) {
	db := openSQLite(t)
	execAll(t, db,
		`CREATE TABLE t (a TEXT UNIQUE, b TEXT, c TEXT)`,
		`CREATE INDEX idx_t_bc ON t (b, c)`,
	)

	idx, err := readSQLiteIndexes(db, "t")
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.Equal(t, Index{Name: "idx_t_bc", Columns: []string{"b", "c"}}, idx[0])
}

func TestDialectOf(t *testing.T) {
	db := openSQLite(t)
	d := DialectOf(db)
	assert.Equal(t, DialectSQLite, d.Name)
	assert.Equal(t, "`users`", d.Quote("users"))
}

func TestIntrospector_ReadsForeignKeysAndChecks(t *testing.T) {
	db := openSQLite(t)
	execAll(t, db,
		`CREATE TABLE parent (id INTEGER PRIMARY KEY, code TEXT)`,
		`CREATE TABLE child (id INTEGER PRIMARY KEY, `+
			`parent_id INTEGER NOT NULL REFERENCES parent(id) ON DELETE CASCADE, `+
			`code TEXT, `+
			`CONSTRAINT chk_code CHECK (length(code) < 10), `+
			`FOREIGN KEY (code) REFERENCES parent (code) ON UPDATE SET NULL, `+
			`CHECK (id > 0))`,
	)

	snap, err := NewIntrospector(nil).Snapshot(context.Background(), db)
	require.NoError(t, err)

	child := snap.Table("child")
	require.NotNil(t, child)
	assert.ElementsMatch(t, []ForeignKey{
		{Columns: []string{"parent_id"}, RefTable: "parent", RefColumns: []string{"id"}, OnDelete: "CASCADE"},
		{Columns: []string{"code"}, RefTable: "parent", RefColumns: []string{"code"}, OnUpdate: "SET NULL"},
	}, child.ForeignKeys)
	assert.ElementsMatch(t, []Check{
		{Name: "chk_code", Expr: "length(code) < 10"},
		{Expr: "id > 0"},
	}, child.Checks)
	assert.Equal(t, []string{"parent"}, child.References())
	assert.Empty(t, snap.Table("parent").ForeignKeys)
}

func TestIntrospector_ReferencingTablesSurviveRoundTrip(t *testing.T) {
	live := openSQLite(t)
	execAll(t, live,
		`CREATE TABLE parent (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parent(id) ON DELETE CASCADE, CHECK (id > 0))`,
	)

	in := NewIntrospector(nil)
	sLive, err := in.Snapshot(context.Background(), live)
	require.NoError(t, err)

	res := Diff(nil, sLive, Filter{}, DialectOf(live))
	fresh := openSQLite(t)
	require.NoError(t, fresh.Exec("PRAGMA foreign_keys = ON").Error)
	execAll(t, fresh, res.Up...)

	sFresh, err := in.Snapshot(context.Background(), fresh)
	require.NoError(t, err)
	assert.True(t, Diff(sFresh, sLive, Filter{}, DialectOf(live)).Empty())

	// 约束在新库上生效
	execAll(t, fresh, `INSERT INTO parent (id) VALUES (1)`, `INSERT INTO child (id, parent_id) VALUES (1, 1)`)
	assert.Error(t, fresh.Exec(`INSERT INTO child (id, parent_id) VALUES (0, 1)`).Error)
	assert.Error(t, fresh.Exec(`INSERT INTO child (id, parent_id) VALUES (2, 9)`).Error)

	execAll(t, fresh, res.Down...)
	empty, err := in.Snapshot(context.Background(), fresh)
	require.NoError(t, err)
	assert.Empty(t, empty.TableNames())
}

func TestIntrospector_SQLiteRebuildAppliesConstraintChange(t *testing.T) {
	db := openSQLite(t)
	execAll(t, db,
		`CREATE TABLE items (id INTEGER PRIMARY KEY, qty INTEGER NOT NULL)`,
		`CREATE INDEX idx_items_qty ON items (qty)`,
		`INSERT INTO items (id, qty) VALUES (1, 5)`,
	)
	in := NewIntrospector(nil)
	before, err := in.Snapshot(context.Background(), db)
	require.NoError(t, err)

	target := *before.Table("items")
	target.Checks = []Check{{Expr: "qty >= 0"}}
	after := snapshotOf(&target)

	res := Diff(before, after, Filter{}, DialectOf(db))
	execAll(t, db, res.Up...)

	got, err := in.Snapshot(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, Diff(got, after, Filter{}, DialectOf(db)).Empty())

	var qty int
	require.NoError(t, db.Raw(`SELECT qty FROM items WHERE id = 1`).Scan(&qty).Error)
	assert.Equal(t, 5, qty)
	assert.Error(t, db.Exec(`INSERT INTO items (id, qty) VALUES (2, -1)`).Error)
}

func TestParseChecks(t *testing.T) {
	tests := []struct {
		name string
		ddl  string
		want []Check
	}{
		{"none", `CREATE TABLE t (a INTEGER)`, nil},
		{"column level", `CREATE TABLE t (a INTEGER CHECK (a > 0), b TEXT)`, []Check{{Expr: "a > 0"}}},
		{"named", `CREATE TABLE t (a INTEGER, CONSTRAINT "pos a" CHECK ((a) > 0))`, []Check{{Name: "pos a", Expr: "(a) > 0"}}},
		{"quoted parens", `CREATE TABLE t (a TEXT, CHECK (a <> ')'))`, []Check{{Expr: "a <> ')'"}}},
		{"name not reused", `CREATE TABLE t (a INTEGER CONSTRAINT u UNIQUE CHECK (a > 1))`, []Check{{Expr: "a > 1"}}},
		{"check column name", `CREATE TABLE t ("check" INTEGER, CHECK ("check" < 3))`, []Check{{Expr: `"check" < 3`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseChecks(tt.ddl))
		})
	}
}

func TestGroupForeignKeys(t *testing.T) {
	id, code := "id", "code"
	got := groupForeignKeys([]foreignKeyRow{
		{Name: "fk_pair", FromColumn: "a", RefTable: "p", ToColumn: &id, OnDelete: "NO ACTION"},
		{Name: "fk_pair", FromColumn: "b", RefTable: "p", ToColumn: &code, OnDelete: "NO ACTION"},
		{ID: 3, FromColumn: "c", RefTable: "q", OnDelete: "cascade"},
	})
	assert.Equal(t, []ForeignKey{
		{Columns: []string{"c"}, RefTable: "q", OnDelete: "CASCADE"},
		{Name: "fk_pair", Columns: []string{"a", "b"}, RefTable: "p", RefColumns: []string{"id", "code"}},
	}, got)
}

func TestWithoutForeignKeyIndexes(t *testing.T) {
	idx := []Index{{Name: "fk_child_parent"}, {Name: "idx_child_code"}}
	got := withoutForeignKeyIndexes(idx, []ForeignKey{{Name: "fk_child_parent"}})
	assert.Equal(t, []Index{{Name: "idx_child_code"}}, got)
}

func TestIntrospector_SQLiteSnapshotPrintsNoSQL(t *testing.T) {
	var buf bytes.Buffer
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "quiet.db")), &gorm.Config{
		Logger: gormlogger.New(log.New(&buf, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
	})
	require.NoError(t, err)
	execAll(t, db,
		`CREATE TABLE t (a TEXT, b TEXT)`,
		`CREATE INDEX idx_t_b ON t (b)`,
	)

	snap, err := NewIntrospector(nil).Snapshot(context.Background(), db)
	require.NoError(t, err)
	_, ok := snap.Table("t").Index("idx_t_b")
	assert.True(t, ok)
	assert.Empty(t, buf.String())
}
