package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Introspector reads the live schema of a database through gorm's Migrator.
type Introspector struct {
	logger *zap.Logger
}

// NewIntrospector creates an Introspector.
func NewIntrospector(logger *zap.Logger) *Introspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Introspector{logger: logger.With(zap.String("component", "schema_introspector"))}
}

// Snapshot reads every user table with its columns and secondary indexes.
func (i *Introspector) Snapshot(ctx context.Context, db *gorm.DB) (*Snapshot, error) {
	db = db.WithContext(ctx)
	m := db.Migrator()

	tables, err := m.GetTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	sort.Strings(tables)

	snap := NewSnapshot()
	for _, name := range tables {
		if isSystemTable(name) {
			continue
		}
		t, err := i.readTable(db, name)
		if err != nil {
			return nil, err
		}
		snap.AddTable(t)
	}

	i.logger.Debug("schema snapshot taken", zap.Int("tables", len(snap.Tables)))
	return snap, nil
}

func (i *Introspector) readTable(db *gorm.DB, name string) (*Table, error) {
	m := db.Migrator()
	columnTypes, err := m.ColumnTypes(name)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", name, err)
	}

	t := &Table{Name: name}
	for _, ct := range columnTypes {
		col := Column{Name: ct.Name(), Nullable: true}
		if typ, ok := ct.ColumnType(); ok && typ != "" {
			col.Type = strings.ToLower(typ)
		} else {
			col.Type = strings.ToLower(ct.DatabaseTypeName())
		}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if def, ok := ct.DefaultValue(); ok && def != "" {
			d := def
			col.Default = &d
		}
		if pk, ok := ct.PrimaryKey(); ok && pk {
			t.PrimaryKey = append(t.PrimaryKey, col.Name)
		}
		t.Columns = append(t.Columns, col)
	}

	indexes, err := i.readIndexes(db, name)
	if err != nil {
		return nil, err
	}
	t.Indexes = indexes

	if t.ForeignKeys, err = i.readForeignKeys(db, name); err != nil {
		return nil, err
	}
	if t.Checks, err = i.readChecks(db, name); err != nil {
		return nil, err
	}
	if db.Dialector.Name() == DialectMySQL {
		t.Indexes = withoutForeignKeyIndexes(t.Indexes, t.ForeignKeys)
	}
	return t, nil
}

func (i *Introspector) readIndexes(db *gorm.DB, table string) ([]Index, error) {
	// glebarez GetIndexes runs through DB.Debug() and would print SQL.
	if isSQLite(db) {
		return readSQLiteIndexes(db, table)
	}
	gormIndexes, err := db.Migrator().GetIndexes(table)
	if err != nil {
		i.logger.Warn("index introspection unsupported, indexes ignored",
			zap.String("table", table), zap.Error(err))
		return nil, nil
	}

	var out []Index
	for _, gi := range gormIndexes {
		if pk, ok := gi.PrimaryKey(); ok && pk {
			continue
		}
		if strings.HasPrefix(gi.Name(), "sqlite_autoindex_") {
			continue
		}
		unique, _ := gi.Unique()
		out = append(out, Index{Name: gi.Name(), Columns: gi.Columns(), Unique: unique})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

type sqliteIndexRow struct {
	Name   string
	Unique bool
	Origin string
}

func readSQLiteIndexes(db *gorm.DB, table string) ([]Index, error) {
	var rows []sqliteIndexRow
	if err := db.Raw(`SELECT name, "unique" AS "unique", origin FROM pragma_index_list(?)`, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("read indexes of %s: %w", table, err)
	}

	var out []Index
	for _, r := range rows {
		if r.Origin == "pk" || strings.HasPrefix(r.Name, "sqlite_autoindex_") {
			continue
		}
		var cols []string
		if err := db.Raw(`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, r.Name).Scan(&cols).Error; err != nil {
			return nil, fmt.Errorf("read columns of index %s: %w", r.Name, err)
		}
		out = append(out, Index{Name: r.Name, Columns: cols, Unique: r.Unique})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func isSQLite(db *gorm.DB) bool {
	name := db.Dialector.Name()
	return name == "sqlite" || name == "sqlite3"
}

func isSystemTable(name string) bool {
	return strings.HasPrefix(name, "sqlite_")
}
