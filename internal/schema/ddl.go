package schema

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect names understood by the DDL renderer.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// Dialect renders DDL for one database flavour.
type Dialect struct {
	Name  string
	quote func(string) string
}

// NewDialect returns a dialect with its default identifier quoting.
func NewDialect(name string) Dialect {
	switch name {
	case DialectMySQL:
		return Dialect{Name: name, quote: func(s string) string {
			return "`" + strings.ReplaceAll(s, "`", "``") + "`"
		}}
	default:
		return Dialect{Name: name, quote: func(s string) string {
			return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
		}}
	}
}

// DialectOf derives the dialect from an open connection, quoting identifiers
// the way its gorm dialector does.
func DialectOf(db *gorm.DB) Dialect {
	name := db.Dialector.Name()
	if name == "sqlite3" {
		name = DialectSQLite
	}
	return Dialect{Name: name, quote: func(s string) string {
		var b strings.Builder
		db.Dialector.QuoteTo(&b, s)
		return b.String()
	}}
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d.quote == nil {
		return NewDialect(d.Name).Quote(ident)
	}
	return d.quote(ident)
}

func (d Dialect) quoteList(idents []string) string {
	out := make([]string, len(idents))
	for i, s := range idents {
		out[i] = d.Quote(s)
	}
	return strings.Join(out, ", ")
}

func (d Dialect) columnDef(c Column) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.Type)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String()
}

func (d Dialect) foreignKeyDef(fk ForeignKey) string {
	var b strings.Builder
	if fk.Name != "" {
		b.WriteString("CONSTRAINT ")
		b.WriteString(d.Quote(fk.Name))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s", d.quoteList(fk.Columns), d.Quote(fk.RefTable))
	if len(fk.RefColumns) > 0 {
		fmt.Fprintf(&b, " (%s)", d.quoteList(fk.RefColumns))
	}
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE ")
		b.WriteString(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(fk.OnUpdate)
	}
	return b.String()
}

func (d Dialect) checkDef(c Check) string {
	if c.Name != "" {
		return fmt.Sprintf("CONSTRAINT %s CHECK (%s)", d.Quote(c.Name), c.Expr)
	}
	return fmt.Sprintf("CHECK (%s)", c.Expr)
}

// CreateTable renders CREATE TABLE for t with its constraints but without
// its secondary indexes.
func (d Dialect) CreateTable(t *Table) string {
	parts := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+len(t.Checks)+1)
	for _, c := range t.Columns {
		parts = append(parts, "  "+d.columnDef(c))
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("  PRIMARY KEY (%s)", d.quoteList(t.PrimaryKey)))
	}
	for _, fk := range t.sortedForeignKeys() {
		parts = append(parts, "  "+d.foreignKeyDef(fk))
	}
	for _, c := range t.sortedChecks() {
		parts = append(parts, "  "+d.checkDef(c))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.Quote(t.Name), strings.Join(parts, ",\n"))
}

// AddForeignKey renders ALTER TABLE ... ADD for a foreign key.
func (d Dialect) AddForeignKey(table string, fk ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), d.foreignKeyDef(fk))
}

// DropForeignKey renders the statement removing a named foreign key.
func (d Dialect) DropForeignKey(table, name string) string {
	if d.Name == DialectMySQL {
		return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.Quote(table), d.Quote(name))
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Quote(table), d.Quote(name))
}

// AddCheck renders ALTER TABLE ... ADD for a check constraint.
func (d Dialect) AddCheck(table string, c Check) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), d.checkDef(c))
}

// DropCheck renders the statement removing a named check constraint.
func (d Dialect) DropCheck(table, name string) string {
	if d.Name == DialectMySQL {
		return fmt.Sprintf("ALTER TABLE %s DROP CHECK %s", d.Quote(table), d.Quote(name))
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Quote(table), d.Quote(name))
}

// rebuildPrefix names the scratch table of a SQLite table rebuild.
const rebuildPrefix = "_migrateflow_new_"

// RebuildTable renders the SQLite table rebuild turning from into to. SQLite
// cannot add or drop constraints on an existing table, so the new shape is
// created under a scratch name, shared columns are copied, the old table is
// dropped and the scratch table takes its name. Indexes of to are recreated.
func (d Dialect) RebuildTable(from, to *Table) []string {
	scratch := *to
	scratch.Name = rebuildPrefix + to.Name

	var shared []string
	for _, c := range to.Columns {
		if _, ok := from.Column(c.Name); ok {
			shared = append(shared, c.Name)
		}
	}

	stmts := []string{d.CreateTable(&scratch)}
	if len(shared) > 0 {
		cols := d.quoteList(shared)
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.Quote(scratch.Name), cols, cols, d.Quote(from.Name)))
	}
	stmts = append(stmts,
		d.DropTable(from.Name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(scratch.Name), d.Quote(to.Name)),
	)
	for _, idx := range to.sortedIndexes() {
		stmts = append(stmts, d.CreateIndex(to.Name, idx))
	}
	return stmts
}

// resolvesLazily reports whether a foreign key may name a table created
// later in the same script.
func (d Dialect) resolvesLazily() bool {
	return d.Name == DialectSQLite
}

// DropTable renders DROP TABLE.
func (d Dialect) DropTable(name string) string {
	return fmt.Sprintf("DROP TABLE %s", d.Quote(name))
}

// AddColumn renders ALTER TABLE ... ADD COLUMN.
func (d Dialect) AddColumn(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), d.columnDef(c))
}

// DropColumn renders ALTER TABLE ... DROP COLUMN.
func (d Dialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(column))
}

// AlterColumn renders the statements turning column from into to.
// SQLite cannot alter a column in place, so the column is dropped and re-added.
func (d Dialect) AlterColumn(table string, from, to Column) []string {
	qt, qc := d.Quote(table), d.Quote(to.Name)
	switch d.Name {
	case DialectMySQL:
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", qt, d.columnDef(to))}
	case DialectSQLite:
		return []string{d.DropColumn(table, from.Name), d.AddColumn(table, to)}
	default:
		var stmts []string
		if !strings.EqualFold(from.Type, to.Type) {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", qt, qc, to.Type))
		}
		if from.Nullable != to.Nullable {
			if to.Nullable {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", qt, qc))
			} else {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", qt, qc))
			}
		}
		if !defaultsEqual(from.Default, to.Default) {
			if to.Default == nil {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", qt, qc))
			} else {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", qt, qc, *to.Default))
			}
		}
		return stmts
	}
}

// CreateIndex renders CREATE [UNIQUE] INDEX.
func (d Dialect) CreateIndex(table string, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.Quote(idx.Name), d.Quote(table), d.quoteList(idx.Columns))
}

// DropIndex renders DROP INDEX.
func (d Dialect) DropIndex(table, name string) string {
	if d.Name == DialectMySQL {
		return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(name), d.Quote(table))
	}
	return fmt.Sprintf("DROP INDEX %s", d.Quote(name))
}
