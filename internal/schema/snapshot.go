package schema

import (
	"slices"
	"sort"
	"strings"
)

// Snapshot is the structural model of a database schema at one point in time.
type Snapshot struct {
	Tables map[string]*Table
}

// Table describes one table.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Indexes    []Index
	// ForeignKeys and Checks are table constraints. SQLite reports foreign
	// keys and column-level checks without names.
	ForeignKeys []ForeignKey
	Checks      []Check
}

// Column describes one table column. Type holds the database-reported type
// (lower case, with length or precision when the driver exposes it).
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Default  *string
}

// Index describes a secondary index. Primary key indexes are not listed.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKey is a reference from Columns to RefColumns of RefTable.
// Empty RefColumns reference the primary key of RefTable. OnDelete and
// OnUpdate are upper case actions; NO ACTION is stored as "".
type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
	OnUpdate   string
}

// Check is a CHECK constraint. Expr is the condition without the
// surrounding CHECK ( ).
type Check struct {
	Name string
	Expr string
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Tables: make(map[string]*Table)}
}

// AddTable stores t, replacing any table with the same name.
func (s *Snapshot) AddTable(t *Table) {
	if s.Tables == nil {
		s.Tables = make(map[string]*Table)
	}
	s.Tables[t.Name] = t
}

// TableNames returns table names in ascending order.
func (s *Snapshot) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the named table or nil.
func (s *Snapshot) Table(name string) *Table {
	if s == nil {
		return nil
	}
	return s.Tables[name]
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Index returns the named index.
func (t *Table) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// sortedIndexes returns a copy of t.Indexes ordered by name.
func (t *Table) sortedIndexes() []Index {
	out := append([]Index(nil), t.Indexes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ForeignKey returns the foreign key with the same identity as fk.
func (t *Table) ForeignKey(key string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.key() == key {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Check returns the check with the given identity.
func (t *Table) Check(key string) (Check, bool) {
	for _, c := range t.Checks {
		if c.key() == key {
			return c, true
		}
	}
	return Check{}, false
}

// References returns the other tables t points at, ordered by name.
func (t *Table) References() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == t.Name || seen[fk.RefTable] {
			continue
		}
		seen[fk.RefTable] = true
		out = append(out, fk.RefTable)
	}
	sort.Strings(out)
	return out
}

func (t *Table) sortedForeignKeys() []ForeignKey {
	out := append([]ForeignKey(nil), t.ForeignKeys...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

func (t *Table) sortedChecks() []Check {
	out := append([]Check(nil), t.Checks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// constraintsEqual reports whether both tables carry the same foreign keys
// and checks.
func (t *Table) constraintsEqual(o *Table) bool {
	if len(t.ForeignKeys) != len(o.ForeignKeys) || len(t.Checks) != len(o.Checks) {
		return false
	}
	for _, fk := range t.ForeignKeys {
		other, ok := o.ForeignKey(fk.key())
		if !ok || !other.Equal(fk) {
			return false
		}
	}
	for _, c := range t.Checks {
		if _, ok := o.Check(c.key()); !ok {
			return false
		}
	}
	return true
}

// key identifies a foreign key: its name, or its columns and target when
// the database keeps no name.
func (fk ForeignKey) key() string {
	if fk.Name != "" {
		return fk.Name
	}
	return strings.Join(fk.Columns, ",") + "->" + fk.RefTable + "(" + strings.Join(fk.RefColumns, ",") + ")"
}

// Equal reports whether two foreign keys are structurally the same.
func (fk ForeignKey) Equal(o ForeignKey) bool {
	return fk.Name == o.Name &&
		fk.RefTable == o.RefTable &&
		fk.OnDelete == o.OnDelete &&
		fk.OnUpdate == o.OnUpdate &&
		slices.Equal(fk.Columns, o.Columns) &&
		slices.Equal(fk.RefColumns, o.RefColumns)
}

// key identifies a check by name, or by expression when unnamed. Two checks
// with the same key are equal.
func (c Check) key() string {
	if c.Name != "" {
		return c.Name + ":" + c.Expr
	}
	return c.Expr
}

// Equal reports whether two columns are structurally the same.
func (c Column) Equal(o Column) bool {
	if c.Name != o.Name || c.Nullable != o.Nullable {
		return false
	}
	if !strings.EqualFold(c.Type, o.Type) {
		return false
	}
	return defaultsEqual(c.Default, o.Default)
}

// Equal reports whether two indexes are structurally the same.
func (i Index) Equal(o Index) bool {
	return i.Name == o.Name && i.Unique == o.Unique && slices.Equal(i.Columns, o.Columns)
}

func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
