package schema

// Result holds the DDL that moves a database from one snapshot to another
// (Up) and back again (Down). Down is the inverse of Up in reverse order.
type Result struct {
	Up   []string
	Down []string
}

// Empty reports whether the snapshots were structurally identical.
func (r Result) Empty() bool {
	return len(r.Up) == 0 && len(r.Down) == 0
}

// change pairs the statements of one structural step with their inverse.
type change struct {
	up   []string
	down []string
}

// Diff compares two snapshots and returns the statements turning from into to.
//
// Up statements run in this order so that every statement only references
// objects that already exist: constraint drops, index drops, table creates,
// column adds, column alters, column drops, table drops, index creates,
// constraint adds. Created tables follow the tables they reference and
// dropped tables go before the tables they reference. On SQLite a table
// whose constraints changed is rebuilt instead of altered.
func Diff(from, to *Snapshot, filter Filter, d Dialect) Result {
	if from == nil {
		from = NewSnapshot()
	}
	if to == nil {
		to = NewSnapshot()
	}

	var (
		dropConstraints []change
		dropIndexes     []change
		createTables    []change
		addColumns      []change
		alterColumns    []change
		dropColumns     []change
		dropTables      []change
		createIndexes   []change
		addConstraints  []change
	)

	var created, dropped []*Table
	for _, name := range to.TableNames() {
		if !filter.Includes(name) {
			continue
		}
		newT := to.Table(name)
		oldT := from.Table(name)
		if oldT == nil {
			created = append(created, newT)
			continue
		}

		if d.Name == DialectSQLite && !oldT.constraintsEqual(newT) {
			alterColumns = append(alterColumns, change{
				up:   d.RebuildTable(oldT, newT),
				down: d.RebuildTable(newT, oldT),
			})
			continue
		}

		for _, col := range newT.Columns {
			oldCol, ok := oldT.Column(col.Name)
			if !ok {
				addColumns = append(addColumns, change{
					up:   []string{d.AddColumn(name, col)},
					down: []string{d.DropColumn(name, col.Name)},
				})
				continue
			}
			if !oldCol.Equal(col) {
				alterColumns = append(alterColumns, change{
					up:   d.AlterColumn(name, oldCol, col),
					down: d.AlterColumn(name, col, oldCol),
				})
			}
		}
		for _, col := range oldT.Columns {
			if _, ok := newT.Column(col.Name); !ok {
				dropColumns = append(dropColumns, change{
					up:   []string{d.DropColumn(name, col.Name)},
					down: []string{d.AddColumn(name, col)},
				})
			}
		}

		for _, idx := range oldT.sortedIndexes() {
			newIdx, ok := newT.Index(idx.Name)
			if ok && newIdx.Equal(idx) {
				continue
			}
			dropIndexes = append(dropIndexes, change{
				up:   []string{d.DropIndex(name, idx.Name)},
				down: []string{d.CreateIndex(name, idx)},
			})
		}
		for _, idx := range newT.sortedIndexes() {
			oldIdx, ok := oldT.Index(idx.Name)
			if ok && oldIdx.Equal(idx) {
				continue
			}
			createIndexes = append(createIndexes, change{
				up:   []string{d.CreateIndex(name, idx)},
				down: []string{d.DropIndex(name, idx.Name)},
			})
		}

		for _, fk := range oldT.sortedForeignKeys() {
			if newFK, ok := newT.ForeignKey(fk.key()); ok && newFK.Equal(fk) {
				continue
			}
			dropConstraints = append(dropConstraints, change{
				up:   []string{d.DropForeignKey(name, fk.Name)},
				down: []string{d.AddForeignKey(name, fk)},
			})
		}
		for _, c := range oldT.sortedChecks() {
			if _, ok := newT.Check(c.key()); ok {
				continue
			}
			dropConstraints = append(dropConstraints, change{
				up:   []string{d.DropCheck(name, c.Name)},
				down: []string{d.AddCheck(name, c)},
			})
		}
		for _, fk := range newT.sortedForeignKeys() {
			if oldFK, ok := oldT.ForeignKey(fk.key()); ok && oldFK.Equal(fk) {
				continue
			}
			addConstraints = append(addConstraints, change{
				up:   []string{d.AddForeignKey(name, fk)},
				down: []string{d.DropForeignKey(name, fk.Name)},
			})
		}
		for _, c := range newT.sortedChecks() {
			if _, ok := oldT.Check(c.key()); ok {
				continue
			}
			addConstraints = append(addConstraints, change{
				up:   []string{d.AddCheck(name, c)},
				down: []string{d.DropCheck(name, c.Name)},
			})
		}
	}

	for _, name := range from.TableNames() {
		if filter.Includes(name) && to.Table(name) == nil {
			dropped = append(dropped, from.Table(name))
		}
	}

	for _, p := range d.creationPlan(created) {
		createTables = append(createTables, change{
			up:   p.create(d),
			down: []string{d.DropTable(p.table.Name)},
		})
		for _, fk := range p.deferred {
			addConstraints = append(addConstraints, change{
				up:   []string{d.AddForeignKey(p.table.Name, fk)},
				down: []string{d.DropForeignKey(p.table.Name, fk.Name)},
			})
		}
	}

	plan := d.creationPlan(dropped)
	for i := len(plan) - 1; i >= 0; i-- {
		p := plan[i]
		dropTables = append(dropTables, change{
			up:   []string{d.DropTable(p.table.Name)},
			down: p.create(d),
		})
	}
	for _, p := range plan {
		for _, fk := range p.deferred {
			dropConstraints = append(dropConstraints, change{
				up:   []string{d.DropForeignKey(p.table.Name, fk.Name)},
				down: []string{d.AddForeignKey(p.table.Name, fk)},
			})
		}
	}

	var changes []change
	for _, group := range [][]change{
		dropConstraints, dropIndexes, createTables, addColumns, alterColumns,
		dropColumns, dropTables, createIndexes, addConstraints,
	} {
		changes = append(changes, group...)
	}

	res := Result{Up: []string{}, Down: []string{}}
	for _, c := range changes {
		res.Up = append(res.Up, c.up...)
	}
	for i := len(changes) - 1; i >= 0; i-- {
		res.Down = append(res.Down, changes[i].down...)
	}
	return res
}

// plannedTable is one table of a creation plan. deferred holds the foreign
// keys left out of CREATE TABLE because their target is created later.
type plannedTable struct {
	table    *Table
	deferred []ForeignKey
}

// create renders CREATE TABLE without the deferred keys, then the indexes.
func (p plannedTable) create(d Dialect) []string {
	t := p.table
	if len(p.deferred) > 0 {
		stripped := *t
		stripped.ForeignKeys = nil
		for _, fk := range t.ForeignKeys {
			if !containsKey(p.deferred, fk.key()) {
				stripped.ForeignKeys = append(stripped.ForeignKeys, fk)
			}
		}
		t = &stripped
	}
	stmts := []string{d.CreateTable(t)}
	for _, idx := range t.sortedIndexes() {
		stmts = append(stmts, d.CreateIndex(t.Name, idx))
	}
	return stmts
}

// creationPlan orders tables so that every table follows the tables it
// references. Tables in a reference cycle fall back to name order; their
// forward references are deferred unless the dialect resolves them lazily.
func (d Dialect) creationPlan(tables []*Table) []plannedTable {
	pending := make(map[string]bool, len(tables))
	for _, t := range tables {
		pending[t.Name] = true
	}

	var order []*Table
	remaining := tables
	for len(remaining) > 0 {
		var next []*Table
		for _, t := range remaining {
			if waitsOn(t, pending) {
				next = append(next, t)
				continue
			}
			order = append(order, t)
			delete(pending, t.Name)
		}
		if len(next) == len(remaining) {
			order = append(order, next[0])
			delete(pending, next[0].Name)
			next = next[1:]
		}
		remaining = next
	}

	plan := make([]plannedTable, 0, len(order))
	later := make(map[string]bool, len(order))
	for _, t := range order {
		later[t.Name] = true
	}
	for _, t := range order {
		delete(later, t.Name)
		p := plannedTable{table: t}
		if !d.resolvesLazily() {
			for _, fk := range t.sortedForeignKeys() {
				if later[fk.RefTable] {
					p.deferred = append(p.deferred, fk)
				}
			}
		}
		plan = append(plan, p)
	}
	return plan
}

func waitsOn(t *Table, pending map[string]bool) bool {
	for _, ref := range t.References() {
		if pending[ref] {
			return true
		}
	}
	return false
}

func containsKey(fks []ForeignKey, key string) bool {
	for _, fk := range fks {
		if fk.key() == key {
			return true
		}
	}
	return false
}
