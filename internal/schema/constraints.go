package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type foreignKeyRow struct {
	Name       string
	ID         int
	FromColumn string
	RefTable   string
	ToColumn   *string
	OnUpdate   string
	OnDelete   string
}

const (
	postgresForeignKeysQuery = `SELECT kcu.constraint_name AS name, kcu.column_name AS from_column,
       ref.table_name AS ref_table, ref.column_name AS to_column,
       rc.update_rule AS on_update, rc.delete_rule AS on_delete
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = rc.constraint_schema AND kcu.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage ref
  ON ref.constraint_schema = rc.unique_constraint_schema AND ref.constraint_name = rc.unique_constraint_name
 AND ref.ordinal_position = kcu.position_in_unique_constraint
WHERE kcu.table_schema = CURRENT_SCHEMA() AND kcu.table_name = ?
ORDER BY kcu.constraint_name, kcu.ordinal_position`

	mysqlForeignKeysQuery = `SELECT kcu.CONSTRAINT_NAME AS name, kcu.COLUMN_NAME AS from_column,
       kcu.REFERENCED_TABLE_NAME AS ref_table, kcu.REFERENCED_COLUMN_NAME AS to_column,
       rc.UPDATE_RULE AS on_update, rc.DELETE_RULE AS on_delete
FROM information_schema.KEY_COLUMN_USAGE kcu
JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
  ON rc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
WHERE kcu.TABLE_SCHEMA = DATABASE() AND kcu.TABLE_NAME = ? AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

	sqliteForeignKeysQuery = `SELECT id, "from" AS from_column, "table" AS ref_table, "to" AS to_column,
       on_update, on_delete
FROM pragma_foreign_key_list(?)
ORDER BY id, seq`

	postgresChecksQuery = `SELECT con.conname AS name, pg_get_constraintdef(con.oid) AS definition
FROM pg_constraint con
JOIN pg_class rel ON rel.oid = con.conrelid
JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
WHERE con.contype = 'c' AND nsp.nspname = CURRENT_SCHEMA() AND rel.relname = ?
ORDER BY con.conname`

	mysqlChecksQuery = `SELECT cc.CONSTRAINT_NAME AS name, cc.CHECK_CLAUSE AS definition
FROM information_schema.CHECK_CONSTRAINTS cc
JOIN information_schema.TABLE_CONSTRAINTS tc
  ON tc.CONSTRAINT_SCHEMA = cc.CONSTRAINT_SCHEMA AND tc.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
WHERE tc.TABLE_SCHEMA = DATABASE() AND tc.TABLE_NAME = ? AND tc.CONSTRAINT_TYPE = 'CHECK'
ORDER BY cc.CONSTRAINT_NAME`
)

func (i *Introspector) readForeignKeys(db *gorm.DB, table string) ([]ForeignKey, error) {
	var query string
	switch db.Dialector.Name() {
	case DialectPostgres:
		query = postgresForeignKeysQuery
	case DialectMySQL:
		query = mysqlForeignKeysQuery
	case DialectSQLite, "sqlite3":
		query = sqliteForeignKeysQuery
	default:
		return nil, nil
	}

	var rows []foreignKeyRow
	if err := db.Raw(query, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("read foreign keys of %s: %w", table, err)
	}
	return groupForeignKeys(rows), nil
}

// groupForeignKeys folds one row per column into one ForeignKey per
// constraint. SQLite rows carry no name and are grouped by id.
func groupForeignKeys(rows []foreignKeyRow) []ForeignKey {
	var out []ForeignKey
	var last string
	for _, r := range rows {
		group := r.Name
		if group == "" {
			group = fmt.Sprintf("#%d", r.ID)
		}
		if len(out) == 0 || group != last {
			out = append(out, ForeignKey{
				Name:     r.Name,
				RefTable: r.RefTable,
				OnDelete: normalizeAction(r.OnDelete),
				OnUpdate: normalizeAction(r.OnUpdate),
			})
			last = group
		}
		fk := &out[len(out)-1]
		fk.Columns = append(fk.Columns, r.FromColumn)
		if r.ToColumn != nil && *r.ToColumn != "" {
			fk.RefColumns = append(fk.RefColumns, *r.ToColumn)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].key() < out[b].key() })
	return out
}

func normalizeAction(action string) string {
	action = strings.ToUpper(strings.TrimSpace(action))
	if action == "NO ACTION" {
		return ""
	}
	return action
}

type checkRow struct {
	Name       string
	Definition string
}

func (i *Introspector) readChecks(db *gorm.DB, table string) ([]Check, error) {
	var query string
	switch db.Dialector.Name() {
	case DialectPostgres:
		query = postgresChecksQuery
	case DialectMySQL:
		query = mysqlChecksQuery
	case DialectSQLite, "sqlite3":
		var ddl string
		if err := db.Raw(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl).Error; err != nil {
			return nil, fmt.Errorf("read definition of %s: %w", table, err)
		}
		return parseChecks(ddl), nil
	default:
		return nil, nil
	}

	var rows []checkRow
	if err := db.Raw(query, table).Scan(&rows).Error; err != nil {
		// MySQL before 8.0.16 has no CHECK_CONSTRAINTS view.
		i.logger.Warn("check constraint introspection unsupported, checks ignored",
			zap.String("table", table), zap.Error(err))
		return nil, nil
	}

	out := make([]Check, 0, len(rows))
	for _, r := range rows {
		expr := strings.TrimSpace(r.Definition)
		if rest, ok := cutKeyword(expr, "CHECK"); ok {
			expr = strings.TrimSpace(rest)
		}
		out = append(out, Check{Name: r.Name, Expr: unwrapParens(expr)})
	}
	return out, nil
}

// parseChecks extracts CHECK constraints from a SQLite CREATE TABLE
// statement. Column-level checks are returned like table-level ones.
func parseChecks(ddl string) []Check {
	open := strings.IndexByte(ddl, '(')
	if open < 0 {
		return nil
	}

	var (
		out     []Check
		name    string
		expectN bool
	)
	for pos := open + 1; pos < len(ddl); {
		c := ddl[pos]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			end := skipQuoted(ddl, pos)
			if expectN {
				name = unquoteIdent(ddl[pos:end])
				expectN = false
			}
			pos = end
		case c == ',':
			name = ""
			pos++
		case isIdentByte(c):
			end := pos
			for end < len(ddl) && isIdentByte(ddl[end]) {
				end++
			}
			word := ddl[pos:end]
			pos = end
			switch {
			case expectN:
				name = word
				expectN = false
			case strings.EqualFold(word, "CONSTRAINT"):
				expectN = true
			case strings.EqualFold(word, "CHECK"):
				for pos < len(ddl) && isSpace(ddl[pos]) {
					pos++
				}
				if pos >= len(ddl) || ddl[pos] != '(' {
					continue
				}
				end := matchParen(ddl, pos)
				if end-1 <= pos {
					return out
				}
				out = append(out, Check{Name: name, Expr: strings.TrimSpace(ddl[pos+1 : end-1])})
				name = ""
				pos = end
			default:
				name = ""
			}
		default:
			pos++
		}
	}
	return out
}

// skipQuoted returns the offset just past the quoted token starting at pos.
func skipQuoted(s string, pos int) int {
	closing := s[pos]
	if closing == '[' {
		closing = ']'
	}
	for i := pos + 1; i < len(s); i++ {
		if s[i] != closing {
			continue
		}
		if closing != ']' && i+1 < len(s) && s[i+1] == closing {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// matchParen returns the offset just past the parenthesis matching s[pos].
func matchParen(s string, pos int) int {
	depth := 0
	for i := pos; i < len(s); {
		switch s[i] {
		case '\'', '"', '`', '[':
			i = skipQuoted(s, i)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return len(s)
}

func unquoteIdent(tok string) string {
	if len(tok) < 2 {
		return tok
	}
	inner := tok[1 : len(tok)-1]
	switch tok[0] {
	case '"':
		return strings.ReplaceAll(inner, `""`, `"`)
	case '`':
		return strings.ReplaceAll(inner, "``", "`")
	case '\'':
		return strings.ReplaceAll(inner, "''", "'")
	}
	return inner
}

// unwrapParens strips one pair of parentheses enclosing the whole of s.
func unwrapParens(s string) string {
	if len(s) >= 2 && s[0] == '(' && matchParen(s, 0) == len(s) {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func cutKeyword(s, kw string) (string, bool) {
	if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return s, false
	}
	return s[len(kw):], true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// withoutForeignKeyIndexes drops the indexes MySQL creates implicitly for a
// foreign key. They share the constraint name and come back with it.
func withoutForeignKeyIndexes(indexes []Index, fks []ForeignKey) []Index {
	if len(fks) == 0 {
		return indexes
	}
	names := make(map[string]bool, len(fks))
	for _, fk := range fks {
		names[fk.Name] = true
	}
	out := indexes[:0:0]
	for _, idx := range indexes {
		if !names[idx.Name] {
			out = append(out, idx)
		}
	}
	return out
}
