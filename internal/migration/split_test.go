package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/migrateflow/internal/schema"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "empty",
			script: "",
			want:   nil,
		},
		{
			name:   "comments only",
			script: "-- nothing here\n/* still nothing */\n;",
			want:   nil,
		},
		{
			name:   "two statements",
			script: "CREATE TABLE a (id INTEGER);\nCREATE TABLE b (id INTEGER);\n",
			want:   []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"},
		},
		{
			name:   "no trailing semicolon",
			script: "SELECT 1",
			want:   []string{"SELECT 1"},
		},
		{
			name:   "semicolon in single quotes",
			script: "INSERT INTO t VALUES ('a;b'); SELECT 2;",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "SELECT 2"},
		},
		{
			name:   "doubled quote",
			script: "INSERT INTO t VALUES ('it''s;ok');",
			want:   []string{"INSERT INTO t VALUES ('it''s;ok')"},
		},
		{
			name:   "quoted identifiers",
			script: "CREATE TABLE \"a;b\" (`c;d` INTEGER);",
			want:   []string{"CREATE TABLE \"a;b\" (`c;d` INTEGER)"},
		},
		{
			name:   "line comment with semicolon",
			script: "SELECT 1 -- trailing; comment\n;SELECT 2;",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "block comment with semicolon",
			script: "SELECT /* a; b */ 1;",
			want:   []string{"SELECT   1"},
		},
		{
			name:   "dollar quoted body",
			script: "CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql;\nSELECT f();",
			want: []string{
				"CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql",
				"SELECT f()",
			},
		},
		{
			name:   "tagged dollar quote",
			script: "DO $body$ BEGIN PERFORM 1; END $body$;",
			want:   []string{"DO $body$ BEGIN PERFORM 1; END $body$"},
		},
		{
			name:   "positional parameter is not a dollar quote",
			script: "PREPARE p AS SELECT $1; EXECUTE p(1);",
			want:   []string{"PREPARE p AS SELECT $1", "EXECUTE p(1)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(schema.DialectPostgres, tt.script))
		})
	}
}

func TestSplitStatements_RoutineBodies(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "sqlite trigger",
			script: "CREATE TRIGGER tr AFTER INSERT ON a BEGIN INSERT INTO b VALUES (NEW.id); UPDATE b SET id = id; END;\nSELECT 1;",
			want: []string{
				"CREATE TRIGGER tr AFTER INSERT ON a BEGIN INSERT INTO b VALUES (NEW.id); UPDATE b SET id = id; END",
				"SELECT 1",
			},
		},
		{
			name:   "case expression inside trigger",
			script: "CREATE TEMP TRIGGER tr AFTER UPDATE ON a BEGIN UPDATE b SET x = CASE WHEN NEW.v > 0 THEN 1 ELSE 0 END; END; SELECT 2;",
			want: []string{
				"CREATE TEMP TRIGGER tr AFTER UPDATE ON a BEGIN UPDATE b SET x = CASE WHEN NEW.v > 0 THEN 1 ELSE 0 END; END",
				"SELECT 2",
			},
		},
		{
			name:   "mysql procedure with nested blocks",
			script: "CREATE PROCEDURE p() BEGIN IF 1 THEN SELECT 1; END IF; WHILE 0 DO SELECT 2; END WHILE; END; CALL p();",
			want: []string{
				"CREATE PROCEDURE p() BEGIN IF 1 THEN SELECT 1; END IF; WHILE 0 DO SELECT 2; END WHILE; END",
				"CALL p()",
			},
		},
		{
			name:   "transaction keywords outside routines",
			script: "BEGIN; CREATE TABLE t (event TEXT, finish_at TEXT); END;",
			want:   []string{"BEGIN", "CREATE TABLE t (event TEXT, finish_at TEXT)", "END"},
		},
		{
			name: "delimiter lines",
			script: "DELIMITER //\n" +
				"CREATE PROCEDURE p() BEGIN SELECT 1; SELECT 2; END//\n" +
				"DELIMITER ;\n" +
				"CALL p();\n",
			want: []string{"CREATE PROCEDURE p() BEGIN SELECT 1; SELECT 2; END", "CALL p()"},
		},
		{
			name:   "delimiter word inside a statement",
			script: "CREATE TABLE t (\ndelimiter TEXT\n);",
			want:   []string{"CREATE TABLE t (\ndelimiter TEXT\n)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(schema.DialectMySQL, tt.script))
		})
	}
}

func TestSplitStatements_Backslash(t *testing.T) {
	script := `INSERT INTO t VALUES ('a\'); INSERT INTO t VALUES ('b');`

	assert.Equal(t, []string{
		`INSERT INTO t VALUES ('a\')`,
		`INSERT INTO t VALUES ('b')`,
	}, SplitStatements(schema.DialectPostgres, script))
	assert.Len(t, SplitStatements(schema.DialectSQLite, script), 2)
	assert.Equal(t, []string{script}, SplitStatements(schema.DialectMySQL, script),
		"mysql reads \\' as an escaped quote")

	ident := `SELECT "a\"; SELECT 2;`
	assert.Len(t, SplitStatements(schema.DialectPostgres, ident), 2)
}
