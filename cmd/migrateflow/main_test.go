package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCLIEnv(t *testing.T) (dbPath, dir string) {
	t.Helper()
	root := t.TempDir()
	dir = filepath.Join(root, "migrations")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	t.Setenv("MIGRATEFLOW_MIGRATION_DIR", dir)
	t.Setenv("MIGRATEFLOW_LOG_LEVEL", "error")
	return filepath.Join(root, "app.db"), dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_VersionAndHelp(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "MigrateFlow dev")

	code, out, _ = runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "rollback [step|module]")

	code, _, errOut := runCLI(t, "explode")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Unknown command: explode")

	code, _, _ = runCLI(t)
	assert.Equal(t, 1, code)
}

func TestRun_UpCurrentDown(t *testing.T) {
	dbPath, dir := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_users.up.sql"), []byte("CREATE TABLE users (id INTEGER PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_users.down.sql"), []byte("DROP TABLE users;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_orders.up.sql"), []byte("CREATE TABLE orders (id INTEGER PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_orders.down.sql"), []byte("DROP TABLE orders;"), 0o644))

	textfile := filepath.Join(t.TempDir(), "migrateflow.prom")
	t.Setenv("MIGRATEFLOW_METRICS_TEXTFILE_PATH", textfile)

	db := []string{"--db-type", "sqlite", "--db-url", dbPath}

	code, out, errOut := runCLI(t, append([]string{"current"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "None\n", out)

	code, out, errOut = runCLI(t, append([]string{"up", "1_users"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Upgrade to revision `1_users`\n", out)

	code, out, _ = runCLI(t, append([]string{"list"}, db...)...)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1_users")
	assert.Contains(t, out, "R  2_orders")

	code, out, errOut = runCLI(t, append([]string{"up"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Upgrade to revision `2_orders`\n", out)

	code, _, errOut = runCLI(t, append([]string{"up"}, db...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error [sequencing]")

	code, out, _ = runCLI(t, append([]string{"current"}, db...)...)
	require.Equal(t, 0, code)
	assert.Equal(t, "Current migration is: 2_orders\n", out)

	code, out, errOut = runCLI(t, append([]string{"rollback", "2"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Downgrade from revision `2_orders`\nDowngrade from revision `1_users`\n", out)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "migrateflow_migrations_total")
}

func TestRun_CreateAndDiff(t *testing.T) {
	dbPath, dir := setupCLIEnv(t)
	db := []string{"--db-type", "sqlite", "--db-url", dbPath}

	code, out, errOut := runCLI(t, append([]string{"diff"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Your database has no changes from last revision!\n", out)

	code, out, errOut = runCLI(t, append([]string{"create", "--label", "init"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Migration created: "+dir)
	assert.Contains(t, out, "_init.up.sql")

	code, _, errOut = runCLI(t, append([]string{"create", "--label", "bad label"}, db...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error [integrity]")
}

func TestRun_ModuleScopedOutput(t *testing.T) {
	dbPath, dir := setupCLIEnv(t)
	moduleDir := filepath.Join(dir, "billing")
	require.NoError(t, os.MkdirAll(moduleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "1_invoices.up.sql"), []byte("CREATE TABLE invoices (id INTEGER PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "1_invoices.down.sql"), []byte("DROP TABLE invoices;"), 0o644))

	db := []string{"--db-type", "sqlite", "--db-url", dbPath}

	code, out, errOut := runCLI(t, append([]string{"up", "billing"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Only for module \"billing\":\nUpgrade to revision `1_invoices`\n", out)

	code, out, errOut = runCLI(t, append([]string{"current", "--module", "billing"}, db...)...)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Only for module \"billing\":\nCurrent migration is: 1_invoices\n", out)

	// 默认模块仍为空
	code, out, _ = runCLI(t, append([]string{"current"}, db...)...)
	require.Equal(t, 0, code)
	assert.Equal(t, "None\n", out)
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		args       []string
		wantModule string
		wantTo     string
		wantStep   int
		wantErr    bool
	}{
		{name: "up module", command: "up", args: []string{"billing"}, wantModule: "billing"},
		{name: "up target", command: "up", args: []string{"20240101_init"}, wantTo: "20240101_init"},
		{name: "up bare revision", command: "up", args: []string{"20240101"}, wantTo: "20240101"},
		{name: "up target with module flag after", command: "up", args: []string{"2_a", "--module", "billing"}, wantModule: "billing", wantTo: "2_a"},
		{name: "up explicit to keeps module", command: "up", args: []string{"--to", "2_a", "billing"}, wantModule: "billing", wantTo: "2_a"},
		{name: "down all", command: "down", args: []string{"0"}, wantTo: "0"},
		{name: "rollback step", command: "rollback", args: []string{"3"}, wantStep: 3},
		{name: "rollback module", command: "rollback", args: []string{"billing", "--step", "2"}, wantModule: "billing", wantStep: 2},
		{name: "list module", command: "list", args: []string{"billing"}, wantModule: "billing"},
		{name: "too many", command: "up", args: []string{"a", "b"}, wantErr: true},
		{name: "negative step", command: "rollback", args: []string{"--step", "-1"}, wantErr: true},
		{name: "unknown flag", command: "up", args: []string{"--bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(tt.command, tt.args, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModule, opts.module)
			assert.Equal(t, tt.wantTo, opts.to)
			assert.Equal(t, tt.wantStep, opts.step)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b_*"}, splitList(" a, ,b_* "))
}
