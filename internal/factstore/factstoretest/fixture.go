// File: internal/factstore/factstoretest/fixture.go

// Package factstoretest builds throwaway fact database snapshots for tests.
package factstoretest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/faultline-sec/faultline/internal/factstore"
)

const schema = `
CREATE TABLE function_call_args (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    caller_function TEXT NOT NULL,
    callee_function TEXT NOT NULL,
    argument_index INTEGER,
    argument_expr TEXT,
    param_name TEXT,
    callee_file_path TEXT
);
CREATE TABLE assignments (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    target_var TEXT NOT NULL,
    source_expr TEXT,
    source_vars TEXT,
    in_function TEXT
);
CREATE TABLE variable_usage (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    variable_name TEXT NOT NULL
);
CREATE TABLE sql_queries (
    file_path TEXT NOT NULL,
    line_number INTEGER NOT NULL,
    query_text TEXT NOT NULL,
    is_parameterized BOOLEAN
);
CREATE TABLE env_var_usage (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    key TEXT NOT NULL
);
CREATE TABLE api_endpoints (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    method TEXT NOT NULL,
    path TEXT NOT NULL
);
CREATE TABLE framework_safe_sinks (
    sink_pattern TEXT NOT NULL,
    is_safe BOOLEAN,
    framework TEXT
);
CREATE TABLE validation_framework_usage (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    framework TEXT,
    method TEXT,
    kind TEXT
);
CREATE TABLE orm_models (
    name TEXT NOT NULL,
    framework TEXT,
    language TEXT,
    table_name TEXT
);
CREATE TABLE html_hooks (
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    hook_name TEXT NOT NULL
);
CREATE TABLE symbols (
    path TEXT NOT NULL,
    line INTEGER NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    params TEXT
);
`

// Fixture collects the fact records one test snapshot should contain.
// Zero-valued slices are fine; the corresponding tables are just empty.
type Fixture struct {
	CallArgs   []factstore.CallArg
	Assigns    []factstore.Assignment
	VarAccess  []factstore.VariableAccess
	Queries    []factstore.SQLQuery
	EnvUsage   []factstore.EnvAccess
	Endpoints  []factstore.EndpointRecord
	SafeSinks  []factstore.SafeSink
	Validators []factstore.ValidatorUsage
	ORMModels  []factstore.ORMModel
	HTMLHooks  []factstore.HTMLHook
	Symbols    []factstore.Symbol
}

// Write materializes the fixture as a SQLite file under a test temp dir and
// returns its path. The file is written in WAL mode so the read-only store
// can open it the same way production snapshots are opened.
func (f Fixture) Write(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "facts.db")
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	require.NoError(t, err)
	defer func() { require.NoError(t, conn.Close()) }()

	require.NoError(t, sqlitex.ExecuteScript(conn, schema, nil))

	insert := func(query string, rows [][]any) {
		for _, args := range rows {
			require.NoError(t, sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}))
		}
	}

	rows := make([][]any, 0, len(f.CallArgs))
	for _, r := range f.CallArgs {
		rows = append(rows, []any{r.File, r.Line, r.Caller, r.Callee, r.ArgIndex, r.ArgExpr, r.ParamName, r.CalleeFile})
	}
	insert(`INSERT INTO function_call_args VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.Assigns {
		rows = append(rows, []any{r.File, r.Line, r.TargetVar, r.SourceExpr, r.SourceVars, r.InFunction})
	}
	insert(`INSERT INTO assignments VALUES (?, ?, ?, ?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.VarAccess {
		rows = append(rows, []any{r.File, r.Line, r.Name})
	}
	insert(`INSERT INTO variable_usage VALUES (?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.Queries {
		rows = append(rows, []any{r.File, r.Line, r.Text, r.IsParameterized})
	}
	insert(`INSERT INTO sql_queries VALUES (?, ?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.EnvUsage {
		rows = append(rows, []any{r.File, r.Line, r.Key})
	}
	insert(`INSERT INTO env_var_usage VALUES (?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.Endpoints {
		rows = append(rows, []any{r.File, r.Line, r.Method, r.Path})
	}
	insert(`INSERT INTO api_endpoints VALUES (?, ?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.SafeSinks {
		rows = append(rows, []any{r.Pattern, r.IsSafe, r.Framework})
	}
	insert(`INSERT INTO framework_safe_sinks VALUES (?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.Validators {
		rows = append(rows, []any{r.File, r.Line, r.Framework, r.Method, r.Kind})
	}
	insert(`INSERT INTO validation_framework_usage VALUES (?, ?, ?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.ORMModels {
		rows = append(rows, []any{r.Name, r.Framework, r.Language, r.Table})
	}
	insert(`INSERT INTO orm_models VALUES (?, ?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.HTMLHooks {
		rows = append(rows, []any{r.File, r.Line, r.Name})
	}
	insert(`INSERT INTO html_hooks VALUES (?, ?, ?)`, rows)

	rows = rows[:0]
	for _, r := range f.Symbols {
		rows = append(rows, []any{r.File, r.Line, r.Name, r.Kind, r.Params})
	}
	insert(`INSERT INTO symbols VALUES (?, ?, ?, ?, ?)`, rows)

	return path
}
