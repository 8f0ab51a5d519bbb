// File: internal/factstore/store_test.go
package factstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/faultline-sec/faultline/internal/factstore"
	"github.com/faultline-sec/faultline/internal/factstore/factstoretest"
)

func openStore(t *testing.T, path string) *factstore.Store {
	t.Helper()
	store, err := factstore.Open(context.Background(), path, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestOpen(t *testing.T) {
	t.Run("should fail when the database file is missing", func(t *testing.T) {
		_, err := factstore.Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"), 2, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("should fail when the schema is incomplete", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "facts.db")
		conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
		require.NoError(t, err)
		require.NoError(t, sqlitex.ExecuteScript(conn, `CREATE TABLE symbols (path TEXT, line INTEGER, name TEXT, type TEXT, params TEXT);`, nil))
		require.NoError(t, conn.Close())

		_, err = factstore.Open(context.Background(), path, 2, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema incomplete")
		assert.Contains(t, err.Error(), "function_call_args")
	})

	t.Run("should open a complete snapshot", func(t *testing.T) {
		path := factstoretest.Fixture{}.Write(t)
		store := openStore(t, path)

		calls, err := store.CallArgs(context.Background())
		require.NoError(t, err)
		assert.Empty(t, calls)
	})
}

func TestReaders(t *testing.T) {
	ctx := context.Background()
	path := factstoretest.Fixture{
		CallArgs: []factstore.CallArg{
			{File: "src/api.js", Line: 10, Caller: "createUser", Callee: "db.query", ArgIndex: 0, ArgExpr: "sql", ParamName: "text"},
		},
		Assigns: []factstore.Assignment{
			{File: "src/api.js", Line: 9, TargetVar: "sql", SourceExpr: "`SELECT 1`", InFunction: "createUser"},
			{File: "src/api.js", Line: 12, TargetVar: "rows", SourceExpr: "db.query(sql)", InFunction: "createUser"},
		},
		VarAccess: []factstore.VariableAccess{
			{File: "src/api.js", Line: 11, Name: "req.body"},
		},
		Queries: []factstore.SQLQuery{
			{File: "src/api.js", Line: 12, Text: "SELECT * FROM users WHERE id = ?", IsParameterized: true},
		},
		EnvUsage: []factstore.EnvAccess{
			{File: "src/config.js", Line: 3, Key: "DATABASE_URL"},
		},
		Endpoints: []factstore.EndpointRecord{
			{Method: "POST", Path: "/api/v1/users", File: "src/routes.js", Line: 20},
		},
		SafeSinks: []factstore.SafeSink{
			{Pattern: "res.json", IsSafe: true, Framework: "express"},
		},
		Validators: []factstore.ValidatorUsage{
			{File: "src/schema.js", Line: 5, Framework: "zod", Method: "parse", Kind: "record"},
		},
		ORMModels: []factstore.ORMModel{
			{Name: "User", Framework: "sequelize", Language: "javascript", Table: "users"},
		},
		HTMLHooks: []factstore.HTMLHook{
			{File: "src/View.jsx", Line: 7, Name: "dangerouslySetInnerHTML"},
		},
		Symbols: []factstore.Symbol{
			{File: "src/api.js", Line: 8, Name: "createUser", Kind: "function", Params: `["userId"]`},
			{File: "src/api.js", Line: 2, Name: "req.body.email", Kind: "property"},
		},
	}.Write(t)
	store := openStore(t, path)

	t.Run("CallArgs", func(t *testing.T) {
		got, err := store.CallArgs(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "db.query", got[0].Callee)
		assert.Equal(t, "sql", got[0].ArgExpr)
	})

	t.Run("Assignments ordered by file and line", func(t *testing.T) {
		got, err := store.Assignments(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 9, got[0].Line)
		assert.Equal(t, 12, got[1].Line)
	})

	t.Run("AssignmentAt", func(t *testing.T) {
		a, ok, err := store.AssignmentAt(ctx, "src/api.js", 12)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "rows", a.TargetVar)

		_, ok, err = store.AssignmentAt(ctx, "src/api.js", 999)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SQLQueries", func(t *testing.T) {
		got, err := store.SQLQueries(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].IsParameterized)
		assert.Equal(t, "src/api.js", got[0].File)
	})

	t.Run("Endpoints", func(t *testing.T) {
		got, err := store.Endpoints(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "POST", got[0].Method)
		assert.Equal(t, "/api/v1/users", got[0].Path)
	})

	t.Run("Symbols filters by kind", func(t *testing.T) {
		funcs, err := store.Symbols(ctx, "function")
		require.NoError(t, err)
		require.Len(t, funcs, 1)
		assert.Equal(t, "createUser", funcs[0].Name)
		assert.Equal(t, `["userId"]`, funcs[0].Params)

		props, err := store.Symbols(ctx, "property")
		require.NoError(t, err)
		require.Len(t, props, 1)
		assert.Equal(t, "req.body.email", props[0].Name)
	})

	t.Run("remaining collections round-trip", func(t *testing.T) {
		vars, err := store.VariableAccesses(ctx)
		require.NoError(t, err)
		assert.Len(t, vars, 1)

		envs, err := store.EnvAccesses(ctx)
		require.NoError(t, err)
		assert.Len(t, envs, 1)

		safe, err := store.SafeSinks(ctx)
		require.NoError(t, err)
		require.Len(t, safe, 1)
		assert.True(t, safe[0].IsSafe)

		validators, err := store.Validators(ctx)
		require.NoError(t, err)
		assert.Len(t, validators, 1)

		models, err := store.ORMModels(ctx)
		require.NoError(t, err)
		require.Len(t, models, 1)
		assert.Equal(t, "users", models[0].Table)

		hooks, err := store.HTMLHooks(ctx)
		require.NoError(t, err)
		require.Len(t, hooks, 1)
		assert.Equal(t, "dangerouslySetInnerHTML", hooks[0].Name)
	})
}
