// File: internal/taint/engine_test.go
package taint_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/faultline-sec/faultline/internal/config"
	"github.com/faultline-sec/faultline/internal/factstore"
	"github.com/faultline-sec/faultline/internal/factstore/factstoretest"
	"github.com/faultline-sec/faultline/internal/taint"
)

// testPatterns is a representative registry for a JS/TS web codebase.
func testPatterns() map[taint.Category][]string {
	return map[taint.Category][]string{
		taint.CategoryHTTPRequest:   {"req.", "request."},
		taint.CategoryUserInput:     {"body.", "query.", "params."},
		taint.CategoryFrontendInput: {"input", "form"},
		taint.CategorySQL:           {"query", "execute"},
		taint.CategoryORM:           {"create", "update", "destroy", "findOne"},
		taint.CategoryCommand:       {"exec", "spawn", "eval"},
		taint.CategoryXSS:           {"send", "write"},
		taint.CategoryPath:          {"readFile", "open"},
		taint.CategoryLDAP:          {"search", "bind"},
		taint.CategoryAPICall:       {"get", "post", "put", "delete", "fetch", "request"},
	}
}

func newTestEngine(t *testing.T, fx factstoretest.Fixture, patterns map[taint.Category][]string) *taint.Engine {
	t.Helper()
	path := fx.Write(t)
	store, err := factstore.Open(context.Background(), path, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	engine, err := taint.NewEngine(store, taint.NewRegistry(patterns), config.NewDefaultConfig().Discovery(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return engine
}

func TestNewEngine(t *testing.T) {
	t.Run("requires a registry", func(t *testing.T) {
		path := factstoretest.Fixture{}.Write(t)
		store, err := factstore.Open(context.Background(), path, 1, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer store.Close()

		_, err = taint.NewEngine(store, nil, config.DiscoveryConfig{}, zaptest.NewLogger(t))
		require.Error(t, err)
	})

	t.Run("requires a store", func(t *testing.T) {
		_, err := taint.NewEngine(nil, taint.NewRegistry(nil), config.DiscoveryConfig{}, zaptest.NewLogger(t))
		require.Error(t, err)
	})
}

func TestDiscoverSources(t *testing.T) {
	ctx := context.Background()

	t.Run("http_request dedups by variable name", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			VarAccess: []factstore.VariableAccess{
				{File: "server/users.js", Line: 5, Name: "req.body"},
				{File: "server/users.js", Line: 9, Name: "req.body"},
				{File: "server/other.js", Line: 3, Name: "req.body"},
				{File: "server/users.js", Line: 7, Name: "req.query.id"},
			},
		}, testPatterns())

		sources, err := engine.DiscoverSources(ctx)
		require.NoError(t, err)

		var httpSources []taint.Source
		for _, s := range sources {
			if s.Category == taint.CategoryHTTPRequest {
				httpSources = append(httpSources, s)
			}
		}
		require.Len(t, httpSources, 2)
		assert.Equal(t, taint.RiskHigh, httpSources[0].Risk)
	})

	t.Run("absent registry category discovers nothing", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			VarAccess: []factstore.VariableAccess{
				{File: "server/users.js", Line: 5, Name: "req.body"},
			},
		}, map[taint.Category][]string{})

		sources, err := engine.DiscoverSources(ctx)
		require.NoError(t, err)
		for _, s := range sources {
			assert.NotEqual(t, taint.CategoryHTTPRequest, s.Category)
		}
	})

	t.Run("parameters exclude framework names and malformed lists", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			Symbols: []factstore.Symbol{
				{File: "server/users.js", Line: 4, Name: "createUser", Kind: "function", Params: `["userId", "req", "res", "next", "options"]`},
				{File: "server/broken.js", Line: 9, Name: "broken", Kind: "function", Params: `{not json`},
			},
		}, testPatterns())

		sources, err := engine.DiscoverSources(ctx)
		require.NoError(t, err)

		var params []taint.Source
		for _, s := range sources {
			if s.Category == taint.CategoryParameter {
				params = append(params, s)
			}
		}
		require.Len(t, params, 1)
		assert.Equal(t, "userId", params[0].Name)
		assert.Equal(t, taint.RiskMedium, params[0].Risk)
		assert.Equal(t, "createUser", params[0].Meta["function"])
	})

	t.Run("environment and database_read are low risk", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			EnvUsage: []factstore.EnvAccess{{File: "server/config.js", Line: 2, Key: "SECRET"}},
			Queries:  []factstore.SQLQuery{{File: "server/db.js", Line: 14, Text: "SELECT name FROM users"}},
		}, testPatterns())

		sources, err := engine.DiscoverSources(ctx)
		require.NoError(t, err)
		require.Len(t, sources, 2)
		for _, s := range sources {
			assert.Equal(t, taint.RiskLow, s.Risk)
		}
	})
}

func TestDiscoverSinks(t *testing.T) {
	ctx := context.Background()

	t.Run("sql query-result sink requires an assignment at the site", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			Queries: []factstore.SQLQuery{
				{File: "server/db.js", Line: 10, Text: "SELECT * FROM t WHERE id = ?"},
				{File: "server/db.js", Line: 20, Text: "SELECT * FROM t WHERE id = ?"},
			},
			Assigns: []factstore.Assignment{
				{File: "server/db.js", Line: 10, TargetVar: "rows", SourceExpr: "db.query(sql)"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)

		var sqlSinks []taint.Sink
		for _, s := range sinks {
			if s.Category == taint.CategorySQL && s.Name == "rows" {
				sqlSinks = append(sqlSinks, s)
			}
		}
		require.Len(t, sqlSinks, 1, "the unassigned query at line 20 must be skipped")
		assert.Equal(t, "rows", sqlSinks[0].Pattern, "pattern is the bare result variable, not query text")
		assert.Equal(t, taint.RiskLow, sqlSinks[0].Risk)
	})

	t.Run("raw sql call keeps the full argument expression", func(t *testing.T) {
		longExpr := `"SELECT * FROM users WHERE name = '" + req.body.name + "' AND active = 1 ORDER BY created_at DESC"`
		engine := newTestEngine(t, factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				{File: "server/db.js", Line: 30, Caller: "findUser", Callee: "db.query", ArgIndex: 0, ArgExpr: longExpr},
				{File: "server/db.js", Line: 30, Caller: "findUser", Callee: "db.query", ArgIndex: 1, ArgExpr: "params"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)
		require.Len(t, sinks, 1, "only the query argument defines the sink, one per call site")
		assert.Equal(t, longExpr, sinks[0].Pattern, "pattern must never be truncated")
		assert.Equal(t, taint.RiskCritical, sinks[0].Risk)
		assert.True(t, sinks[0].HasInterpolation)
	})

	t.Run("orm sink requires capitalized receiver and an argument", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				{File: "server/users.js", Line: 8, Caller: "createUser", Callee: "User.create", ArgIndex: 0, ArgExpr: "req.body.name"},
				{File: "server/users.js", Line: 8, Caller: "createUser", Callee: "User.create", ArgIndex: 1, ArgExpr: "{transaction: tx}"},
				{File: "server/users.js", Line: 12, Caller: "createUser", Callee: "service.create", ArgIndex: 0, ArgExpr: "req.body.name"},
				{File: "server/users.js", Line: 16, Caller: "createUser", Callee: "User.create"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)

		var ormSinks []taint.Sink
		for _, s := range sinks {
			if s.Category == taint.CategoryORM {
				ormSinks = append(ormSinks, s)
			}
		}
		require.Len(t, ormSinks, 1, "lowercase receivers and argument-less calls are excluded")
		assert.Equal(t, "User.create", ormSinks[0].Name)
		assert.Equal(t, "req.body.name", ormSinks[0].Pattern)
		assert.Equal(t, taint.RiskMedium, ormSinks[0].Risk)
		assert.False(t, ormSinks[0].IsParameterized)
	})

	t.Run("command sinks are always critical with the full argument", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				{File: "server/jobs.js", Line: 3, Caller: "runJob", Callee: "child_process.exec", ArgIndex: 0, ArgExpr: "`convert ${file} out.png`"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, taint.CategoryCommand, sinks[0].Category)
		assert.Equal(t, taint.RiskCritical, sinks[0].Risk)
		assert.Equal(t, "`convert ${file} out.png`", sinks[0].Pattern)
	})

	t.Run("xss covers hooks, html assignments and call sites", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			HTMLHooks: []factstore.HTMLHook{
				{File: "frontend/src/View.jsx", Line: 7, Name: "dangerouslySetInnerHTML"},
			},
			Assigns: []factstore.Assignment{
				{File: "frontend/src/legacy.js", Line: 22, TargetVar: "el.innerHTML", SourceExpr: "userHtml"},
			},
			CallArgs: []factstore.CallArg{
				{File: "server/views.js", Line: 31, Caller: "render", Callee: "res.send", ArgIndex: 0, ArgExpr: "`<div>${content}</div>`"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)

		byPattern := make(map[string]taint.Sink)
		for _, s := range sinks {
			require.Equal(t, taint.CategoryXSS, s.Category)
			byPattern[s.Pattern] = s
		}
		require.Len(t, byPattern, 3)
		assert.Equal(t, taint.RiskHigh, byPattern["dangerouslySetInnerHTML"].Risk)
		assert.Equal(t, taint.RiskHigh, byPattern["el.innerHTML"].Risk)
		assert.Equal(t, taint.RiskCritical, byPattern["`<div>${content}</div>`"].Risk)
	})

	t.Run("path sink skips literal first arguments", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				{File: "server/files.js", Line: 5, Caller: "load", Callee: "fs.readFile", ArgIndex: 0, ArgExpr: "userPath"},
				{File: "server/files.js", Line: 9, Caller: "load", Callee: "fs.readFile", ArgIndex: 0, ArgExpr: `"./static.json"`},
				{File: "server/files.js", Line: 9, Caller: "load", Callee: "fs.readFile", ArgIndex: 1, ArgExpr: "cb"},
				{File: "server/files.js", Line: 13, Caller: "load", Callee: "openSgIpv4.addIngressRule", ArgIndex: 0, ArgExpr: "rule"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)
		require.Len(t, sinks, 1, "the literal-path call must not re-emit from its callback argument")
		assert.Equal(t, taint.CategoryPath, sinks[0].Category)
		assert.Equal(t, "fs.readFile", sinks[0].Name)
		assert.Equal(t, 5, sinks[0].Line)
	})

	t.Run("ldap sink needs both a pattern and the ldap marker", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				{File: "server/auth.js", Line: 4, Caller: "login", Callee: "ldapClient.search", ArgIndex: 0, ArgExpr: "filter"},
				{File: "server/auth.js", Line: 8, Caller: "login", Callee: "index.search", ArgIndex: 0, ArgExpr: "filter"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, taint.CategoryLDAP, sinks[0].Category)
		assert.Equal(t, "ldapClient.search", sinks[0].Name)
	})

	t.Run("api_call sinks come only from client files", func(t *testing.T) {
		engine := newTestEngine(t, factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				{File: "frontend/src/components/Form.jsx", Line: 12, Caller: "submit", Callee: "axios.post", ArgIndex: 1, ArgExpr: "formData"},
				{File: "server/client.js", Line: 12, Caller: "submit", Callee: "axios.post", ArgIndex: 1, ArgExpr: "formData"},
			},
		}, testPatterns())

		sinks, err := engine.DiscoverSinks(ctx)
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, taint.CategoryAPICall, sinks[0].Category)
		assert.Equal(t, "frontend/src/components/Form.jsx", sinks[0].File)
	})
}

func TestDiscoverSanitizers(t *testing.T) {
	engine := newTestEngine(t, factstoretest.Fixture{
		Validators: []factstore.ValidatorUsage{
			{File: "server/schema.js", Line: 5, Framework: "zod", Method: "parse", Kind: "record"},
		},
		ORMModels: []factstore.ORMModel{
			{Name: "User", Framework: "sequelize", Language: "javascript", Table: "users"},
		},
	}, testPatterns())

	sanitizers, err := engine.DiscoverSanitizers(context.Background())
	require.NoError(t, err)
	require.Len(t, sanitizers, 2)

	byCategory := make(map[taint.Category]taint.Sanitizer)
	for _, s := range sanitizers {
		byCategory[s.Category] = s
	}
	assert.Equal(t, "zod.parse", byCategory[taint.CategoryValidator].Pattern)
	assert.Equal(t, "User", byCategory[taint.CategoryORMModel].Name)
}

// endToEndFixture is the full scenario: an unparameterized ORM write, one
// traceable function parameter, and a frontend call chain resolving to a
// registered endpoint.
func endToEndFixture() factstoretest.Fixture {
	return factstoretest.Fixture{
		Symbols: []factstore.Symbol{
			{File: "server/users.js", Line: 4, Name: "createUser", Kind: "function", Params: `["userId"]`},
		},
		CallArgs: []factstore.CallArg{
			{File: "server/users.js", Line: 8, Caller: "createUser", Callee: "User.create", ArgIndex: 0, ArgExpr: "req.body.name"},
			{File: "frontend/src/services/userApi.js", Line: 6, Caller: "create", Callee: "http.post", ArgIndex: 0, ArgExpr: "'/users'"},
			{File: "frontend/src/services/userApi.js", Line: 6, Caller: "create", Callee: "http.post", ArgIndex: 1, ArgExpr: "data"},
			{File: "frontend/src/components/Signup.jsx", Line: 18, Caller: "onSubmit", Callee: "userApi.create", ArgIndex: 0, ArgExpr: "form.data"},
		},
		Assigns: []factstore.Assignment{
			{File: "frontend/src/services/userApi.js", Line: 3, TargetVar: "userApi", SourceExpr: "{}"},
		},
		Endpoints: []factstore.EndpointRecord{
			{Method: "POST", Path: "/users", File: "server/users.js", Line: 4},
		},
	}
}

func TestRunSafeSinkFiltering(t *testing.T) {
	engine := newTestEngine(t, factstoretest.Fixture{
		CallArgs: []factstore.CallArg{
			{File: "server/db.js", Line: 5, Caller: "find", Callee: "db.query", ArgIndex: 0, ArgExpr: "sql"},
			{File: "server/views.js", Line: 9, Caller: "render", Callee: "res.send", ArgIndex: 0, ArgExpr: "html"},
		},
		SafeSinks: []factstore.SafeSink{
			{Pattern: "res.send", IsSafe: true, Framework: "express"},
			{Pattern: "db.query", IsSafe: false, Framework: "express"},
		},
	}, testPatterns())

	results, err := engine.Run(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(results.Sinks))
	for _, s := range results.Sinks {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "db.query", "an entry flagged unsafe must not join the allowlist")
	assert.NotContains(t, names, "res.send")
}

func TestRunEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := newTestEngine(t, endToEndFixture(), testPatterns())
	results, err := engine.Run(context.Background())
	require.NoError(t, err)

	var params []taint.Source
	for _, s := range results.Sources {
		if s.Category == taint.CategoryParameter {
			params = append(params, s)
		}
	}
	require.Len(t, params, 1)
	assert.Equal(t, "userId", params[0].Name)
	assert.Equal(t, taint.RiskMedium, params[0].Risk)

	var ormSinks []taint.Sink
	for _, s := range results.Sinks {
		if s.Category == taint.CategoryORM {
			ormSinks = append(ormSinks, s)
		}
	}
	require.Len(t, ormSinks, 1)
	assert.Equal(t, taint.RiskMedium, ormSinks[0].Risk)
	assert.False(t, ormSinks[0].IsParameterized)

	require.Len(t, results.Flows, 1)
	flow := results.Flows[0]
	assert.Equal(t, "userApi.create", flow.FrontendSink.Name)
	assert.Equal(t, taint.CategoryHTTPRequest, flow.BackendSource.Category)
	assert.Equal(t, "req.body", flow.BackendSource.Pattern)
	assert.Equal(t, taint.RiskHigh, flow.BackendSource.Risk)
	assert.Equal(t, "server/users.js", flow.BackendSource.File)
	assert.Equal(t, "frontend/src/components/Signup.jsx", flow.BackendSource.Meta["provenance"])
}

func TestRunIdempotence(t *testing.T) {
	path := endToEndFixture().Write(t)
	ctx := context.Background()

	runOnce := func() *taint.Results {
		store, err := factstore.Open(ctx, path, 4, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer store.Close()

		engine, err := taint.NewEngine(store, taint.NewRegistry(testPatterns()), config.NewDefaultConfig().Discovery(), zaptest.NewLogger(t))
		require.NoError(t, err)
		results, err := engine.Run(ctx)
		require.NoError(t, err)
		return results
	}

	first := runOnce()
	second := runOnce()

	sortOpts := cmp.Options{
		cmpopts.SortSlices(func(a, b taint.Source) bool {
			return sourceKey(a) < sourceKey(b)
		}),
		cmpopts.SortSlices(func(a, b taint.Sink) bool {
			return sinkKey(a) < sinkKey(b)
		}),
		cmpopts.SortSlices(func(a, b taint.Sanitizer) bool {
			return sanitizerKey(a) < sanitizerKey(b)
		}),
		cmpopts.SortSlices(func(a, b taint.CrossBoundaryFlow) bool {
			return sinkKey(a.FrontendSink) < sinkKey(b.FrontendSink)
		}),
	}
	assert.Empty(t, cmp.Diff(first, second, sortOpts), "two runs over an unchanged snapshot must be set-equal")
}

func sourceKey(s taint.Source) string {
	return string(s.Category) + "|" + s.File + "|" + s.Pattern + "|" + s.Name
}

func sinkKey(s taint.Sink) string {
	return string(s.Category) + "|" + s.File + "|" + s.Pattern + "|" + s.Name
}

func sanitizerKey(s taint.Sanitizer) string {
	return string(s.Category) + "|" + s.File + "|" + s.Pattern + "|" + s.Name
}
