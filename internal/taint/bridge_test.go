// File: internal/taint/bridge_test.go
package taint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/faultline-sec/faultline/internal/config"
	"github.com/faultline-sec/faultline/internal/factstore"
	"github.com/faultline-sec/faultline/internal/factstore/factstoretest"
)

func testConnector() *connector {
	return &connector{cfg: config.NewDefaultConfig().Discovery()}
}

func TestNormalizePath(t *testing.T) {
	c := testConnector()

	tests := []struct {
		in   string
		want string
	}{
		{"/api/v1/areas/", "areas"},
		{"/areas", "areas"},
		{"areas", "areas"},
		{"/api/v1/areas/${id}", "areas/:param"},
		{"/areas/:id", "areas/:param"},
		{"/areas/{areaId}/items", "areas/:param/items"},
		{"/api/v1", ""},
		{"/api/v1/", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, c.normalizePath(tc.in), "path: %s", tc.in)
	}
}

func TestExtractRoute(t *testing.T) {
	c := testConnector()

	t.Run("verb-named callee with literal path", func(t *testing.T) {
		target, ok := c.extractRoute(callSite{callee: "axios.post", args: []string{"'/areas'", "payload"}})
		require.True(t, ok)
		assert.Equal(t, "POST", target.method)
		assert.Equal(t, "/areas", target.path)
	})

	t.Run("explicit method option overrides the default", func(t *testing.T) {
		target, ok := c.extractRoute(callSite{callee: "fetch", args: []string{"`/areas/${id}`", "{ method: 'PUT' }"}})
		require.True(t, ok)
		assert.Equal(t, "PUT", target.method)
		assert.Equal(t, "/areas/${id}", target.path)
	})

	t.Run("non-verb callee is not a client invocation", func(t *testing.T) {
		_, ok := c.extractRoute(callSite{callee: "areaApi.create", args: []string{"payload"}})
		assert.False(t, ok)
	})

	t.Run("missing path argument is not a client invocation", func(t *testing.T) {
		_, ok := c.extractRoute(callSite{callee: "axios.get", args: []string{"buildUrl()"}})
		assert.False(t, ok)
	})
}

func newBridgeEngine(t *testing.T, fx factstoretest.Fixture) *Engine {
	t.Helper()
	path := fx.Write(t)
	store, err := factstore.Open(context.Background(), path, 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	engine, err := NewEngine(store, NewRegistry(nil), config.NewDefaultConfig().Discovery(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return engine
}

func TestResolveCrossBoundary(t *testing.T) {
	ctx := context.Background()

	scenario := factstoretest.Fixture{
		CallArgs: []factstore.CallArg{
			// Level 1: the service wrapper issues the HTTP call.
			{File: "frontend/src/services/areaApi.js", Line: 5, Caller: "create", Callee: "axios.post", ArgIndex: 0, ArgExpr: "'/areas'"},
			{File: "frontend/src/services/areaApi.js", Line: 5, Caller: "create", Callee: "axios.post", ArgIndex: 1, ArgExpr: "payload"},
			// Level 2: the store method delegates to the wrapper.
			{File: "frontend/src/stores/areaStore.js", Line: 9, Caller: "fetchAreas", Callee: "areaApi.create", ArgIndex: 0, ArgExpr: "areaData"},
		},
		Assigns: []factstore.Assignment{
			{File: "frontend/src/services/areaApi.js", Line: 2, TargetVar: "areaApi", SourceExpr: "{}"},
		},
		Endpoints: []factstore.EndpointRecord{
			{Method: "POST", Path: "/api/v1/areas/", File: "server/areas.js", Line: 12},
		},
	}

	t.Run("resolves a two-level chain through the store map", func(t *testing.T) {
		engine := newBridgeEngine(t, scenario)
		sink := Sink{
			Category: CategoryAPICall,
			Name:     "fetchAreas",
			File:     "frontend/src/components/Areas.jsx",
			Line:     18,
			Pattern:  "areaData",
			Risk:     RiskMedium,
		}

		flows, err := engine.ResolveCrossBoundary(ctx, []Sink{sink})
		require.NoError(t, err)
		require.Len(t, flows, 1)

		flow := flows[0]
		assert.Equal(t, "fetchAreas", flow.FrontendSink.Name)
		assert.Equal(t, CategoryHTTPRequest, flow.BackendSource.Category)
		assert.Equal(t, "req.body", flow.BackendSource.Pattern)
		assert.Equal(t, RiskHigh, flow.BackendSource.Risk)
		assert.Equal(t, "server/areas.js", flow.BackendSource.File)
		assert.Equal(t, 12, flow.BackendSource.Line)
		assert.Equal(t, "frontend/src/components/Areas.jsx", flow.BackendSource.Meta["provenance"])
	})

	t.Run("resolves a qualified level-1 call directly", func(t *testing.T) {
		engine := newBridgeEngine(t, scenario)
		sink := Sink{Category: CategoryAPICall, Name: "areaApi.create", File: "frontend/src/components/Areas.jsx"}

		flows, err := engine.ResolveCrossBoundary(ctx, []Sink{sink})
		require.NoError(t, err)
		assert.Len(t, flows, 1)
	})

	t.Run("skips unresolved sinks", func(t *testing.T) {
		engine := newBridgeEngine(t, scenario)
		sink := Sink{Category: CategoryAPICall, Name: "somethingElse", File: "frontend/src/components/Areas.jsx"}

		flows, err := engine.ResolveCrossBoundary(ctx, []Sink{sink})
		require.NoError(t, err)
		assert.Empty(t, flows)
	})

	t.Run("no flow without a matching endpoint", func(t *testing.T) {
		noEndpoint := scenario
		noEndpoint.Endpoints = []factstore.EndpointRecord{
			{Method: "GET", Path: "/api/v1/areas/", File: "server/areas.js", Line: 12},
		}
		engine := newBridgeEngine(t, noEndpoint)
		sink := Sink{Category: CategoryAPICall, Name: "fetchAreas", File: "frontend/src/components/Areas.jsx"}

		flows, err := engine.ResolveCrossBoundary(ctx, []Sink{sink})
		require.NoError(t, err)
		assert.Empty(t, flows, "method must match exactly")
	})

	t.Run("delegation into an unbacked wrapper yields no flow", func(t *testing.T) {
		unbacked := factstoretest.Fixture{
			CallArgs: []factstore.CallArg{
				// A store method delegating to a wrapper method that was
				// never backed by a real HTTP call.
				{File: "frontend/src/stores/loopStore.js", Line: 4, Caller: "load", Callee: "loopApi.load", ArgIndex: 0, ArgExpr: "data"},
			},
			Endpoints: []factstore.EndpointRecord{
				{Method: "GET", Path: "/loop", File: "server/loop.js", Line: 1},
			},
		}
		engine := newBridgeEngine(t, unbacked)
		sink := Sink{Category: CategoryAPICall, Name: "load", File: "frontend/src/components/Loop.jsx"}

		flows, err := engine.ResolveCrossBoundary(ctx, []Sink{sink})
		require.NoError(t, err)
		assert.Empty(t, flows)
	})
}
