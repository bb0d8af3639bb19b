// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/gateway"
)

func TestRouterPrefersLongestPrefix(t *testing.T) {
	var matched string
	dispatch := func(route gateway.Route, w http.ResponseWriter, r *http.Request) {
		matched = route.Prefix
		w.WriteHeader(http.StatusOK)
	}

	routes := []gateway.Route{
		{Prefix: "/v1", Class: gateway.RESTMapped},
		{Prefix: "/v1/jobs", Class: gateway.GRPCWeb},
	}
	router := gateway.NewRouter(routes, dispatch)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "/v1/jobs", matched)
}

func TestRouterBreaksTiesByDeclarationOrder(t *testing.T) {
	var matched string
	dispatch := func(route gateway.Route, w http.ResponseWriter, r *http.Request) {
		matched = route.Target.Host
		w.WriteHeader(http.StatusOK)
	}

	routes := []gateway.Route{
		{Prefix: "/v1/jobs", Target: gateway.Target{Host: "first"}},
		{Prefix: "/v1/jobs", Target: gateway.Target{Host: "second"}},
	}
	router := gateway.NewRouter(routes, dispatch)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "first", matched)
}

func TestRouterDoesNotMatchOnRawStringPrefix(t *testing.T) {
	matched := false
	dispatch := func(gateway.Route, http.ResponseWriter, *http.Request) {
		matched = true
	}

	routes := []gateway.Route{
		{Prefix: "/trac-meta", Class: gateway.RESTMapped},
	}
	router := gateway.NewRouter(routes, dispatch)

	// "/trac-metaXYZ" shares every character of the configured prefix
	// but diverges at the first path segment, so it must 404 rather
	// than matching "/trac-meta".
	req := httptest.NewRequest(http.MethodGet, "/trac-metaXYZ/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.False(t, matched)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterReturns404WithConnectionCloseOnNoMatch(t *testing.T) {
	router := gateway.NewRouter(nil, func(gateway.Route, http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "close", rec.Header().Get("Connection"))
}

func TestProtocolClassString(t *testing.T) {
	require.Equal(t, "HTTP_PROXY", gateway.HTTPProxy.String())
	require.Equal(t, "GRPC_WEB", gateway.GRPCWeb.String())
	require.Equal(t, "REST_MAPPED", gateway.RESTMapped.String())
}
