// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package gateway implements the multi-protocol edge: a per-connection
// protocol negotiator, a first-path-segment router, and the
// proxies/translators that sit behind it (HTTP/1, HTTP/1↔HTTP/2,
// gRPC-Web↔gRPC, REST↔gRPC).
package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
)

// ProtocolClass is the handling a matched Route requires.
type ProtocolClass int

// Protocol classes a Route may select.
const (
	HTTPProxy ProtocolClass = iota
	GRPCProxy
	GRPCWeb
	RESTMapped
	Internal
)

func (c ProtocolClass) String() string {
	switch c {
	case HTTPProxy:
		return "HTTP_PROXY"
	case GRPCProxy:
		return "GRPC_PROXY"
	case GRPCWeb:
		return "GRPC_WEB"
	case RESTMapped:
		return "REST_MAPPED"
	case Internal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Target is the upstream a Route forwards to.
type Target struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// Addr renders host:port for dialing.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Route is one entry in the router's prefix table.
type Route struct {
	Prefix string
	Target Target
	Class  ProtocolClass
}

// Router selects a Route by longest first-path-segment prefix, ties
// broken by declaration order; no match is a 404 with Connection:
// close.
//
// Built on gorilla/mux, which tries routes in registration order and
// keeps the first match — registering the configured routes longest-
// prefix-first (a stable sort, so equal-length prefixes keep their
// original declaration order) reproduces the required tie-break using
// the library's own matching order rather than reimplementing it.
//
// Matching itself goes through a custom mux.MatcherFunc rather than
// mux.Router.PathPrefix: PathPrefix matches on raw string prefix, with
// no segment-boundary check, so a configured prefix like "/trac-meta"
// would also swallow an unconfigured "/trac-metaXYZ/...". Comparing
// path segments directly keeps matches aligned to "/".
type Router struct {
	mux    *mux.Router
	routes []Route
}

// Dispatch is called once per request with the Route it matched.
type Dispatch func(route Route, w http.ResponseWriter, r *http.Request)

// NewRouter builds a Router over routes, calling dispatch for whichever
// one matches each request.
func NewRouter(routes []Route, dispatch Dispatch) *Router {
	sorted := make([]Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(pathSegments(sorted[i].Prefix)) > len(pathSegments(sorted[j].Prefix))
	})

	m := mux.NewRouter()
	for _, route := range sorted {
		route := route
		prefix := pathSegments(route.Prefix)
		m.NewRoute().MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return hasSegmentPrefix(pathSegments(r.URL.Path), prefix)
		}).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dispatch(route, w, r)
		})
	}
	m.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusNotFound)
	})

	return &Router{mux: m, routes: sorted}
}

// pathSegments splits a request path or configured prefix into its
// non-empty "/"-delimited segments.
func pathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// hasSegmentPrefix reports whether path starts with every segment of
// prefix, in order — a segment-aligned prefix test, not a raw string
// comparison.
func hasSegmentPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, seg := range prefix {
		if path[i] != seg {
			return false
		}
	}
	return true
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Routes returns the router's table in matching order, for inspection.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}
