// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package gateway

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

// Handlers resolves a Route to the http.Handler that actually services
// it; internal/gateway/httpproxy, grpcproxy, h2proxy, grpcweb, and
// restproxy each provide one flavor, keyed by the route's ProtocolClass.
type Handlers interface {
	HandlerFor(route Route) http.Handler
}

// HandlerFunc adapts a plain function to Handlers.
type HandlerFunc func(route Route) http.Handler

// HandlerFor implements Handlers.
func (f HandlerFunc) HandlerFor(route Route) http.Handler { return f(route) }

// DispatchTo builds the Dispatch a Router needs from a Handlers
// resolver, so cmd/trac-gateway can wire httpproxy/grpcproxy/h2proxy/
// grpcweb/restproxy handlers in without this package importing any of
// them (each of those subpackages already imports gateway for Target
// and Route).
func DispatchTo(handlers Handlers) Dispatch {
	return func(route Route, w http.ResponseWriter, r *http.Request) {
		handlers.HandlerFor(route).ServeHTTP(w, r)
	}
}

// Server runs the protocol negotiator and the two listener-specific
// net/http servers it feeds. Running the HTTP/1 and HTTP/2-prior-
// knowledge servers as independent goroutines tracked by a single
// errgroup mirrors how storj-storj's private/lifecycle.Group
// supervises a named set of concurrent subsystems and surfaces the
// first one to fail.
type Server struct {
	negotiator *Negotiator
	router     *Router
	log        *zap.Logger
}

// NewServer builds a Server dispatching through router over listener.
func NewServer(listener net.Listener, negotiatorCfg NegotiatorConfig, router *Router, log *zap.Logger) *Server {
	return &Server{
		negotiator: NewNegotiator(listener, negotiatorCfg, log),
		router:     router,
		log:        log,
	}
}

// Run serves both protocol streams until ctx is cancelled or either
// server errors.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	http1Server := &http.Server{
		Handler:     s.router,
		IdleTimeout: s.negotiator.IdleTimeout(),
		BaseContext: func(net.Listener) context.Context { return ctx },
		ConnContext: stampProtocolContext,
	}
	h2Server := &http2.Server{IdleTimeout: s.negotiator.IdleTimeout()}
	http2Server := &http.Server{
		Handler:     h2c.NewHandler(s.router, h2Server),
		IdleTimeout: s.negotiator.IdleTimeout(),
		BaseContext: func(net.Listener) context.Context { return ctx },
		ConnContext: stampProtocolContext,
	}

	group.Go(func() error { return s.negotiator.Serve(ctx) })
	group.Go(func() error { return serveUntilCancel(ctx, http1Server, s.negotiator.HTTP1Listener()) })
	group.Go(func() error { return serveUntilCancel(ctx, http2Server, s.negotiator.HTTP2Listener()) })

	return group.Wait()
}

// protocolContextKey is the ConnContext key every Route handler can use
// to recover which Negotiator listener a request arrived over, via
// ProtocolFromContext — this is what lets a GRPC_PROXY Route pick
// between grpcproxy's raw byte copy (only valid pre-Hijack, on the
// HTTP/1 listener) and h2proxy's reframing (the HTTP/2 listener, where
// the connection is already demultiplexed by the time a handler runs).
type protocolContextKey struct{}

func stampProtocolContext(ctx context.Context, c net.Conn) context.Context {
	if gc, ok := c.(*Conn); ok {
		return context.WithValue(ctx, protocolContextKey{}, gc.Protocol)
	}
	return ctx
}

// ProtocolFromContext returns the Protocol a request's underlying
// connection negotiated as, per stampProtocolContext.
func ProtocolFromContext(ctx context.Context) (Protocol, bool) {
	p, ok := ctx.Value(protocolContextKey{}).(Protocol)
	return p, ok
}

func serveUntilCancel(ctx context.Context, server *http.Server, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
