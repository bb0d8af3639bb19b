// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package h2proxy implements the framing translation a Route needs
// whenever net/http has already parsed an inbound request into an
// *http.Request — whether it arrived as HTTP/1.1 or as one stream of a
// shared HTTP/2 connection already demultiplexed by the gateway's own
// h2c server — and the Target only speaks HTTP/2 prior knowledge. The
// translation itself is handled by golang.org/x/net/http2's client
// Transport: it already turns one logical request/response into
// correctly framed HTTP/2 streams (and back) over net/http's ordinary
// abstractions, so no frame is ever built or parsed by hand here.
package h2proxy

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/trac-platform/trac/internal/gateway"
)

// New builds an http.Handler that accepts HTTP/1.1 requests and
// forwards them to target over HTTP/2 prior knowledge (h2c, since
// internal upstreams are not expected to present TLS).
func New(target gateway.Target, log *zap.Logger) http.Handler {
	upstream := &url.URL{Scheme: "http", Host: target.Addr()}

	transport := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(_ context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return net.DialTimeout(network, addr, 10*time.Second)
		},
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("h2 proxy upstream error", zap.String("target", upstream.Host), zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	return proxy
}
