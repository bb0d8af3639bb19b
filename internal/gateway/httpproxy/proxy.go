// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package httpproxy implements the HTTP_PROXY protocol class: a
// transparent HTTP/1 reverse proxy to a routed Target.
package httpproxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/gateway"
)

// hopByHopHeaders are stripped before forwarding a request or response,
// per RFC 7230 §6.1.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"TE",
	"Trailer",
	"Proxy-Authorization",
	"Upgrade",
}

// New builds an http.Handler that forwards every request to target,
// stripping hop-by-hop headers in both directions and returning 502 on
// any upstream dial/transport error.
func New(target gateway.Target, log *zap.Logger) http.Handler {
	upstream := &url.URL{Scheme: schemeOrDefault(target.Scheme), Host: target.Addr()}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	baseDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		baseDirector(r)
		stripHopByHop(r.Header)
		if target.Path != "" {
			r.URL.Path = joinPath(target.Path, r.URL.Path)
		}
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		stripHopByHop(resp.Header)
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("http proxy upstream error",
			zap.String("target", upstream.Host),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	return proxy
}

func schemeOrDefault(scheme string) string {
	if scheme == "" {
		return "http"
	}
	return scheme
}

func joinPath(prefix, suffix string) string {
	if suffix == "" {
		return prefix
	}
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s%s", trimTrailingSlash(prefix), suffix)
}

func trimTrailingSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
