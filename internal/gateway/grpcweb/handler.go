// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package grpcweb

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/trac-platform/trac/internal/gateway"
)

// Handler bridges a browser's gRPC-Web request to a plain gRPC call
// against a Target. A gRPC message frame and a gRPC-Web message frame
// share the exact same wire shape (1-byte flags, 4-byte big-endian
// length, payload) — gRPC-Web layers only a content-type rewrite and an
// in-body trailer frame on top of plain gRPC — so request and response
// message bodies are forwarded byte-for-byte; only the headers, and the
// trailers gRPC delivers out-of-band, need translating.
type Handler struct {
	target    gateway.Target
	transport *http2.Transport
	log       *zap.Logger
}

// New builds a Handler forwarding gRPC-Web requests to target over h2c.
func New(target gateway.Target, log *zap.Logger) *Handler {
	return &Handler{
		target: target,
		transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(_ context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return net.DialTimeout(network, addr, 10*time.Second)
			},
		},
		log: log,
	}
}

// ServeHTTP implements http.Handler. The request path is the gRPC full
// method name ("/package.Service/Method"), matching a native gRPC
// client's own path convention.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !IsGRPCWebRequest(r) {
		http.Error(w, "expected a gRPC-Web request", http.StatusUnsupportedMediaType)
		return
	}

	webContentType := r.Header.Get("Content-Type")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "http://"+h.target.Addr()+r.URL.Path, r.Body)
	if err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	req.Header.Set("Content-Type", ToGRPCContentType(webContentType))
	req.Header.Set("TE", "trailers")
	for k, vs := range r.Header {
		if k == "Content-Type" || k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.transport.RoundTrip(req)
	if err != nil {
		h.log.Warn("grpc-web upstream error", zap.String("target", h.target.Addr()), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", ToWebContentType(webContentType))
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Debug("grpc-web response copy ended early", zap.Error(err))
		return
	}

	// Trailers arrive out-of-band over HTTP/2; gRPC-Web clients expect
	// them folded into the body as a final trailer-flagged frame.
	_ = WriteFrame(w, EncodeTrailers(resp.Trailer))
}
