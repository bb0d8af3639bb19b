// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package grpcproxy

import (
	"bufio"
	"net"
	"net/http"
)

// ServeHTTP implements http.Handler so a GRPC_PROXY Route can sit in
// the same gateway.Handlers table as every other protocol class: it
// hijacks the underlying connection and falls through to Handle,
// carrying over any bytes net/http already buffered off the wire
// before the hijack.
//
// Hijacking only succeeds pre-demultiplexing, which is only true on
// the HTTP/1 listener — a connection accepted by the HTTP/2 listener
// is already shared across streams by the time a handler runs, so
// there is no single net.Conn left to hijack for one request. Callers
// (cmd/trac-gateway's newGRPCProxyHandler) pick this handler only when
// the request's negotiated protocol is HTTP/1 and fall back to
// h2proxy's reframing otherwise.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "grpc proxy requires a hijackable connection", http.StatusHTTPVersionNotSupported)
		return
	}

	conn, buf, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer conn.Close()

	c := conn
	if buf != nil && buf.Reader.Buffered() > 0 {
		c = &bufferedConn{Conn: conn, r: buf.Reader}
	}

	_ = p.Handle(r.Context(), c)
}

// bufferedConn prepends the bytes net/http had already read off the wire
// past the parsed request headers to subsequent reads, so none of them
// are lost to the passthrough.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
