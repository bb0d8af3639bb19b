// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package grpcproxy implements the GRPC_PROXY protocol class: a raw
// bidirectional byte passthrough between a client connection and the
// upstream, so framing is never touched. ServeHTTP feeds it connections
// hijacked from requests on the HTTP/1 listener (see handler.go).
package grpcproxy

import (
	"context"
	"io"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trac-platform/trac/internal/gateway"
)

// Proxy dials target once per client connection and copies bytes in
// both directions until either side closes or ctx is cancelled.
type Proxy struct {
	target gateway.Target
	dial   func(ctx context.Context, addr string) (net.Conn, error)
	log    *zap.Logger
}

// New builds a Proxy forwarding to target using the default TCP dialer.
func New(target gateway.Target, log *zap.Logger) *Proxy {
	var d net.Dialer
	return &Proxy{target: target, dial: d.DialContext, log: log}
}

// Handle services a single accepted client connection. It returns once
// the passthrough ends; the caller is responsible for closing client on
// return if it isn't already closed.
func (p *Proxy) Handle(ctx context.Context, client net.Conn) error {
	upstream, err := p.dial(ctx, p.target.Addr())
	if err != nil {
		p.log.Warn("grpc proxy dial failed", zap.String("target", p.target.Addr()), zap.Error(err))
		return err
	}
	defer upstream.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		_, err := io.Copy(upstream, client)
		return closeWrite(upstream, err)
	})
	group.Go(func() error {
		_, err := io.Copy(client, upstream)
		return closeWrite(client, err)
	})

	go func() {
		<-ctx.Done()
		_ = client.Close()
		_ = upstream.Close()
	}()

	return group.Wait()
}

// closeWriteCloser is satisfied by *net.TCPConn; closeWrite unwraps a
// gateway.Conn before checking, and other net.Conn implementations fall
// back to a full Close.
type closeWriteCloser interface {
	CloseWrite() error
}

func closeWrite(conn net.Conn, copyErr error) error {
	if cw, ok := unwrap(conn).(closeWriteCloser); ok {
		_ = cw.CloseWrite()
	} else {
		_ = conn.Close()
	}
	return copyErr
}

func unwrap(conn net.Conn) net.Conn {
	if gc, ok := conn.(*gateway.Conn); ok {
		return gc.Conn
	}
	return conn
}
