// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package grpcproxy_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trac-platform/trac/internal/gateway"
	"github.com/trac-platform/trac/internal/gateway/grpcproxy"
)

func TestProxyCopiesBytesBothWays(t *testing.T) {
	upstreamLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer upstreamLn.Close()

	upstreamHost, upstreamPortStr, err := net.SplitHostPort(upstreamLn.Addr().String())
	require.NoError(t, err)
	upstreamPort, err := strconv.Atoi(upstreamPortStr)
	require.NoError(t, err)

	go func() {
		conn, err := upstreamLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("world"))
	}()

	target := gateway.Target{Host: upstreamHost, Port: upstreamPort}
	proxy := grpcproxy.New(target, zaptest.NewLogger(t))

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- proxy.Handle(ctx, serverSide) }()

	_, err = clientSide.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	require.NoError(t, clientSide.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := clientSide.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
}

func TestProxyReturnsErrorOnDialFailure(t *testing.T) {
	target := gateway.Target{Host: "127.0.0.1", Port: 1}
	proxy := grpcproxy.New(target, zaptest.NewLogger(t))

	_, client := net.Pipe()
	defer client.Close()

	err := proxy.Handle(context.Background(), client)
	require.Error(t, err)
}
