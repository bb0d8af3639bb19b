// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package grpcproxy_test

import (
	"bufio"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trac-platform/trac/internal/gateway"
	"github.com/trac-platform/trac/internal/gateway/grpcproxy"
)

func TestServeHTTPHijacksAndProxiesRawBytes(t *testing.T) {
	upstreamLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer upstreamLn.Close()

	go func() {
		conn, err := upstreamLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		_, _ = conn.Read(buf)
		if string(buf) == "ping" {
			_, _ = conn.Write([]byte("pong"))
		}
	}()

	host, portStr, err := net.SplitHostPort(upstreamLn.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	proxy := grpcproxy.New(gateway.Target{Host: host, Port: port}, zaptest.NewLogger(t))
	gwServer := httptest.NewServer(proxy)
	defer gwServer.Close()

	conn, err := net.Dial("tcp", gwServer.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("POST / HTTP/1.1\r\nHost: gateway\r\nContent-Length: 0\r\n\r\nping"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply := make([]byte, 4)
	_, err = bufio.NewReader(conn).Read(reply)
	require.NoError(t, err)
	require.Equal(t, "pong", string(reply))
}
