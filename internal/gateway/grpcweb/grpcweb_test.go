// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package grpcweb_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/gateway/grpcweb"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, grpcweb.WriteFrame(&buf, grpcweb.Frame{Payload: []byte("hello")}))

	f, err := grpcweb.ReadFrame(&buf)
	require.NoError(t, err)
	require.False(t, f.Trailer)
	require.Equal(t, "hello", string(f.Payload))
}

func TestTrailerFrameSetsFlag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, grpcweb.WriteFrame(&buf, grpcweb.Frame{Trailer: true, Payload: []byte("grpc-status: 0\r\n")}))

	raw := buf.Bytes()
	require.NotZero(t, raw[0]&0x80)

	f, err := grpcweb.ReadFrame(&buf)
	require.NoError(t, err)
	require.True(t, f.Trailer)
}

func TestContentTypeTranslation(t *testing.T) {
	require.Equal(t, "application/grpc+proto", grpcweb.ToGRPCContentType("application/grpc-web+proto"))
	require.Equal(t, "application/grpc-web+proto", grpcweb.ToWebContentType("application/grpc+proto"))
}

func TestIsGRPCWebRequest(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/svc.Thing/Do", nil)
	require.NoError(t, err)
	r.Header.Set("Content-Type", "application/grpc-web+proto")
	require.True(t, grpcweb.IsGRPCWebRequest(r))

	r.Header.Set("Content-Type", "application/json")
	require.False(t, grpcweb.IsGRPCWebRequest(r))
}

func TestEncodeTrailersFormatsHeaderLines(t *testing.T) {
	h := http.Header{}
	h.Set("Grpc-Status", "0")
	frame := grpcweb.EncodeTrailers(h)
	require.True(t, frame.Trailer)
	require.Contains(t, string(frame.Payload), "grpc-status: 0\r\n")
}
