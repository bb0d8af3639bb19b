// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package grpcweb implements the GRPC_WEB protocol class: translating
// a gRPC-Web request (content-type application/grpc-web(+proto|+json),
// length-prefixed-message frames, trailers folded into the body) into
// a plain gRPC call and back.
//
// grpc-ecosystem's own grpc-gateway runtime package (already wired for
// restproxy) and tmc/grpc-websocket-proxy both assume a generated
// proto.Message per method and a streaming websocket bridge; this
// system's messages are opaque JSON-described blobs carried over unary
// calls, so neither fits here unmodified. Message frames are forwarded
// to the upstream over http2.Transport without being parsed; this
// package adds the gRPC-Web-specific content-type rewrite and the
// trailer folding, with its own LPM frame reader and writer below.
package grpcweb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ContentType prefixes identifying a gRPC-Web request.
const (
	webContentTypePrefix  = "application/grpc-web"
	grpcContentTypePrefix = "application/grpc"
)

// trailerFlag is set on an LPM frame's leading flags byte to mark it as
// carrying trailers rather than a message.
const trailerFlag = 0x80

// IsGRPCWebRequest reports whether r's content type names the gRPC-Web
// protocol.
func IsGRPCWebRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), webContentTypePrefix)
}

// ToGRPCContentType rewrites a gRPC-Web content type ("application/grpc-web"
// or "application/grpc-web+proto"/"+json") to its plain-gRPC equivalent.
func ToGRPCContentType(webContentType string) string {
	suffix := strings.TrimPrefix(webContentType, webContentTypePrefix)
	return grpcContentTypePrefix + suffix
}

// ToWebContentType is the inverse of ToGRPCContentType, used when
// writing the response back to the browser client.
func ToWebContentType(grpcContentType string) string {
	suffix := strings.TrimPrefix(grpcContentType, grpcContentTypePrefix)
	return webContentTypePrefix + suffix
}

// Frame is one length-prefixed-message frame: a 1-byte flags field, a
// 4-byte big-endian length, and the payload.
type Frame struct {
	Trailer bool
	Payload []byte
}

// ReadFrame reads a single LPM frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(header[1:5])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Trailer: header[0]&trailerFlag != 0, Payload: payload}, nil
}

// WriteFrame writes a single LPM frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	var header [5]byte
	if f.Trailer {
		header[0] = trailerFlag
	}
	binary.BigEndian.PutUint32(header[1:5], uint32(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// EncodeTrailers renders HTTP trailers as the body of a trailer LPM
// frame: "key: value\r\n" pairs, the same wire shape gRPC-Web clients
// expect.
func EncodeTrailers(h http.Header) Frame {
	var buf bytes.Buffer
	for key, values := range h {
		for _, value := range values {
			fmt.Fprintf(&buf, "%s: %s\r\n", strings.ToLower(key), value)
		}
	}
	return Frame{Trailer: true, Payload: buf.Bytes()}
}
