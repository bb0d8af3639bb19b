// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
)

// Protocol is the wire protocol a Negotiator detected on a connection.
type Protocol int

// Protocols a Negotiator distinguishes.
const (
	ProtoHTTP1 Protocol = iota
	ProtoHTTP2
)

const (
	// DefaultIdleTimeout is the per-connection idle timeout applied when
	// a listener's config leaves it unset.
	DefaultIdleTimeout = 60 * time.Second
	// MaxIdleTimeout bounds how long an idle connection may be held open
	// regardless of configuration.
	MaxIdleTimeout = time.Hour
)

// Conn wraps a net.Conn with the metadata the rest of the gateway needs:
// a stable per-connection id (for logging/tracing across proxy hops) and
// the protocol the Negotiator detected.
type Conn struct {
	net.Conn
	ID       string
	Protocol Protocol
}

// Negotiator splits an incoming listener into an HTTP/2 prior-knowledge
// gRPC stream and an HTTP/1 stream (which also carries h2c Upgrade
// requests). It is a thin wrapper over cmux: cmux's own multi-pattern
// matching — tried in registration order over a buffered peek of the
// connection's leading bytes — already does exactly this sniff, so the
// negotiator only adds the per-connection id and the idle-timeout clamp
// on top of it.
type Negotiator struct {
	mux         cmux.CMux
	log         *zap.Logger
	idleTimeout time.Duration
}

// NegotiatorConfig configures a Negotiator.
type NegotiatorConfig struct {
	IdleTimeout time.Duration
	Keepalive   time.Duration
}

// DefaultNegotiatorConfig returns the default idle timeout and a
// Keepalive of 30s. NewNegotiator reads only IdleTimeout; the Keepalive
// duration is not applied to accepted connections.
func DefaultNegotiatorConfig() NegotiatorConfig {
	return NegotiatorConfig{IdleTimeout: DefaultIdleTimeout, Keepalive: 30 * time.Second}
}

func (c NegotiatorConfig) clamp() time.Duration {
	if c.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	if c.IdleTimeout > MaxIdleTimeout {
		return MaxIdleTimeout
	}
	return c.IdleTimeout
}

// NewNegotiator wraps listener with a cmux splitter. HTTP2MatchHeaderFieldSendSettings
// detects HTTP/2-prior-knowledge connections (used by gRPC and h2c
// clients that skip the HTTP/1 Upgrade dance); everything else falls
// through to the HTTP/1 stream, including HTTP/1.1 requests carrying an
// h2c Upgrade header, which net/http's own server handles.
func NewNegotiator(listener net.Listener, cfg NegotiatorConfig, log *zap.Logger) *Negotiator {
	m := cmux.New(listener)
	return &Negotiator{mux: m, log: log, idleTimeout: cfg.clamp()}
}

// HTTP2Listener returns the sub-listener carrying HTTP/2 prior-knowledge
// connections (plain gRPC clients).
func (n *Negotiator) HTTP2Listener() net.Listener {
	return n.wrap(n.mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc")), ProtoHTTP2)
}

// HTTP1Listener returns the sub-listener carrying everything else: plain
// HTTP/1.1, and HTTP/1.1 requests upgrading to h2c.
func (n *Negotiator) HTTP1Listener() net.Listener {
	return n.wrap(n.mux.Match(cmux.Any()), ProtoHTTP1)
}

// IdleTimeout is the clamped per-connection idle timeout servers built
// over this negotiator's listeners should configure.
func (n *Negotiator) IdleTimeout() time.Duration {
	return n.idleTimeout
}

// Serve runs the underlying cmux dispatch loop. It blocks until ctx is
// done or the root listener errors.
func (n *Negotiator) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- n.mux.Serve() }()
	select {
	case <-ctx.Done():
		n.mux.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (n *Negotiator) wrap(inner net.Listener, proto Protocol) net.Listener {
	return &negotiatedListener{Listener: inner, n: n, proto: proto}
}

type negotiatedListener struct {
	net.Listener
	n     *Negotiator
	proto Protocol
}

func (l *negotiatedListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	id, err := newConnID()
	if err != nil {
		id = "unknown"
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
	}
	l.n.log.Debug("accepted connection", zap.String("conn_id", id), zap.Int("protocol", int(l.proto)))
	return &Conn{Conn: c, ID: id, Protocol: l.proto}, nil
}

func newConnID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// String implements fmt.Stringer for log fields.
func (p Protocol) String() string {
	switch p {
	case ProtoHTTP1:
		return "http/1.1"
	case ProtoHTTP2:
		return "h2"
	default:
		return fmt.Sprintf("proto(%d)", int(p))
	}
}
