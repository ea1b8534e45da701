package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"
)

// Listener accepts QUIC connections. Each accepted Conn exposes exactly
// the one bidirectional stream a higgsd client opens, matching
// original_source's single accept_bi() per connection.
type Listener struct {
	ql *quic.Listener
}

// Listen starts a QUIC listener on addr (host:port) presenting tlsConfig.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	ql, err := quic.ListenAddr(addr, tlsConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Accept blocks until a new connection arrives or ctx is done.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	c, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c}, nil
}

// Addr returns the listener's local network address.
func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

// Close shuts the listener down; in-flight connections are unaffected.
func (l *Listener) Close() error { return l.ql.Close() }

// Conn is one accepted QUIC connection.
type Conn struct {
	conn *quic.Conn
}

// AcceptStream blocks for the first bidirectional stream the peer opens.
// A session uses exactly one stream for its entire lifetime.
func (c *Conn) AcceptStream(ctx context.Context) (*quic.Stream, error) {
	return c.conn.AcceptStream(ctx)
}

// RemoteAddr returns the peer's network address, for logging.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// CloseWithError closes the underlying connection.
func (c *Conn) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	return c.conn.CloseWithError(code, reason)
}
