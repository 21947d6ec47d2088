// Package transport supplies the "endpoint that can open and accept
// authenticated unidirectional byte streams addressed by a long-lived
// public identity" that spec.md §1 treats as an external collaborator.
// NAT traversal itself is out of scope; this is one concrete, directly
// dialable/listenable instantiation built on quic-go, with peer identity
// established by a Noise_XX handshake (adapted from
// Atsika-aznet/crypto.go) run once per connection.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the versioned protocol identifier negotiated during the QUIC
// handshake. An incompatible version fails the transport handshake
// before any frame is read.
const ALPN = "laminar/sink/0"

var (
	// ErrUnauthorized describes a handshake that completes but reveals a
	// peer identity other than an expected pin. Endpoint pins no peer
	// identity, so nothing in this package returns it.
	ErrUnauthorized = errors.New("transport: unexpected peer identity")
)

// Endpoint is a dialable, listenable quic-go transport bound to one local
// SecretKey.
type Endpoint struct {
	key *SecretKey
	tls *tls.Config
}

// NewEndpoint builds an Endpoint using local as the long-lived identity
// for every connection it dials or accepts. TLS itself is a pass-through
// layer here (self-signed, unauthenticated): per-connection
// authentication is Noise's job, not TLS's — quic-go still requires a
// cert to set up its transport-layer encryption.
func NewEndpoint(local *SecretKey) (*Endpoint, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("transport: build tls identity: %w", err)
	}
	return &Endpoint{
		key: local,
		tls: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			NextProtos:         []string{ALPN},
			InsecureSkipVerify: true,
		},
	}, nil
}

// Connection is one authenticated peer connection, over which zero or
// more unidirectional streams are opened/accepted in sequence.
type Connection struct {
	qconn      *quic.Conn
	local      *SecretKey
	remoteAddr net.Addr
}

// RemoteAddr returns the underlying network address of the peer, as
// observed by the transport (independent of anything the peer claims).
func (c *Connection) RemoteAddr() net.Addr { return c.remoteAddr }

// Dial opens a QUIC connection to addr and runs the Noise_XX handshake
// over a dedicated bidirectional control stream, returning once the
// peer's identity has been authenticated and revealed.
func (e *Endpoint) Dial(ctx context.Context, addr string, connectTimeout time.Duration) (*Connection, Identity, error) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	qconn, err := quic.DialAddr(dialCtx, addr, e.tls, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: dial: %w", err)
	}

	control, err := qconn.OpenStreamSync(dialCtx)
	if err != nil {
		_ = qconn.CloseWithError(0, "control stream open failed")
		return nil, nil, fmt.Errorf("transport: open control stream: %w", err)
	}
	defer control.Close()

	_, peer, err := runClientHandshake(control, e.key)
	if err != nil {
		_ = qconn.CloseWithError(1, "handshake failed")
		return nil, nil, err
	}

	return &Connection{qconn: qconn, local: e.key, remoteAddr: qconn.RemoteAddr()}, peer, nil
}

// OpenStream opens a new unidirectional stream for the writer to push
// frames on. Each call corresponds to one reader-side Session.
func (c *Connection) OpenStream(ctx context.Context) (io.WriteCloser, error) {
	s, err := c.qconn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open uni stream: %w", err)
	}
	return s, nil
}

// Close terminates the connection.
func (c *Connection) Close() error {
	return c.qconn.CloseWithError(0, "closed")
}

// Listener accepts inbound connections, authenticating each via
// Noise_XX before handing it to the caller.
type Listener struct {
	ql  *quic.Listener
	key *SecretKey
}

// Listen binds addr and begins accepting QUIC connections.
func (e *Endpoint) Listen(addr string) (*Listener, error) {
	ql, err := quic.ListenAddr(addr, e.tls, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &Listener{ql: ql, key: e.key}, nil
}

// Accept blocks until a new authenticated connection arrives, or the
// listener is closed (in which case it returns the close error).
func (l *Listener) Accept(ctx context.Context) (*Connection, Identity, error) {
	qconn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, nil, err
	}

	control, err := qconn.AcceptStream(ctx)
	if err != nil {
		_ = qconn.CloseWithError(1, "control stream missing")
		return nil, nil, fmt.Errorf("transport: accept control stream: %w", err)
	}
	defer control.Close()

	_, peer, err := runServerHandshake(control, l.key)
	if err != nil {
		_ = qconn.CloseWithError(1, "handshake failed")
		return nil, nil, err
	}

	return &Connection{qconn: qconn, local: l.key, remoteAddr: qconn.RemoteAddr()}, peer, nil
}

// AcceptStream blocks until the writer opens its next unidirectional
// stream on this connection, or the connection closes, in which case it
// returns io.EOF (a clean close for sink.RunConnection).
func (c *Connection) AcceptStream(ctx context.Context) (io.Reader, error) {
	s, err := c.qconn.AcceptUniStream(ctx)
	if err != nil {
		var appErr *quic.ApplicationError
		var idleErr *quic.IdleTimeoutError
		if errors.As(err, &appErr) || errors.As(err, &idleErr) {
			return nil, io.EOF
		}
		return nil, err
	}
	return s, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ql.Close() }

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.ql.Addr() }
