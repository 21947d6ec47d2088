// Package sink implements the reader-side protocol handler: per accepted
// connection, a loop that accepts unidirectional streams and runs a
// Session (see session.go) to completion for each one. Grounded on
// Atsika-aznet's Listener.Accept shape, generalized from a bidirectional
// net.Conn accept loop to a stream-within-connection accept loop.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/grampelberg/laminar/metrics"
	"github.com/grampelberg/laminar/wire"
)

// StreamSource yields a writer's unidirectional streams, in the order the
// writer opened them, until the connection closes.
type StreamSource interface {
	AcceptStream(ctx context.Context) (io.Reader, error)
}

// Identity is the long-lived peer public key revealed by the transport's
// handshake. It is a distinct type from transport.Identity so this
// package stays testable without a real transport.Connection; callers
// convert with a plain slice conversion, since both are []byte underneath.
type Identity []byte

func (id Identity) String() string {
	return fmt.Sprintf("%x", []byte(id))
}

// ErrConnectionClosed is a StreamSource's signal that the connection
// ended cleanly, no stream was available, and the accept loop should
// stop without error.
var ErrConnectionClosed = errors.New("sink: connection closed")

// SessionFunc receives a freshly constructed Session before it starts
// running, so the caller can consume Session.Events() concurrently with
// the blocking call to Session.Run.
type SessionFunc func(ctx context.Context, s *Session)

var activeStreams int64

// RunConnection accepts streams from conn until the connection closes,
// running one Session to completion per stream before accepting the
// next. It returns nil on a clean connection close, and a wrapped error
// for anything else — including a Claims decode failure, which the
// protocol treats as an accept-level fault rather than a recoverable
// per-stream error.
func RunConnection(ctx context.Context, conn StreamSource, observed Identity, m metrics.Recorder, spawn SessionFunc, opts ...SessionOption) error {
	if m == nil {
		m = metrics.Noop{}
	}
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if isCleanClose(err) {
				return nil
			}
			return fmt.Errorf("sink: accept stream: %w", err)
		}

		if err := acceptStream(ctx, stream, observed, m, spawn, opts); err != nil {
			return err
		}
	}
}

func acceptStream(ctx context.Context, stream io.Reader, observed Identity, m metrics.Recorder, spawn SessionFunc, opts []SessionOption) error {
	m.Inc("sink.accept_stream", 1)
	n := atomic.AddInt64(&activeStreams, 1)
	m.Set("sink.active_streams", float64(n))
	defer func() {
		n := atomic.AddInt64(&activeStreams, -1)
		m.Set("sink.active_streams", float64(n))
	}()

	payload, err := wire.ReadFrame(stream)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// A stream closed before its handshake frame arrived is a
			// protocol fault, not a per-stream hiccup: it ends the whole
			// connection rather than just being skipped.
			return fmt.Errorf("sink: missing handshake frame: %w", io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("sink: handshake: %w", err)
	}

	claims, err := wire.DecodeClaims(payload)
	if err != nil {
		return fmt.Errorf("sink: decode claims: %w", err)
	}

	session := NewSession(observed, claims, m, opts...)
	spawn(ctx, session)
	session.Run(ctx, stream)
	return nil
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed)
}
