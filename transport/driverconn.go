package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/grampelberg/laminar/driver"
)

// WriterConnector adapts an Endpoint into a driver.Connector: every call to
// Connect dials a fresh authenticated connection to addr and opens the one
// unidirectional stream the driver writes frames on.
type WriterConnector struct {
	endpoint       *Endpoint
	addr           string
	connectTimeout time.Duration
}

// NewWriterConnector builds a driver.Connector bound to addr.
func NewWriterConnector(endpoint *Endpoint, addr string, connectTimeout time.Duration) *WriterConnector {
	return &WriterConnector{endpoint: endpoint, addr: addr, connectTimeout: connectTimeout}
}

// Connect implements driver.Connector.
func (c *WriterConnector) Connect(ctx context.Context) (driver.Stream, error) {
	conn, _, err := c.endpoint.Dial(ctx, c.addr, c.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial for driver: %w", err)
	}

	ws, err := conn.qconn.OpenUniStreamSync(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("transport: open driver stream: %w", err)
	}

	return &streamAdapter{conn: conn, stream: ws}, nil
}

// streamAdapter implements driver.Stream on top of a quic.SendStream plus
// the Connection it belongs to, so the whole QUIC connection is torn down
// once the stream is finished or the peer resets it.
type streamAdapter struct {
	conn   *Connection
	stream *quic.SendStream
}

func (s *streamAdapter) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Finish closes the send side, signaling a graceful end of stream to the
// reader.
func (s *streamAdapter) Finish() error {
	return s.stream.Close()
}

// Stopped blocks until the stream's context is done — which quic-go closes
// both when the local side finishes the stream and when the peer resets
// it — or ctx is canceled first.
func (s *streamAdapter) Stopped(ctx context.Context) error {
	select {
	case <-s.stream.Context().Done():
		_ = s.conn.Close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
