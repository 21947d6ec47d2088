package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grampelberg/laminar/emitter"
	"github.com/grampelberg/laminar/wire"
)

// fakeStream records every frame written to it and lets tests simulate a
// peer-initiated stop.
type fakeStream struct {
	mu      sync.Mutex
	writes  [][]byte
	stopped chan struct{}
	finish  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{stopped: make(chan struct{})}
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	cp := append([]byte(nil), p...)
	s.writes = append(s.writes, cp)
	s.mu.Unlock()
	return len(p), nil
}

func (s *fakeStream) Finish() error {
	s.mu.Lock()
	s.finish = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Stopped(ctx context.Context) error {
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStream) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// fakeConnector hands out fakeStreams and can be toggled to fail.
type fakeConnector struct {
	mu     sync.Mutex
	fail   bool
	failE  error
	stream *fakeStream
}

func (c *fakeConnector) Connect(ctx context.Context) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, c.failE
	}
	c.stream = newFakeStream()
	return c.stream, nil
}

func TestDriverSendsHandshakeAndRecord(t *testing.T) {
	conn := &fakeConnector{}
	ch := emitter.New(4)
	d := New(conn, wire.Claims{Hostname: "h"}, ch, nil, WithRetryInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ch.Send(&wire.Record{Kind: wire.KindEvent, Message: "hello"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn.mu.Lock()
		s := conn.stream
		conn.mu.Unlock()
		if s != nil && s.frameCount() >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected handshake + record frames to be written")
}

func TestDriverReconnectsAfterPeerStop(t *testing.T) {
	conn := &fakeConnector{}
	ch := emitter.New(4)
	d := New(conn, wire.Claims{Hostname: "h"}, ch, nil, WithRetryInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.State() == Connected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if d.State() != Connected {
		t.Fatal("driver never reached Connected")
	}

	conn.mu.Lock()
	first := conn.stream
	conn.mu.Unlock()
	close(first.stopped)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn.mu.Lock()
		changed := conn.stream != first
		conn.mu.Unlock()
		if changed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected driver to reconnect with a new stream")
}

func TestDriverStopsOnEmitterClose(t *testing.T) {
	conn := &fakeConnector{}
	ch := emitter.New(4)
	// The fake peer never acknowledges the stop, so graceful shutdown runs
	// until its timeout; keep that well under the 2s wait below.
	d := New(conn, wire.Claims{Hostname: "h"}, ch, nil, WithRetryInterval(5*time.Millisecond), WithGracefulTimeout(50*time.Millisecond))

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && d.State() != Connected {
		time.Sleep(5 * time.Millisecond)
	}

	ch.Close()

	select {
	case <-done:
		if d.State() != Stopped {
			t.Fatalf("expected Stopped, got %v", d.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver never stopped after emitter close")
	}
}
