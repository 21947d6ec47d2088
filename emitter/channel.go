// Package emitter implements the lossy, non-blocking broadcast channel
// that sits between the tracing layer and the driver. It is intentionally
// unordered-tolerant: a disconnected driver must never apply backpressure
// to the instrumentation call site.
package emitter

import (
	"sync"

	"github.com/grampelberg/laminar/wire"
)

// Outcome tags what Recv observed.
type Outcome int

const (
	// Delivered means Record is populated.
	Delivered Outcome = iota
	// Lagged means Skipped records were dropped before this receive;
	// Record is nil, and the next Recv returns the next buffered record.
	Lagged
	// Closed means all senders have gone away and the buffer is drained.
	Closed
)

// Result is the value produced by one Recv call.
type Result struct {
	Outcome Outcome
	Record  *wire.Record
	Skipped uint64
}

// Channel is a single-producer/single-consumer bounded ring buffer of
// *wire.Record. Send never blocks: once the buffer is full, the oldest
// undelivered record is evicted and the lag counter advances.
type Channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []*wire.Record
	head   int
	size   int
	cap    int
	lagged uint64
	closed bool
}

// New creates a Channel with the given buffer capacity. Capacity must be
// at least 1.
func New(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	c := &Channel{buf: make([]*wire.Record, capacity), cap: capacity}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send enqueues r without blocking. If the buffer is full, the oldest
// record is dropped and the lag counter increments by one; Send still
// reports success (there is no failure mode visible to the producer).
func (c *Channel) Send(r *wire.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.size == c.cap {
		// Evict the oldest undelivered record.
		c.head = (c.head + 1) % c.cap
		c.size--
		c.lagged++
	}
	idx := (c.head + c.size) % c.cap
	c.buf[idx] = r
	c.size++
	c.cond.Signal()
}

// Recv blocks until a record is available, the channel lags, or it is
// closed and drained.
func (c *Channel) Recv() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.size == 0 && !c.closed {
		c.cond.Wait()
	}

	if c.lagged > 0 {
		n := c.lagged
		c.lagged = 0
		return Result{Outcome: Lagged, Skipped: n}
	}

	if c.size == 0 {
		return Result{Outcome: Closed}
	}

	r := c.buf[c.head]
	c.buf[c.head] = nil
	c.head = (c.head + 1) % c.cap
	c.size--
	return Result{Outcome: Delivered, Record: r}
}

// Close marks the channel closed. Pending records already buffered are
// still delivered; once drained, Recv reports Closed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// Len reports the number of buffered, undelivered records.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// IsEmpty reports whether the channel currently has no buffered records.
func (c *Channel) IsEmpty() bool { return c.Len() == 0 }

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Lagged reports the count of records dropped by overflow since Recv last
// returned a Lagged result; that Recv resets the count to zero.
func (c *Channel) Lagged() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lagged
}
