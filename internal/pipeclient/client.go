// Package pipeclient implements the edge's connection to the engine's
// same-host duplex stream (spec.md §4.3): a bounded drop-oldest queue fed by
// a lock-free enqueue, drained by a single background writer with a fixed
// reconnection backoff and synchronous failover hand-off. Grounded on the
// teacher's internal/proxy/websocket.go single-reader/single-writer duplex
// connection shape and internal/proxy/retry.go's backoff discipline.
package pipeclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/dqueue"
	"github.com/smartpixl/smartpixl/internal/record"
)

// Dialer opens the duplex same-host stream to the engine's pipe server.
// Concrete callers dial a unix domain socket; tests can substitute a
// net.Pipe-backed dialer.
type Dialer func(ctx context.Context) (net.Conn, error)

// FailoverSink is the destination used while the stream is unreachable
// (spec.md §4.4).
type FailoverSink interface {
	Enqueue(record.Record)
}

// Client is the edge's pipe client.
type Client struct {
	dial     Dialer
	failover FailoverSink
	queue    *dqueue.Queue[record.Record]
	wake     chan struct{}

	writeTimeout time.Duration

	connMu    sync.Mutex
	connected bool
}

// New creates a pipe client with the given queue capacity (spec.md §4.3,
// default 10000 is the caller's responsibility to pass).
func New(dial Dialer, failover FailoverSink, queueCapacity int, writeTimeout time.Duration) *Client {
	return &Client{
		dial:         dial,
		failover:     failover,
		queue:        dqueue.New[record.Record](queueCapacity),
		wake:         make(chan struct{}, 1),
		writeTimeout: writeTimeout,
	}
}

// TryEnqueue accepts rec onto the bounded queue. Always returns true in
// drop-oldest mode (spec.md §4.3 contract).
func (c *Client) TryEnqueue(rec record.Record) bool {
	ok := c.queue.Push(rec)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return ok
}

// Connected reports whether the client currently holds a live connection to
// the engine, for the /internal/health endpoint.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// QueueDepth reports the current queue length, for /internal/health.
func (c *Client) QueueDepth() int {
	return c.queue.Len()
}

// Run is the single background reader: connect, drain the queue onto the
// stream, reconnect with backoff on failure, until stop is closed.
func (c *Client) Run(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("pipeclient: writer panicked, exiting")
		}
	}()

	attempt := 0
	for {
		select {
		case <-stop:
			// Not currently connected (a live connection drains itself in
			// serve's own stop branch below): whichever destination is
			// available right now is the failover writer.
			c.drainToFailover()
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.setConnected(false)
			c.drainToFailover()
			if !c.backoffOrStop(ctx, stop, attempt) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		c.setConnected(true)
		c.serve(ctx, conn, stop)
		c.setConnected(false)
	}
}

func (c *Client) backoffOrStop(ctx context.Context, stop <-chan struct{}, attempt int) bool {
	d := backoffFor(attempt)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// serve writes queued records to conn, one JSON line per record, until the
// connection fails or stop is signalled. On write failure the connection is
// closed and the function returns so Run can reconnect.
func (c *Client) serve(ctx context.Context, conn net.Conn, stop <-chan struct{}) {
	defer conn.Close()
	bw := bufio.NewWriter(conn)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		for {
			rec, ok := c.queue.Pop()
			if !ok {
				break
			}
			if err := c.writeRecord(bw, conn, rec); err != nil {
				log.Warn().Err(err).Msg("pipeclient: write failed, falling back to failover")
				c.drainToFailover()
				return
			}
		}

		select {
		case <-stop:
			// Shut down while the stream is up: drain the remainder onto it
			// rather than the failover writer (spec.md §4.3).
			for {
				rec, ok := c.queue.Pop()
				if !ok {
					return
				}
				if err := c.writeRecord(bw, conn, rec); err != nil {
					c.drainToFailover()
					return
				}
			}
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-ticker.C:
		}
	}
}

func (c *Client) writeRecord(bw *bufio.Writer, conn net.Conn, rec record.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("pipeclient: marshal: %w", err)
	}
	if c.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := bw.Write(line); err != nil {
		return fmt.Errorf("pipeclient: write: %w", err)
	}
	if err := bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("pipeclient: write: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("pipeclient: flush: %w", err)
	}
	return nil
}

func (c *Client) drainToFailover() {
	c.drainTo(c.failover)
}

// drainTo empties the queue into sink (or discards if sink is nil, used on
// final shutdown drain when neither destination is meaningfully available).
func (c *Client) drainTo(sink FailoverSink) {
	for {
		rec, ok := c.queue.Pop()
		if !ok {
			return
		}
		if sink != nil {
			sink.Enqueue(rec)
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}
