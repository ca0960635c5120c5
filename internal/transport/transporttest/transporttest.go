// Package transporttest provides an in-memory chat.Conn and Dialer for
// exercising transport consumers without a network.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omochice/room-chat-client/internal/chat"
)

// ErrConnClosed is returned by Conn operations after Close.
var ErrConnClosed = errors.New("use of closed connection")

// Conn is a scripted chat.Conn. Frames pushed with Deliver are returned by
// Read in order; frames passed to Write are recorded.
type Conn struct {
	inbound chan []byte
	fail    chan error
	closed  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	written   [][]byte
	writeErr  error
}

// NewConn returns an open Conn.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 64),
		fail:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// Read implements chat.Conn.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrConnClosed
	case data := <-c.inbound:
		return data, nil
	case err := <-c.fail:
		return nil, err
	}
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	c.written = append(c.written, copied)
	return nil
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return "pipe"
}

// Deliver queues a frame for Read.
func (c *Conn) Deliver(frame []byte) {
	c.inbound <- frame
}

// DeliverJSON marshals v and queues it for Read.
func (c *Conn) DeliverJSON(t testing.TB, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.Deliver(data)
}

// Drop makes the pending Read fail with err, simulating the peer going away.
// io.EOF means a clean close.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = io.EOF
	}
	select {
	case c.fail <- err:
	default:
	}
}

// FailWrites makes every later Write return err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Written returns a copy of every frame written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// WrittenJSON decodes every written frame into generic maps.
func (c *Conn) WrittenJSON(t testing.TB) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, frame := range c.Written() {
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err != nil {
			t.Fatalf("written frame is not json: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var _ chat.Conn = (*Conn)(nil)

// Dialer hands out Conns. It can be told to fail or to hold dials until
// released.
type Dialer struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	urls    []string
	dialed  chan *Conn
	ignoreC bool
}

// NewDialer returns a Dialer that succeeds immediately.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 16)}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	gate, err, ignoreCancel := d.gate, d.err, d.ignoreC
	d.mu.Unlock()

	if gate != nil {
		if ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	conn := NewConn()
	d.dialed <- conn
	return conn, nil
}

// FailWith makes later dials return err.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Hold blocks later dials until Release. When ignoreCancel is set a held
// dial also outlives its context, like a connect that completes after the
// caller gave up.
func (d *Dialer) Hold(ignoreCancel bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	d.ignoreC = ignoreCancel
}

// Release unblocks held dials.
func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// URLs returns every url dialed so far.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Next waits for the next successfully dialed Conn.
func (d *Dialer) Next(t testing.TB) *Conn {
	t.Helper()
	select {
	case conn := <-d.dialed:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial")
		return nil
	}
}
