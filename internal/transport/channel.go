// Package transport wraps one connection attempt to the room server and its
// lifetime: open, send, an ordered inbound event stream, and close.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/omochice/room-chat-client/internal/chat"
)

// Dialer opens a connection to a websocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (chat.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (chat.Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (chat.Conn, error) {
	return f(ctx, url)
}

// EventKind identifies a lifecycle or data event from a Channel.
type EventKind int

const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventClose
	EventError
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered on Channel.Events. Close and Error are terminal: the
// stream ends right after either.
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     error
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == EventClose || e.Kind == EventError
}

type state int

const (
	stateNew state = iota
	stateOpening
	stateOpen
	stateClosed
)

// Channel is a single connection attempt. It is not reusable: open a new
// Channel for every attempt.
type Channel struct {
	dialer Dialer
	logger *slog.Logger

	mu     sync.Mutex
	state  state
	conn   chat.Conn
	cancel context.CancelFunc

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewChannel creates an unopened Channel using dialer.
func NewChannel(dialer Dialer, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		dialer: dialer,
		logger: logger,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the inbound stream. Frames arrive in the order the
// connection delivered them. The channel is closed after a terminal event
// or after Close.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Open starts connecting to url in the background and returns immediately.
// The outcome is reported as EventOpen or a terminal event.
func (c *Channel) Open(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		return fmt.Errorf("channel already used")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = stateOpening
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx, url)
	return nil
}

// IsOpen reports whether the channel is in the open phase.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Send writes one frame. It fails with chat.ErrNotConnected outside the
// open phase.
func (c *Channel) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == stateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return chat.ErrNotConnected
	}
	if err := conn.Write(ctx, payload); err != nil {
		return &chat.TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close tears the connection down. Calling it more than once, or on a
// channel that already failed, is a no-op. It waits for the reader to exit.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		conn := c.conn
		cancel := c.cancel
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			if cerr := conn.Close(); cerr != nil {
				err = fmt.Errorf("failed to close connection: %w", cerr)
			}
		}
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()

		c.mu.Lock()
		if c.cancel == nil {
			// never opened, nobody else will close the stream
			close(c.events)
		}
		c.mu.Unlock()
	})
	return err
}

func (c *Channel) run(ctx context.Context, url string) {
	defer c.wg.Done()
	defer close(c.events)

	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		c.emit(Event{Kind: EventError, Err: &chat.TransportError{Op: "dial", Err: err}})
		return
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = stateOpen
	c.mu.Unlock()

	c.logger.Debug("transport open", "remote", conn.RemoteAddr())
	if !c.emit(Event{Kind: EventOpen}) {
		return
	}

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}
		if !c.emit(Event{Kind: EventMessage, Payload: data}) {
			return
		}
	}
}

func (c *Channel) finish(err error) {
	c.mu.Lock()
	closedLocally := c.state == stateClosed
	c.state = stateClosed
	c.mu.Unlock()

	switch {
	case closedLocally:
		c.emit(Event{Kind: EventClose})
	case errors.Is(err, io.EOF):
		c.logger.Debug("transport closed by peer")
		c.emit(Event{Kind: EventClose})
	default:
		c.logger.Debug("transport read failed", "error", err)
		c.emit(Event{Kind: EventError, Err: &chat.TransportError{Op: "read", Err: err}})
	}
}

// emit delivers ev unless the channel was closed locally. It reports false
// when the reader should stop.
func (c *Channel) emit(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}
