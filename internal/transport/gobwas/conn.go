// Package gobwas provides an alternate websocket transport on gobwas/ws,
// a zero-copy frame level library.
package gobwas

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/room-chat-client/internal/chat"
)

// Conn wraps net.Conn for WebSocket connections using gobwas/ws
type Conn struct {
	conn   net.Conn
	reader io.Reader
	mu     sync.Mutex // serialises frame writes, including control replies
}

// NewConn wraps a handshaken connection. br holds bytes the server sent
// right after the handshake and may be nil. Its buffered bytes are copied
// out and br is returned to the gobwas pool, so callers must not use it
// afterwards.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn, reader: conn}
	if br == nil {
		return c
	}
	if n := br.Buffered(); n > 0 {
		pending, _ := br.Peek(n)
		c.reader = io.MultiReader(bytes.NewReader(bytes.Clone(pending)), conn)
	}
	ws.PutReader(br)
	return c
}

// Read implements chat.Conn.
// Control frames are answered inline; a normal close reads as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_ = c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	rw := struct {
		io.Reader
		io.Writer
	}{c.reader, writerFunc(c.writeLocked)}

	data, _, err := wsutil.ReadServerData(rw)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			switch closed.Code {
			case ws.StatusNormalClosure, ws.StatusGoingAway, ws.StatusNoStatusRcvd:
				return nil, io.EOF
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientText(c.conn, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.mu.Unlock()
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) writeLocked(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(p)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

var _ chat.Conn = (*Conn)(nil)

// Dialer opens gobwas/ws connections.
type Dialer struct {
	// Header is sent with the opening handshake.
	Header http.Header
	// Timeout bounds the TCP connect and handshake. Zero means no limit
	// beyond the context.
	Timeout time.Duration
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, br), nil
}
