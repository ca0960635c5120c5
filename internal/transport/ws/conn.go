// Package ws provides the default websocket transport on coder/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/coder/websocket"

	"github.com/omochice/room-chat-client/internal/chat"
)

// Conn adapts coder/websocket to chat.Conn interface.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConn wraps a websocket.Conn with empty remote address.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements chat.Conn.
// A normal or going-away close from the server is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
// Frames are JSON so they go out as text messages.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

var _ chat.Conn = (*Conn)(nil)

// Dialer opens coder/websocket connections.
type Dialer struct {
	// Header is sent with the opening handshake.
	Header http.Header
	// HTTPClient overrides the client used for the handshake.
	HTTPClient *http.Client
	// ReadLimit caps a single inbound frame. Zero keeps the library default.
	ReadLimit int64
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.Header,
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return NewConnWithAddr(conn, url), nil
}
