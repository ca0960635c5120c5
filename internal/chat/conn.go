// Package chat holds the domain types shared by the room session core:
// the active room snapshot, stored events, notification severities, the
// error taxonomy and the transport-agnostic connection interface.
package chat

import "context"

// Conn abstracts one bidirectional connection to the room server.
// This interface isolates websocket library details from session logic.
type Conn interface {
	// Read reads a single message frame.
	// Returns io.EOF when the peer closed the connection cleanly.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
