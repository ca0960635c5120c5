// Package devserver is an in-process room chat server speaking the same
// directory API and websocket protocol as the production server. It backs
// the integration tests and the devserver command.
package devserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/omochice/room-chat-client/pkg/protocol"
)

const (
	writeWait    = 5 * time.Second
	outgoingSize = 32
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock sets the clock used for message timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// Server serves the room directory and the /ws endpoint.
type Server struct {
	hub      *Hub
	logger   *slog.Logger
	clock    func() time.Time
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	conns    map[*websocket.Conn]struct{}
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server. Use Handler to mount it or Start to listen.
func New(opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.hub = NewHub(s.clock)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("POST /api/rooms/join", s.handleJoinRoom)
	s.mux.HandleFunc("POST /api/rooms/password", s.handleUpdatePassword)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

// Hub exposes the room registry.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on address and serves until Stop.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("dev server started", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to serve: %w", err)
	case <-s.quit:
		return nil
	}
}

// Stop closes the listener and every websocket connection.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)

		s.mu.Lock()
		srv := s.server
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()

		if srv != nil {
			_ = srv.Close()
		}
		s.wg.Wait()
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	c := &client{id: uuid.NewString(), outgoing: make(chan []byte, outgoingSize)}
	s.hub.Register(c)
	go s.serveClient(conn, c)
}

func (s *Server) serveClient(conn *websocket.Conn, c *client) {
	defer s.wg.Done()
	logger := s.logger.With("user_id", c.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for data := range c.outgoing {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("failed to send frame", "error", err)
				_ = conn.Close()
				// drain so broadcasters never block on a dead client
				for range c.outgoing {
				}
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	defer func() {
		username := c.username
		if roomID := s.hub.Unregister(c); roomID != "" {
			s.broadcast(roomID, protocol.ServerMessage{
				Type: protocol.MessageTypeUserLeft, UserID: c.id, Username: username, Timestamp: s.now(),
			}, nil)
		}
		close(c.outgoing)
		<-writerDone
		_ = conn.Close()

		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error", "error", err)
			}
			return
		}
		s.handleFrame(c, data, logger)
	}
}

func (s *Server) handleFrame(c *client, data []byte, logger *slog.Logger) {
	var msg protocol.ClientMessage
	if err := msg.Decode(data); err != nil {
		s.reply(c, protocol.ServerMessage{Type: protocol.MessageTypeError, Message: "invalid message format: " + err.Error()})
		return
	}

	switch msg.Type {
	case protocol.MessageTypeJoin:
		left, err := s.hub.Join(c, msg.RoomID, msg.Username, msg.Password)
		if err != nil {
			logger.Info("join refused", "room_id", msg.RoomID, "reason", err)
			s.reply(c, protocol.ServerMessage{Type: protocol.MessageTypeError, Message: err.Error()})
			return
		}
		if left != "" {
			s.broadcast(left, protocol.ServerMessage{
				Type: protocol.MessageTypeUserLeft, UserID: c.id, Username: msg.Username, Timestamp: s.now(),
			}, c)
		}
		logger.Info("user joined", "room_id", msg.RoomID, "username", msg.Username)
		s.reply(c, protocol.ServerMessage{Type: protocol.MessageTypeJoined, RoomID: msg.RoomID, UserID: c.id})
		s.broadcast(msg.RoomID, protocol.ServerMessage{
			Type: protocol.MessageTypeUserJoined, UserID: c.id, Username: msg.Username, Timestamp: s.now(),
		}, c)
	case protocol.MessageTypeChat:
		roomID := s.hub.RoomOf(c)
		if roomID == "" {
			s.reply(c, protocol.ServerMessage{Type: protocol.MessageTypeError, Message: "join a room first"})
			return
		}
		s.broadcast(roomID, protocol.ServerMessage{
			Type: protocol.MessageTypeChat, UserID: c.id, Username: msg.Username, Content: msg.Content, Timestamp: s.now(),
		}, nil)
	case protocol.MessageTypePing:
		s.reply(c, protocol.ServerMessage{Type: protocol.MessageTypePong})
	default:
		s.reply(c, protocol.ServerMessage{Type: protocol.MessageTypeError, Message: "unsupported message type"})
	}
}

func (s *Server) broadcast(roomID string, msg protocol.ServerMessage, skip *client) {
	data, err := msg.Encode()
	if err != nil {
		s.logger.Error("failed to encode broadcast", "error", err)
		return
	}
	s.hub.Broadcast(roomID, data, skip)
}

// reply is only called from the client's read loop, before outgoing is
// closed.
func (s *Server) reply(c *client, msg protocol.ServerMessage) {
	data, err := msg.Encode()
	if err != nil {
		s.logger.Error("failed to encode reply", "error", err)
		return
	}
	select {
	case c.outgoing <- data:
	default:
		s.logger.Warn("client queue full, dropping reply", "user_id", c.id)
	}
}

func (s *Server) now() *time.Time {
	t := s.clock().UTC()
	return &t
}
