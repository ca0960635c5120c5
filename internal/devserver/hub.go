package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errRoomNotFound     = errors.New("room not found")
	errPasswordRequired = errors.New("this room requires a password")
	errWrongPassword    = errors.New("invalid password")
	errEmptyName        = errors.New("room name must not be empty")
	errEmptyPassword    = errors.New("password must not be empty")
)

// client is one websocket connection. It belongs to at most one room.
type client struct {
	id       string
	username string
	roomID   string
	outgoing chan []byte
}

type room struct {
	id        string
	name      string
	password  string
	createdAt time.Time
	clients   map[*client]struct{}
}

// roomInfo mirrors the directory listing entry.
type roomInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"has_password"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Hub manages rooms and the clients joined to them.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	clients map[*client]struct{}
	clock   func() time.Time
}

// NewHub creates an empty Hub.
func NewHub(clock func() time.Time) *Hub {
	if clock == nil {
		clock = time.Now
	}
	return &Hub{
		rooms:   make(map[string]*room),
		clients: make(map[*client]struct{}),
		clock:   clock,
	}
}

// CreateRoom adds a room and returns its id. An empty password makes an
// open room.
func (h *Hub) CreateRoom(name, password string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errEmptyName
	}
	r := &room{
		id:        uuid.NewString(),
		name:      name,
		password:  password,
		createdAt: h.clock().UTC(),
		clients:   make(map[*client]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[r.id] = r
	return r.id, nil
}

// CheckAccess verifies that roomID exists and password opens it, and
// returns the room name.
func (h *Hub) CheckAccess(roomID, password string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, err := h.accessLocked(roomID, password)
	if err != nil {
		return "", err
	}
	return r.name, nil
}

func (h *Hub) accessLocked(roomID, password string) (*room, error) {
	r, ok := h.rooms[roomID]
	if !ok {
		return nil, errRoomNotFound
	}
	if r.password == "" {
		return r, nil
	}
	if password == "" {
		return nil, errPasswordRequired
	}
	if password != r.password {
		return nil, errWrongPassword
	}
	return r, nil
}

// UpdatePassword replaces the password of roomID.
func (h *Hub) UpdatePassword(roomID, password string) error {
	if strings.TrimSpace(password) == "" {
		return errEmptyPassword
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return errRoomNotFound
	}
	r.password = password
	return nil
}

// ListRooms returns every room ordered by creation time.
func (h *Hub) ListRooms() []roomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]roomInfo, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, roomInfo{
			ID:          r.id,
			Name:        r.name,
			HasPassword: r.password != "",
			UserCount:   len(r.clients),
			CreatedAt:   r.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Register adds a connected client that has not joined a room yet.
func (h *Hub) Register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes c from the hub and from its room. It returns the room
// c was in, or "".
func (h *Hub) Unregister(c *client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return h.leaveLocked(c)
}

// Join moves c into roomID. A client already in another room leaves it
// first; the id of that room is returned.
func (h *Hub) Join(c *client, roomID, username, password string) (left string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.accessLocked(roomID, password)
	if err != nil {
		return "", err
	}
	if c.roomID != roomID {
		left = h.leaveLocked(c)
	}
	c.roomID = roomID
	c.username = username
	r.clients[c] = struct{}{}
	return left, nil
}

func (h *Hub) leaveLocked(c *client) string {
	if c.roomID == "" {
		return ""
	}
	left := c.roomID
	if r, ok := h.rooms[left]; ok {
		delete(r.clients, c)
	}
	c.roomID = ""
	return left
}

// Broadcast queues data for every client in roomID except skip. Clients
// with a full queue miss the frame.
func (h *Hub) Broadcast(roomID string, data []byte, skip *client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return 0
	}
	sent := 0
	for c := range r.clients {
		if c == skip {
			continue
		}
		select {
		case c.outgoing <- data:
			sent++
		default:
		}
	}
	return sent
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomOf returns the room c is in.
func (h *Hub) RoomOf(c *client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.roomID
}
