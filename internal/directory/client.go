// Package directory is the HTTP client for the room directory: creating,
// listing and checking rooms, and changing room passwords.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/omochice/room-chat-client/internal/chat"
)

const (
	roomsPath    = "/api/rooms"
	joinPath     = "/api/rooms/join"
	passwordPath = "/api/rooms/password"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// RoomInfo is one entry of the room listing.
type RoomInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"has_password"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Room returns the snapshot used by a session.
func (r RoomInfo) Room() chat.Room {
	return chat.Room{ID: r.ID, Name: r.Name}
}

// envelope is the response wrapper every directory route uses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type createRoomRequest struct {
	Name     string  `json:"name" validate:"required" label:"room name"`
	Password *string `json:"password"`
}

type joinRoomRequest struct {
	RoomID   string  `json:"room_id" validate:"required" label:"room id"`
	Password *string `json:"password"`
}

type updatePasswordRequest struct {
	RoomID      string `json:"room_id" validate:"required" label:"room id"`
	NewPassword string `json:"new_password" validate:"required" label:"new password"`
}

// Client talks to the room directory API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CreateRoom creates a room and returns its id. An empty password creates
// an open room.
func (c *Client) CreateRoom(ctx context.Context, name, password string) (string, error) {
	req := createRoomRequest{Name: strings.TrimSpace(name), Password: optional(password)}
	if err := chat.ValidateStruct(req); err != nil {
		return "", err
	}

	var out struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, "create room", http.MethodPost, roomsPath, req, &out); err != nil {
		return "", err
	}
	c.logger.Info("room created", "room_id", out.RoomID)
	return out.RoomID, nil
}

// ListRooms returns every room the server knows about.
func (c *Client) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	var rooms []RoomInfo
	if err := c.do(ctx, "list rooms", http.MethodGet, roomsPath, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// JoinRoom checks that roomID exists and that password opens it, and
// returns the room snapshot. It does not connect to the room.
func (c *Client) JoinRoom(ctx context.Context, roomID, password string) (chat.Room, error) {
	req := joinRoomRequest{RoomID: strings.TrimSpace(roomID), Password: optional(password)}
	if err := chat.ValidateStruct(req); err != nil {
		return chat.Room{}, err
	}

	var out struct {
		RoomID   string `json:"room_id"`
		RoomName string `json:"room_name"`
	}
	if err := c.do(ctx, "join room", http.MethodPost, joinPath, req, &out); err != nil {
		return chat.Room{}, err
	}
	if out.RoomID == "" {
		out.RoomID = req.RoomID
	}
	return chat.Room{ID: out.RoomID, Name: out.RoomName}, nil
}

// UpdatePassword replaces the password of roomID.
func (c *Client) UpdatePassword(ctx context.Context, roomID, newPassword string) error {
	req := updatePasswordRequest{RoomID: strings.TrimSpace(roomID), NewPassword: strings.TrimSpace(newPassword)}
	if err := chat.ValidateStruct(req); err != nil {
		return err
	}
	if err := c.do(ctx, "update password", http.MethodPost, passwordPath, req, nil); err != nil {
		return err
	}
	c.logger.Info("room password updated", "room_id", req.RoomID)
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &chat.DirectoryError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &chat.DirectoryError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("directory request failed", "op", op, "error", err)
		return &chat.DirectoryError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return &chat.DirectoryError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if resp.StatusCode/100 != 2 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = op + " failed"
		}
		c.logger.Debug("directory request rejected", "op", op, "status", resp.StatusCode, "message", msg)
		return &chat.DirectoryError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &chat.DirectoryError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
