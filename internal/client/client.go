// Package client is the application facade behind the user interface. It
// turns the six user intents into room directory calls and session
// controller operations.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/omochice/room-chat-client/internal/chat"
	"github.com/omochice/room-chat-client/internal/directory"
	"github.com/omochice/room-chat-client/internal/session"
)

// ErrNoActiveRoom is returned by room scoped intents when no room is
// selected.
var ErrNoActiveRoom = errors.New("no active room")

// Presenter is everything the interface renders. The session half is
// called from the session loop; the rest from the goroutine calling an
// intent, so implementations must be safe for concurrent use.
type Presenter interface {
	session.Presenter
	OnRooms(rooms []directory.RoomInfo)
}

// Deps are the collaborators of a Client.
type Deps struct {
	Directory *directory.Client
	Session   *session.Controller
	Presenter Presenter
	Logger    *slog.Logger
	// Closers are released by Close after the session stops.
	Closers []io.Closer
	// RequestTimeout bounds each directory call. Zero means no limit
	// beyond the caller's context.
	RequestTimeout time.Duration
}

// Client implements the user intents.
type Client struct {
	dir       *directory.Client
	sess      *session.Controller
	presenter Presenter
	logger    *slog.Logger
	closers   []io.Closer
	timeout   time.Duration
}

type joinRequest struct {
	RoomID   string `validate:"required" label:"room id"`
	Username string `validate:"required" label:"username"`
}

// New assembles a Client from ready made parts.
func New(deps Deps) (*Client, error) {
	if deps.Directory == nil || deps.Session == nil {
		return nil, fmt.Errorf("directory and session are required")
	}
	c := &Client{
		dir:       deps.Directory,
		sess:      deps.Session,
		presenter: deps.Presenter,
		logger:    deps.Logger,
		closers:   deps.Closers,
		timeout:   deps.RequestTimeout,
	}
	if c.presenter == nil {
		c.presenter = nopPresenter{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Session exposes the controller for read only queries.
func (c *Client) Session() *session.Controller { return c.sess }

// CreateRoom creates a room and refreshes the listing. It returns the new
// room id.
func (c *Client) CreateRoom(ctx context.Context, name, password string) (string, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	id, err := c.dir.CreateRoom(ctx, name, password)
	if err != nil {
		return "", c.reportErr(err)
	}
	c.presenter.OnNotification("room created", chat.SeveritySuccess)
	if _, err := c.refresh(ctx); err != nil {
		c.logger.Debug("refresh after create failed", "error", err)
	}
	return id, nil
}

// JoinRoom checks the room with the directory and then starts the session.
// The outcome of the connection is reported through the Presenter.
func (c *Client) JoinRoom(ctx context.Context, roomID, username, password string) error {
	roomID = strings.TrimSpace(roomID)
	username = strings.TrimSpace(username)
	if err := chat.ValidateStruct(joinRequest{RoomID: roomID, Username: username}); err != nil {
		return c.reportWarning(err)
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	room, err := c.dir.JoinRoom(ctx, roomID, password)
	if err != nil {
		return c.reportErr(err)
	}
	if room.ID == "" {
		room.ID = roomID
	}
	return c.sess.Join(room, username, strings.TrimSpace(password))
}

// SendMessage sends content to the active room.
func (c *Client) SendMessage(content string) error {
	return c.sess.SendMessage(content)
}

// LeaveRoom leaves the active room.
func (c *Client) LeaveRoom() error {
	return c.sess.Leave()
}

// UpdatePassword changes the password of the active room. The room
// snapshot is left as is.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	room, ok := c.sess.Room()
	if !ok {
		return c.reportWarning(ErrNoActiveRoom)
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.dir.UpdatePassword(ctx, room.ID, newPassword); err != nil {
		return c.reportErr(err)
	}
	c.presenter.OnNotification("password updated", chat.SeveritySuccess)
	return nil
}

// RefreshRooms fetches the room listing and hands it to the Presenter.
func (c *Client) RefreshRooms(ctx context.Context) ([]directory.RoomInfo, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	rooms, err := c.refresh(ctx)
	if err != nil {
		return nil, c.reportErr(err)
	}
	return rooms, nil
}

// Close stops the session and releases storage.
func (c *Client) Close() error {
	var errs []error
	if err := c.sess.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) refresh(ctx context.Context) ([]directory.RoomInfo, error) {
	rooms, err := c.dir.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	c.presenter.OnRooms(rooms)
	return rooms, nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) reportErr(err error) error {
	if errors.Is(err, chat.ErrValidation) {
		return c.reportWarning(err)
	}
	c.logger.Warn("request failed", "error", err)
	c.presenter.OnNotification(chat.Describe(err), chat.SeverityError)
	return err
}

func (c *Client) reportWarning(err error) error {
	c.presenter.OnNotification(chat.Describe(err), chat.SeverityWarning)
	return err
}

type nopPresenter struct{ session.NopPresenter }

func (nopPresenter) OnRooms([]directory.RoomInfo) {}
