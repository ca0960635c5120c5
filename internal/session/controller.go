// Package session implements the room session state machine. A Controller
// owns one transport.Channel per join attempt and the MessageStore of the
// active room, and serialises user intents and transport events through a
// single event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/room-chat-client/internal/chat"
	"github.com/omochice/room-chat-client/internal/store"
	"github.com/omochice/room-chat-client/internal/transport"
	"github.com/omochice/room-chat-client/pkg/protocol"
)

var (
	// ErrClosed is returned by intents after Close.
	ErrClosed = errors.New("session controller closed")

	// ErrAlreadyJoined is reported when join is called while a session is
	// joining or active.
	ErrAlreadyJoined = errors.New("already in a room, leave it first")
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultCloseTimeout = 3 * time.Second
	opQueueSize         = 128
)

// Options configures a Controller.
type Options struct {
	Dialer    transport.Dialer
	Store     *store.MessageStore
	Presenter Presenter
	// URL is the websocket endpoint dialed on every join.
	URL    string
	Logger *slog.Logger
	Clock  func() time.Time

	WriteTimeout time.Duration
	CloseTimeout time.Duration
	// PingInterval enables keepalive pings while active. Zero disables.
	PingInterval time.Duration
}

type joinParams struct {
	RoomID   string `validate:"required" label:"room id"`
	Username string `validate:"required" label:"username"`
}

// Controller is one client's session. Create it with New and destroy it
// with Close; there is no shared state between controllers.
type Controller struct {
	id        string
	dialer    transport.Dialer
	store     *store.MessageStore
	presenter Presenter
	url       string
	logger    *slog.Logger
	clock     func() time.Time

	writeTimeout time.Duration
	closeTimeout time.Duration
	pingInterval time.Duration

	ops       chan func()
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	attempt  uint64
	channel  *transport.Channel
	password string
	pingStop chan struct{}

	// written by the loop, readable anywhere
	mu       sync.RWMutex
	phase    Phase
	room     *chat.Room
	username string
	lastErr  error
}

// New creates a Controller and starts its event loop.
func New(opts Options) (*Controller, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("message store is required")
	}
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("server url is required")
	}

	id := uuid.NewString()
	c := &Controller{
		id:           id,
		dialer:       opts.Dialer,
		store:        opts.Store,
		presenter:    opts.Presenter,
		url:          opts.URL,
		logger:       opts.Logger,
		clock:        opts.Clock,
		writeTimeout: opts.WriteTimeout,
		closeTimeout: opts.CloseTimeout,
		pingInterval: opts.PingInterval,
		ops:          make(chan func(), opQueueSize),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	if c.presenter == nil {
		c.presenter = NopPresenter{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("session_id", id)
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	if c.closeTimeout <= 0 {
		c.closeTimeout = defaultCloseTimeout
	}

	go c.loop()
	return c, nil
}

// ID identifies the controller in logs.
func (c *Controller) ID() string { return c.id }

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Room returns the active room snapshot.
func (c *Controller) Room() (chat.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return chat.Room{}, false
	}
	return *c.room, true
}

// Username returns the local username, or "" when idle.
func (c *Controller) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// LastError returns the most recent failure reported to the presenter.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Join starts entering room as username. Empty ids or usernames fail
// immediately with a validation error and never touch the network.
// Otherwise Join returns at once and the outcome arrives through the
// Presenter.
func (c *Controller) Join(room chat.Room, username, password string) error {
	room.ID = strings.TrimSpace(room.ID)
	username = strings.TrimSpace(username)

	if err := chat.ValidateStruct(joinParams{RoomID: room.ID, Username: username}); err != nil {
		_ = c.enqueue(func() { c.report(err, chat.SeverityWarning) })
		return err
	}
	return c.enqueue(func() { c.startJoin(room, username, password) })
}

// SendMessage sends content to the room. Blank content is rejected with a
// validation error. The message is not added to the transcript here; it
// appears once the server broadcasts it back.
func (c *Controller) SendMessage(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		err := chat.Validation("message", "must not be empty")
		_ = c.enqueue(func() { c.report(err, chat.SeverityWarning) })
		return err
	}
	return c.enqueue(func() { c.sendChat(content) })
}

// Leave ends the session. While joining it also cancels the in-flight
// connection attempt; anything that attempt reports later is ignored.
func (c *Controller) Leave() error {
	return c.enqueue(c.leave)
}

// Close stops the event loop and tears down any live transport. It is
// idempotent.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.stopped
	})
	return nil
}

func (c *Controller) enqueue(op func()) error {
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}
	select {
	case c.ops <- op:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

func (c *Controller) loop() {
	defer close(c.stopped)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.quit:
			c.shutdown()
			return
		}
	}
}

func (c *Controller) shutdown() {
	c.stopPinger()
	c.attempt++
	if ch := c.channel; ch != nil {
		c.channel = nil
		c.closeChannel(ch)
	}
	c.logger.Debug("session controller stopped")
}

func (c *Controller) startJoin(room chat.Room, username, password string) {
	switch c.Phase() {
	case PhaseJoining, PhaseActive:
		c.report(ErrAlreadyJoined, chat.SeverityWarning)
		return
	case PhaseClosing, PhaseFailed:
		// a fresh join supersedes the previous attempt
		c.discardSession()
	}

	c.attempt++
	attempt := c.attempt
	logger := c.logger.With("room_id", room.ID, "attempt", attempt)

	c.mu.Lock()
	c.room = &room
	c.username = username
	c.mu.Unlock()
	c.password = password
	c.setPhase(PhaseJoining)

	events, err := c.store.LoadForRoom(context.Background(), room.ID)
	if err != nil {
		logger.Warn("failed to load transcript", "error", err)
		c.presenter.OnNotification("saved messages could not be loaded", chat.SeverityWarning)
	}
	c.presenter.OnTranscript(room, events)

	ch := transport.NewChannel(c.dialer, logger)
	c.channel = ch
	if err := ch.Open(context.Background(), c.url); err != nil {
		c.fail(&chat.TransportError{Op: "open", Err: err})
		return
	}
	logger.Info("joining room", "username", username)
	go c.pump(attempt, ch)
}

// pump forwards one attempt's transport events into the loop.
func (c *Controller) pump(attempt uint64, ch *transport.Channel) {
	for ev := range ch.Events() {
		if err := c.enqueue(func() { c.handleTransport(attempt, ev) }); err != nil {
			return
		}
	}
}

func (c *Controller) handleTransport(attempt uint64, ev transport.Event) {
	if attempt != c.attempt {
		c.logger.Debug("dropping stale transport event", "attempt", attempt, "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case transport.EventOpen:
		if c.Phase() != PhaseJoining {
			return
		}
		room, _ := c.Room()
		if err := c.sendFrame(protocol.NewJoin(room.ID, c.Username(), c.password)); err != nil {
			c.fail(err)
		}
	case transport.EventMessage:
		c.handleFrame(ev.Payload)
	case transport.EventClose:
		c.handleDisconnect(&chat.TransportError{Op: "read", Err: io.EOF})
	case transport.EventError:
		c.handleDisconnect(ev.Err)
	}
}

func (c *Controller) handleFrame(payload []byte) {
	var msg protocol.ServerMessage
	if err := msg.Decode(payload); err != nil {
		c.logger.Warn("ignoring malformed frame", "error", err)
		return
	}

	phase := c.Phase()
	switch msg.Type {
	case protocol.MessageTypeJoined:
		if phase != PhaseJoining {
			return
		}
		room, _ := c.Room()
		c.setLastErr(nil)
		c.setPhase(PhaseActive)
		c.presenter.OnNotification("joined "+room.Label(), chat.SeveritySuccess)
		c.startPinger(c.attempt)
	case protocol.MessageTypeError:
		rej := &chat.ServerRejection{Reason: msg.Message}
		if phase == PhaseJoining {
			c.fail(rej)
			return
		}
		c.report(rej, chat.SeverityError)
	case protocol.MessageTypeChat:
		c.appendEvent(chat.NewChatEvent(msg.Username, msg.Content, msg.TimestampOr(c.clock())))
	case protocol.MessageTypeUserJoined:
		c.appendEvent(chat.JoinedNotice(msg.Username, c.clock()))
	case protocol.MessageTypeUserLeft:
		c.appendEvent(chat.LeftNotice(msg.Username, c.clock()))
	case protocol.MessageTypePong:
	default:
		c.logger.Debug("ignoring unknown message type")
	}
}

func (c *Controller) appendEvent(ev chat.Event) {
	if c.Phase() != PhaseActive {
		c.logger.Debug("dropping event outside active phase", "kind", ev.Kind.String())
		return
	}
	if err := c.store.Append(context.Background(), ev); err != nil {
		c.logger.Error("failed to persist event", "error", err)
		c.presenter.OnNotification("message could not be saved locally", chat.SeverityWarning)
	}
	c.presenter.OnEventAppended(ev)
}

func (c *Controller) handleDisconnect(err error) {
	switch c.Phase() {
	case PhaseJoining, PhaseActive:
		c.fail(err)
	}
}

// fail moves to PhaseFailed and makes sure the transport goes away.
func (c *Controller) fail(err error) {
	c.stopPinger()
	c.attempt++
	ch := c.channel
	c.channel = nil

	c.logger.Warn("session failed", "error", err)
	c.setPhase(PhaseFailed)
	c.report(err, chat.SeverityError)

	if ch != nil {
		go c.closeChannel(ch)
	}
}

func (c *Controller) sendChat(content string) {
	if c.Phase() != PhaseActive || c.channel == nil || !c.channel.IsOpen() {
		c.report(chat.ErrNotConnected, chat.SeverityWarning)
		return
	}
	if err := c.sendFrame(protocol.NewChat(c.Username(), content)); err != nil {
		c.report(err, chat.SeverityError)
	}
}

func (c *Controller) sendFrame(msg protocol.ClientMessage) error {
	if c.channel == nil {
		return chat.ErrNotConnected
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.channel.Send(ctx, data)
}

func (c *Controller) leave() {
	switch c.Phase() {
	case PhaseIdle, PhaseClosing:
		return
	case PhaseFailed:
		c.discardSession()
		c.presenter.OnNotification("left the room", chat.SeverityInfo)
		return
	}

	c.stopPinger()
	c.attempt++
	token := c.attempt
	ch := c.channel
	c.channel = nil
	c.setPhase(PhaseClosing)

	go func() {
		if ch != nil {
			c.closeChannel(ch)
		}
		_ = c.enqueue(func() { c.finishClose(token) })
	}()
}

func (c *Controller) finishClose(token uint64) {
	if token != c.attempt || c.Phase() != PhaseClosing {
		return
	}
	c.resetToIdle()
	c.presenter.OnNotification("left the room", chat.SeverityInfo)
}

// discardSession drops whatever is left of the current session without
// waiting for the transport.
func (c *Controller) discardSession() {
	c.attempt++
	if ch := c.channel; ch != nil {
		c.channel = nil
		go c.closeChannel(ch)
	}
	c.resetToIdle()
}

func (c *Controller) resetToIdle() {
	c.stopPinger()
	c.store.Unload()
	c.password = ""
	c.mu.Lock()
	c.room = nil
	c.username = ""
	c.mu.Unlock()
	c.setPhase(PhaseIdle)
}

// closeChannel closes ch, giving up after the close timeout.
func (c *Controller) closeChannel(ch *transport.Channel) {
	done := make(chan struct{})
	go func() {
		if err := ch.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.closeTimeout):
		c.logger.Warn("transport close timed out", "timeout", c.closeTimeout)
	}
}

func (c *Controller) startPinger(attempt uint64) {
	if c.pingInterval <= 0 {
		return
	}
	c.stopPinger()
	stop := make(chan struct{})
	c.pingStop = stop

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.enqueue(func() { c.ping(attempt) }); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (c *Controller) stopPinger() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

func (c *Controller) ping(attempt uint64) {
	if attempt != c.attempt || c.Phase() != PhaseActive {
		return
	}
	if err := c.sendFrame(protocol.NewPing()); err != nil {
		c.logger.Debug("keepalive ping failed", "error", err)
	}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	prev := c.phase
	c.phase = p
	c.mu.Unlock()
	if prev == p {
		return
	}
	c.logger.Info("phase changed", "from", prev.String(), "to", p.String())
	c.presenter.OnPhaseChange(p)
}

func (c *Controller) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// report records err as the last failure and shows it to the user.
func (c *Controller) report(err error, severity chat.Severity) {
	c.setLastErr(err)
	c.presenter.OnNotification(chat.Describe(err), severity)
}
