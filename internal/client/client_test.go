package client_test

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/room-chat-client/internal/chat"
	"github.com/omochice/room-chat-client/internal/client"
	"github.com/omochice/room-chat-client/internal/config"
	"github.com/omochice/room-chat-client/internal/devserver"
	"github.com/omochice/room-chat-client/internal/directory"
	"github.com/omochice/room-chat-client/internal/logging"
	"github.com/omochice/room-chat-client/internal/session"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type notification struct {
	Message  string
	Severity chat.Severity
}

type recorder struct {
	session.NopPresenter

	mu            sync.Mutex
	events        []chat.Event
	notifications []notification
	rooms         [][]directory.RoomInfo
	transcripts   [][]chat.Event
}

func (r *recorder) OnEventAppended(ev chat.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnNotification(msg string, sev chat.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, notification{msg, sev})
}

func (r *recorder) OnTranscript(_ chat.Room, events []chat.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, events)
}

func (r *recorder) OnRooms(rooms []directory.RoomInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, rooms)
}

func (r *recorder) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Content)
	}
	return out
}

func (r *recorder) last() notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notifications) == 0 {
		return notification{}
	}
	return r.notifications[len(r.notifications)-1]
}

func startDevServer(t *testing.T) string {
	t.Helper()
	srv := devserver.New(devserver.WithLogger(logging.Discard()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Stop)
	return ts.URL
}

func newConfig(t *testing.T, serverURL, transport, backend string) config.Config {
	t.Helper()
	return config.Config{
		ServerURL:      serverURL,
		WebSocketPath:  "/ws",
		Transport:      transport,
		StoreBackend:   backend,
		StoreDir:       t.TempDir(),
		CloseTimeout:   time.Second,
		WriteTimeout:   time.Second,
		RequestTimeout: 2 * time.Second,
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

func newClient(t *testing.T, cfg config.Config) (*client.Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	c, err := client.NewFromConfig(cfg, rec, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func waitPhase(t *testing.T, c *client.Client, want session.Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Session().Phase() == want }, waitFor, tick,
		"phase never became %s", want)
}

func TestClient_EndToEnd(t *testing.T) {
	tests := []struct {
		transport string
		backend   string
	}{
		{transport: config.TransportCoder, backend: config.StoreFile},
		{transport: config.TransportGobwas, backend: config.StoreSQLite},
		{transport: config.TransportCoder, backend: config.StoreMemory},
	}

	for _, tt := range tests {
		t.Run(tt.transport+"/"+tt.backend, func(t *testing.T) {
			ctx := t.Context()
			url := startDevServer(t)

			alice, aliceRec := newClient(t, newConfig(t, url, tt.transport, tt.backend))
			bob, bobRec := newClient(t, newConfig(t, url, tt.transport, tt.backend))

			roomID, err := alice.CreateRoom(ctx, "lobby", "")
			require.NoError(t, err)
			require.NotEmpty(t, roomID)

			rooms, err := bob.RefreshRooms(ctx)
			require.NoError(t, err)
			require.Len(t, rooms, 1)
			assert.Equal(t, "lobby", rooms[0].Name)

			require.NoError(t, alice.JoinRoom(ctx, roomID, "alice", ""))
			waitPhase(t, alice, session.PhaseActive)
			room, ok := alice.Session().Room()
			require.True(t, ok)
			assert.Equal(t, chat.Room{ID: roomID, Name: "lobby"}, room)

			require.NoError(t, bob.JoinRoom(ctx, roomID, "bob", ""))
			waitPhase(t, bob, session.PhaseActive)

			require.Eventually(t, func() bool {
				return assert.ObjectsAreEqual([]string{"bob joined the room"}, aliceRec.contents())
			}, waitFor, tick)

			require.NoError(t, bob.SendMessage("hello"))
			for _, rec := range []*recorder{aliceRec, bobRec} {
				require.Eventually(t, func() bool {
					got := rec.contents()
					return len(got) > 0 && got[len(got)-1] == "hello"
				}, waitFor, tick)
			}

			require.NoError(t, bob.LeaveRoom())
			waitPhase(t, bob, session.PhaseIdle)
			require.Eventually(t, func() bool {
				got := aliceRec.contents()
				return len(got) > 0 && got[len(got)-1] == "bob left the room"
			}, waitFor, tick)
		})
	}
}

func TestClient_TranscriptSurvivesRejoin(t *testing.T) {
	ctx := t.Context()
	url := startDevServer(t)
	cfg := newConfig(t, url, config.TransportCoder, config.StoreFile)

	alice, rec := newClient(t, cfg)
	roomID, err := alice.CreateRoom(ctx, "lobby", "")
	require.NoError(t, err)

	require.NoError(t, alice.JoinRoom(ctx, roomID, "alice", ""))
	waitPhase(t, alice, session.PhaseActive)
	require.NoError(t, alice.SendMessage("remember me"))
	require.Eventually(t, func() bool { return len(rec.contents()) == 1 }, waitFor, tick)

	require.NoError(t, alice.LeaveRoom())
	waitPhase(t, alice, session.PhaseIdle)
	require.NoError(t, alice.Close())

	// a fresh process pointed at the same store directory
	again, rec2 := newClient(t, cfg)
	require.NoError(t, again.JoinRoom(ctx, roomID, "alice", ""))
	waitPhase(t, again, session.PhaseActive)

	rec2.mu.Lock()
	defer rec2.mu.Unlock()
	require.Len(t, rec2.transcripts, 1)
	require.Len(t, rec2.transcripts[0], 1)
	assert.Equal(t, "remember me", rec2.transcripts[0][0].Content)
	assert.True(t, rec2.transcripts[0][0].IsOwn("alice"))
}

func TestClient_PasswordProtectedRoom(t *testing.T) {
	ctx := t.Context()
	url := startDevServer(t)

	owner, ownerRec := newClient(t, newConfig(t, url, config.TransportCoder, config.StoreMemory))
	guest, guestRec := newClient(t, newConfig(t, url, config.TransportCoder, config.StoreMemory))

	roomID, err := owner.CreateRoom(ctx, "vault", "s3cret")
	require.NoError(t, err)

	err = guest.JoinRoom(ctx, roomID, "guest", "wrong")
	require.ErrorIs(t, err, chat.ErrDirectoryRequest)
	assert.Equal(t, notification{"invalid password", chat.SeverityError}, guestRec.last())
	assert.Equal(t, session.PhaseIdle, guest.Session().Phase())

	require.NoError(t, owner.JoinRoom(ctx, roomID, "owner", "s3cret"))
	waitPhase(t, owner, session.PhaseActive)
	require.NoError(t, owner.UpdatePassword(ctx, "fresh"))
	assert.Equal(t, notification{"password updated", chat.SeveritySuccess}, ownerRec.last())

	room, _ := owner.Session().Room()
	assert.Equal(t, "vault", room.Name)

	require.NoError(t, guest.JoinRoom(ctx, roomID, "guest", "fresh"))
	waitPhase(t, guest, session.PhaseActive)
}

func TestClient_LocalValidation(t *testing.T) {
	ctx := t.Context()
	url := startDevServer(t)
	c, rec := newClient(t, newConfig(t, url, config.TransportCoder, config.StoreMemory))

	_, err := c.CreateRoom(ctx, " ", "")
	require.ErrorIs(t, err, chat.ErrValidation)
	assert.Equal(t, chat.SeverityWarning, rec.last().Severity)

	require.ErrorIs(t, c.JoinRoom(ctx, "", "alice", ""), chat.ErrValidation)
	require.ErrorIs(t, c.JoinRoom(ctx, "r1", "", ""), chat.ErrValidation)

	require.ErrorIs(t, c.UpdatePassword(ctx, "pw"), client.ErrNoActiveRoom)
	require.ErrorIs(t, c.SendMessage("   "), chat.ErrValidation)
}

func TestClient_ServerUnreachable(t *testing.T) {
	url := startDevServer(t)
	cfg := newConfig(t, url, config.TransportCoder, config.StoreMemory)
	c, rec := newClient(t, cfg)

	cfg.ServerURL = "http://127.0.0.1:1"
	offline, offlineRec := newClient(t, cfg)

	_, err := offline.RefreshRooms(t.Context())
	require.ErrorIs(t, err, chat.ErrDirectoryRequest)
	assert.Equal(t, notification{"network error, please retry", chat.SeverityError}, offlineRec.last())

	_, err = c.RefreshRooms(t.Context())
	require.NoError(t, err)
	assert.Len(t, rec.rooms, 1)
}
