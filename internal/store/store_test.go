package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/room-chat-client/internal/chat"
	"github.com/omochice/room-chat-client/internal/store"
)

func requireEvents(t *testing.T, want, got []chat.Event) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Truef(t, want[i].Equal(got[i]), "event %d: want %+v, got %+v", i, want[i], got[i])
	}
}

func sampleEvents(n int) []chat.Event {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make([]chat.Event, 0, n)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		switch i % 3 {
		case 0:
			events = append(events, chat.NewChatEvent("carol", fmt.Sprintf("msg %d", i), ts))
		case 1:
			events = append(events, chat.JoinedNotice("dave", ts))
		default:
			// timestamps out of order must not be corrected
			events = append(events, chat.NewChatEvent("bob", fmt.Sprintf("late %d", i), ts.Add(-time.Hour)))
		}
	}
	return events
}

func TestMessageStore_AppendKeepsArrivalOrder(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	ctx := context.Background()

	_, err := s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)

	events := sampleEvents(9)
	for _, ev := range events {
		require.NoError(t, s.Append(ctx, ev))
	}

	requireEvents(t, events, s.Events())
	assert.Equal(t, 9, s.Len())
}

func TestMessageStore_DuplicatesAreKept(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	ctx := context.Background()
	_, err := s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)

	ev := chat.NewChatEvent("carol", "hi", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Append(ctx, ev))
	require.NoError(t, s.Append(ctx, ev))

	assert.Equal(t, 2, s.Len())
}

func TestMessageStore_DurableRoundTripAcrossRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	events := sampleEvents(12)

	first := store.New(store.NewFileSlot(fs, "/data"), nil)
	_, err := first.LoadForRoom(ctx, "room-42")
	require.NoError(t, err)
	for _, ev := range events {
		require.NoError(t, first.Append(ctx, ev))
	}

	// a new store over the same filesystem stands in for a restarted process
	second := store.New(store.NewFileSlot(fs, "/data"), nil)
	loaded, err := second.LoadForRoom(ctx, "room-42")
	require.NoError(t, err)

	requireEvents(t, events, loaded)
	requireEvents(t, events, second.Events())
}

func TestMessageStore_LoadUnknownRoomIsEmpty(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	loaded, err := s.LoadForRoom(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.Equal(t, "never-seen", s.RoomID())
}

func TestMessageStore_LoadReplacesInMemorySequence(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	ctx := context.Background()

	_, err := s.LoadForRoom(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, chat.NewSystemEvent("in a", time.Now())))

	_, err = s.LoadForRoom(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, s.Len())
	require.NoError(t, s.Append(ctx, chat.NewSystemEvent("in b", time.Now())))

	loaded, err := s.LoadForRoom(ctx, "a")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "in a", loaded[0].Content)
}

func TestMessageStore_AppendWithoutRoom(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	err := s.Append(context.Background(), chat.NewSystemEvent("x", time.Now()))
	assert.ErrorIs(t, err, store.ErrNoRoom)
}

func TestMessageStore_LoadEmptyRoomID(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	_, err := s.LoadForRoom(context.Background(), "")
	assert.ErrorIs(t, err, chat.ErrValidation)
}

func TestMessageStore_UnloadKeepsDurableSlot(t *testing.T) {
	slot := store.NewMemorySlot()
	s := store.New(slot, nil)
	ctx := context.Background()

	_, err := s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, chat.NewSystemEvent("kept", time.Now())))

	s.Unload()
	assert.Empty(t, s.RoomID())
	assert.Zero(t, s.Len())

	loaded, err := s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestMessageStore_EventsReturnsCopy(t *testing.T) {
	s := store.New(store.NewMemorySlot(), nil)
	ctx := context.Background()
	_, err := s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, chat.NewSystemEvent("original", time.Now())))

	events := s.Events()
	events[0].Content = "mutated"

	assert.Equal(t, "original", s.Events()[0].Content)
}

func TestMessageStore_CorruptSlot(t *testing.T) {
	fs := afero.NewMemMapFs()
	slot := store.NewFileSlot(fs, "/data")
	require.NoError(t, afero.WriteFile(fs, slot.Path("r1"), []byte("not protobuf at all \xff\xff"), 0o600))

	s := store.New(slot, nil)
	loaded, err := s.LoadForRoom(context.Background(), "r1")
	assert.Error(t, err)
	assert.Empty(t, loaded)
	assert.Equal(t, "r1", s.RoomID(), "room stays selected so new events still persist")
}

type failingSlot struct {
	store.Slot
	saveErr error
}

func (f *failingSlot) Save(ctx context.Context, roomID string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Slot.Save(ctx, roomID, data)
}

func TestMessageStore_PersistFailureKeepsEventAndRecovers(t *testing.T) {
	slot := &failingSlot{Slot: store.NewMemorySlot(), saveErr: errors.New("disk full")}
	s := store.New(slot, nil)
	ctx := context.Background()
	_, err := s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)

	first := chat.NewSystemEvent("first", time.Now())
	assert.Error(t, s.Append(ctx, first))
	assert.Equal(t, 1, s.Len())

	slot.saveErr = nil
	second := chat.NewSystemEvent("second", time.Now())
	require.NoError(t, s.Append(ctx, second))

	reloaded := store.New(slot, nil)
	loaded, err := reloaded.LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	requireEvents(t, []chat.Event{first, second}, loaded)
}

// unreadableSlot fails the next loadFailures calls to Load.
type unreadableSlot struct {
	store.Slot
	loadFailures int
}

func (u *unreadableSlot) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	if u.loadFailures > 0 {
		u.loadFailures--
		return nil, false, errors.New("database is locked")
	}
	return u.Slot.Load(ctx, roomID)
}

func TestMessageStore_ReadFailureNeverOverwritesHistory(t *testing.T) {
	ctx := context.Background()
	slot := &unreadableSlot{Slot: store.NewMemorySlot()}
	history := sampleEvents(3)

	seed := store.New(slot, nil)
	_, err := seed.LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	for _, ev := range history {
		require.NoError(t, seed.Append(ctx, ev))
	}

	slot.loadFailures = 1
	s := store.New(slot, nil)
	loaded, err := s.LoadForRoom(ctx, "r1")
	require.Error(t, err)
	assert.Empty(t, loaded)
	assert.Equal(t, "r1", s.RoomID())

	late := chat.NewSystemEvent("after the failed read", time.Now())
	err = s.Append(ctx, late)
	assert.ErrorIs(t, err, store.ErrTranscriptUnavailable)
	assert.Equal(t, 1, s.Len(), "event is still kept in memory")

	recovered, err := store.New(slot, nil).LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	requireEvents(t, history, recovered)

	// a later successful load re-arms writes
	loaded, err = s.LoadForRoom(ctx, "r1")
	require.NoError(t, err)
	requireEvents(t, history, loaded)
	require.NoError(t, s.Append(ctx, late))
	assert.Equal(t, 4, s.Len())
}

func TestFileSlot_PathIsSafeForAnyRoomID(t *testing.T) {
	slot := store.NewFileSlot(afero.NewMemMapFs(), "/data")
	path := slot.Path("../../etc/passwd")
	assert.Equal(t, "/data", filepath.Dir(path))
}

func TestFileSlot_OverwritesWholesale(t *testing.T) {
	fs := afero.NewMemMapFs()
	slot := store.NewFileSlot(fs, "/data")
	ctx := context.Background()

	require.NoError(t, slot.Save(ctx, "r1", []byte("first version, longer")))
	require.NoError(t, slot.Save(ctx, "r1", []byte("second")))

	data, ok, err := slot.Load(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(data))

	exists, err := afero.Exists(fs, slot.Path("r1")+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}
