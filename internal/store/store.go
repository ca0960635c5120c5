// Package store keeps the ordered transcript of the active room and mirrors
// it into a durable per-room slot.
//
// Events are kept in arrival order exactly as received. There is no
// deduplication, reordering, eviction or size cap, and every append rewrites
// the whole slot.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/omochice/room-chat-client/internal/chat"
)

var (
	// ErrNoRoom is returned by Append before any room has been loaded.
	ErrNoRoom = errors.New("no room loaded")

	// ErrTranscriptUnavailable is returned by Append when the room's slot
	// could not be read. Writing then would replace history that still
	// exists on disk, so new events are only kept in memory.
	ErrTranscriptUnavailable = errors.New("transcript could not be read, not persisting")
)

// MessageStore is the transcript of a single room at a time.
type MessageStore struct {
	slot   Slot
	logger *slog.Logger

	mu       sync.RWMutex
	roomID   string
	events   []chat.Event
	writable bool // slot was read (or found absent) for roomID
}

// New creates a MessageStore persisting into slot.
func New(slot Slot, logger *slog.Logger) *MessageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageStore{slot: slot, logger: logger}
}

// LoadForRoom replaces the in-memory sequence with the durable contents for
// roomID, or an empty sequence when the room has never been stored. When the
// slot cannot be read or decoded the sequence is left empty and the error is
// returned. A read failure leaves the room selected but read-only until the
// next successful load; a slot that reads but does not decode is treated as
// lost and is overwritten by the next append.
func (s *MessageStore) LoadForRoom(ctx context.Context, roomID string) ([]chat.Event, error) {
	if roomID == "" {
		return nil, chat.Validation("room id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.events = nil
	s.writable = false

	data, ok, err := s.slot.Load(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript for room %s: %w", roomID, err)
	}
	s.writable = true
	if !ok {
		return nil, nil
	}
	events, err := decodeEvents(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript for room %s: %w", roomID, err)
	}
	s.events = events
	s.logger.Debug("transcript loaded", "room_id", roomID, "events", len(events))
	return cloneEvents(events), nil
}

// Append adds ev at the tail and then persists the entire sequence. If the
// write fails the event stays in memory; the next successful append brings
// the slot back in line. After a failed read the event is only kept in
// memory and ErrTranscriptUnavailable is returned.
func (s *MessageStore) Append(ctx context.Context, ev chat.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomID == "" {
		return ErrNoRoom
	}
	s.events = append(s.events, ev)
	if !s.writable {
		return fmt.Errorf("room %s: %w", s.roomID, ErrTranscriptUnavailable)
	}

	data, err := encodeEvents(s.events)
	if err != nil {
		return err
	}
	if err := s.slot.Save(ctx, s.roomID, data); err != nil {
		return fmt.Errorf("failed to persist transcript for room %s: %w", s.roomID, err)
	}
	return nil
}

// Events returns a copy of the current sequence.
func (s *MessageStore) Events() []chat.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events)
}

// Len returns the number of events in memory.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// RoomID returns the loaded room, or "" when none is.
func (s *MessageStore) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// Unload drops the in-memory sequence. The durable slot is untouched.
func (s *MessageStore) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
	s.events = nil
	s.writable = false
}

func cloneEvents(events []chat.Event) []chat.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]chat.Event, len(events))
	copy(out, events)
	return out
}
