package chat

import (
	"fmt"
	"time"
)

// EventKind tags the Event variant.
type EventKind int

const (
	KindChat EventKind = iota + 1
	KindSystem
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a persisted kind name back to its EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "chat":
		return KindChat, nil
	case "system":
		return KindSystem, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// Event is one stored and rendered transcript entry. Chat events carry a
// Username; System events are synthesized locally and leave it empty.
type Event struct {
	Kind      EventKind
	Username  string
	Content   string
	Timestamp time.Time
}

// NewChatEvent builds a chat event. The timestamp is normalised to UTC.
func NewChatEvent(username, content string, ts time.Time) Event {
	return Event{Kind: KindChat, Username: username, Content: content, Timestamp: ts.UTC()}
}

// NewSystemEvent builds a locally synthesized notice.
func NewSystemEvent(content string, ts time.Time) Event {
	return Event{Kind: KindSystem, Content: content, Timestamp: ts.UTC()}
}

// JoinedNotice is the system event recorded when another user joins.
func JoinedNotice(username string, ts time.Time) Event {
	return NewSystemEvent(username+" joined the room", ts)
}

// LeftNotice is the system event recorded when another user leaves.
func LeftNotice(username string, ts time.Time) Event {
	return NewSystemEvent(username+" left the room", ts)
}

// Equal reports whether two events are the same entry. Timestamps are
// compared as instants.
func (e Event) Equal(o Event) bool {
	return e.Kind == o.Kind &&
		e.Username == o.Username &&
		e.Content == o.Content &&
		e.Timestamp.Equal(o.Timestamp)
}

// IsOwn reports whether a chat event was sent by username.
func (e Event) IsOwn(username string) bool {
	return e.Kind == KindChat && username != "" && e.Username == username
}
