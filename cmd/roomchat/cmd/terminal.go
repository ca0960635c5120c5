package cmd

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/omochice/room-chat-client/internal/chat"
	"github.com/omochice/room-chat-client/internal/directory"
	"github.com/omochice/room-chat-client/internal/session"
)

// terminal renders presenter callbacks as plain text lines.
type terminal struct {
	mu       sync.Mutex
	out      io.Writer
	username string

	failOnce sync.Once
	failed   chan struct{} // closed once the session fails
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out, failed: make(chan struct{})}
}

// Failed is closed the first time the session reaches PhaseFailed.
func (t *terminal) Failed() <-chan struct{} {
	return t.failed
}

func (t *terminal) setUsername(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.username = name
}

func (t *terminal) OnPhaseChange(p session.Phase) {
	switch p {
	case session.PhaseJoining:
		t.printf("... connecting\n")
	case session.PhaseFailed:
		t.failOnce.Do(func() { close(t.failed) })
	}
}

func (t *terminal) OnEventAppended(ev chat.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renderLocked(ev)
}

func (t *terminal) OnNotification(msg string, sev chat.Severity) {
	t.printf("[%s] %s\n", sev, msg)
}

func (t *terminal) OnTranscript(room chat.Room, events []chat.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "=== %s ===\n", room.Label())
	for _, ev := range events {
		t.renderLocked(ev)
	}
}

func (t *terminal) OnRooms(rooms []directory.RoomInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(rooms) == 0 {
		fmt.Fprintln(t.out, "no rooms yet")
		return
	}
	w := tabwriter.NewWriter(t.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUSERS\tLOCKED\tCREATED")
	for _, r := range rooms {
		locked := "no"
		if r.HasPassword {
			locked = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Name, r.UserCount, locked, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func (t *terminal) renderLocked(ev chat.Event) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	switch {
	case ev.Kind == chat.KindSystem:
		fmt.Fprintf(t.out, "%s *** %s ***\n", ts, ev.Content)
	case t.username != "" && ev.IsOwn(t.username):
		fmt.Fprintf(t.out, "%s [me]: %s\n", ts, ev.Content)
	default:
		fmt.Fprintf(t.out, "%s [%s]: %s\n", ts, ev.Username, ev.Content)
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}
