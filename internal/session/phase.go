package session

import "github.com/omochice/room-chat-client/internal/chat"

// Phase is the controller's position in the session lifecycle.
type Phase int

const (
	// PhaseIdle means no room and no transport.
	PhaseIdle Phase = iota

	// PhaseJoining means a transport is connecting or waiting for the
	// server to confirm the join.
	PhaseJoining

	// PhaseActive means the server confirmed the join.
	PhaseActive

	// PhaseClosing means a leave was requested and the transport is
	// shutting down.
	PhaseClosing

	// PhaseFailed means the transport or the server ended the session.
	// Only a leave (or a fresh join) moves on from here.
	PhaseFailed
)

// String returns the string representation of a Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseJoining:
		return "joining"
	case PhaseActive:
		return "active"
	case PhaseClosing:
		return "closing"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Presenter receives everything the user should see. Calls are made from
// the controller's single event loop, one at a time and in order.
type Presenter interface {
	OnPhaseChange(phase Phase)
	OnEventAppended(ev chat.Event)
	OnNotification(message string, severity chat.Severity)
	// OnTranscript delivers the persisted transcript whenever a room is
	// (re)entered so the view can be rebuilt.
	OnTranscript(room chat.Room, events []chat.Event)
}

// NopPresenter discards everything. Embed it to implement only part of
// Presenter.
type NopPresenter struct{}

func (NopPresenter) OnPhaseChange(Phase) {}
func (NopPresenter) OnEventAppended(chat.Event) {}
func (NopPresenter) OnNotification(string, chat.Severity) {}
func (NopPresenter) OnTranscript(chat.Room, []chat.Event) {}
