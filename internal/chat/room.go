package chat

import "strings"

// Room is the immutable snapshot of the active room captured at join time.
// A password change during the session does not alter it.
type Room struct {
	ID   string
	Name string
}

// Label returns the display name, falling back to the id.
func (r Room) Label() string {
	if strings.TrimSpace(r.Name) == "" {
		return r.ID
	}
	return r.Name
}

// Severity classifies a user-visible notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}
