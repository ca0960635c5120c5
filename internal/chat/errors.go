package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes reported to the presentation layer.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotConnected     = errors.New("not connected to server")
	ErrTransport        = errors.New("transport failure")
	ErrServerRejection  = errors.New("rejected by server")
	ErrDirectoryRequest = errors.New("room directory request failed")
)

// ValidationError reports input rejected locally before any network use.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation returns a *ValidationError for field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransportError reports a connection-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s failed", e.Op)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ServerRejection carries the reason from an explicit server error message.
type ServerRejection struct {
	Reason string
}

func (e *ServerRejection) Error() string {
	return "server rejected request: " + e.Reason
}

func (e *ServerRejection) Is(target error) bool { return target == ErrServerRejection }

// DirectoryError reports a failed room directory call. Status is zero when
// the request never got an HTTP response.
type DirectoryError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *DirectoryError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
}

func (e *DirectoryError) Unwrap() error { return e.Err }

func (e *DirectoryError) Is(target error) bool { return target == ErrDirectoryRequest }

// Describe turns an error into the short text shown to the user.
func Describe(err error) string {
	var (
		verr *ValidationError
		rej  *ServerRejection
		derr *DirectoryError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &rej):
		return rej.Reason
	case errors.As(err, &derr):
		if derr.Message != "" {
			return derr.Message
		}
		return "network error, please retry"
	case errors.Is(err, ErrNotConnected):
		return "connection lost, please rejoin the room"
	case errors.Is(err, ErrTransport):
		return "connection lost"
	default:
		return err.Error()
	}
}
