package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired is returned when the remote service answers 401.
	ErrAuthExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned without any network call when no
	// bearer token is held.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials is returned by login when the service rejects
	// the username/password pair.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrProtocolViolation marks a stream that tried to reassign its
	// conversation id.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrNoConversationAssigned is returned when a provisioning stream ends
	// without naming a conversation.
	ErrNoConversationAssigned = errors.New("stream ended without a conversation id")
)

// NetworkError is a transport-level failure: the connection failed or the
// service answered with a non-2xx status other than 401.
type NetworkError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedEventError describes a `data:` line whose payload could not be
// decoded. It is reported, never returned from a send.
type MalformedEventError struct {
	Line string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed stream event %q: %v", e.Line, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// ServerError carries an error reported inside the stream by the service.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server error: " + e.Message }

// ValidationError rejects a file locally before any network call.
type ValidationError struct {
	Filename string
	Size     int64
	Limit    int64
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}
