package session

import (
	"errors"
	"fmt"
)

// SessionNotFoundError indicates the caller supplied a session ID with no
// matching local record. Fatal for the call; never retried.
type SessionNotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.ID)
}

// NoValidParticipantsError indicates the roster resolved to zero usable
// entries. Callers treat this as a no-op, not a user-facing failure.
type NoValidParticipantsError struct {
	Requested int
}

// Error implements the error interface.
func (e *NoValidParticipantsError) Error() string {
	return fmt.Sprintf("none of %d requested participants resolved", e.Requested)
}

// IsSessionNotFound checks if an error is a SessionNotFoundError.
func IsSessionNotFound(err error) bool {
	var target *SessionNotFoundError
	return errors.As(err, &target)
}

// IsNoValidParticipants checks if an error is a NoValidParticipantsError.
func IsNoValidParticipants(err error) bool {
	var target *NoValidParticipantsError
	return errors.As(err, &target)
}
