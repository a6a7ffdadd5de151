package backend

import (
	"errors"
	"fmt"
	"strings"
)

// BackendUnavailableError indicates the service could not be reached at all:
// missing credentials or a network-level failure. Never retried here; retry
// policy lives with the caller.
type BackendUnavailableError struct {
	Reason string
}

// Error implements the error interface.
func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("dialogue backend unavailable: %s", e.Reason)
}

// GenerationTimeoutError indicates the job-status polling loop exhausted its
// attempt budget. Callers treat this as a generic failure, not as expiry.
type GenerationTimeoutError struct {
	Attempts int
}

// Error implements the error interface.
func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %d poll attempts", e.Attempts)
}

// UnparseableResponseError indicates none of the known response shapes
// matched. The whole batch fails; there are no partial results.
type UnparseableResponseError struct {
	Reason string
}

// Error implements the error interface.
func (e *UnparseableResponseError) Error() string {
	return fmt.Sprintf("unparseable dialogue response: %s", e.Reason)
}

// RemoteError is a structured error reported by the service itself.
type RemoteError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dialogue service error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("dialogue service error: %s", e.Message)
}

// Expiry classification patterns. The service discards conversation context
// silently; the only signal is one of these codes or message fragments on the
// next send.
var expiryCodes = map[string]bool{
	"CONVERSATION_EXPIRED":   true,
	"CONVERSATION_NOT_FOUND": true,
	"SESSION_EXPIRED":        true,
}

var expiryFragments = []string{
	"conversation expired",
	"conversation not found",
	"session expired",
	"session not found",
}

// IsSessionExpired reports whether err is the remote service telling us the
// conversation context is gone. It is a pure predicate: no side effects, same
// answer every call. The lifecycle manager's renew-once retry hinges on it.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		if expiryCodes[remoteErr.Code] {
			return true
		}
		msg := strings.ToLower(remoteErr.Message)
		for _, fragment := range expiryFragments {
			if strings.Contains(msg, fragment) {
				return true
			}
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range expiryFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// IsBackendUnavailable checks if an error is a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}

// IsGenerationTimeout checks if an error is a GenerationTimeoutError.
func IsGenerationTimeout(err error) bool {
	var target *GenerationTimeoutError
	return errors.As(err, &target)
}
