// Package session owns conversation sessions: handles to remote
// conversational context, their local records, and the send path that
// transparently renews a session the remote service has expired.
package session

import "time"

// Status describes whether a session can still accept sends.
type Status string

const (
	// StatusActive marks a session whose remote context is assumed live.
	StatusActive Status = "active"

	// StatusExpired marks a session the remote service has discarded.
	// Expired sessions are retained for audit and never resurrected.
	StatusExpired Status = "expired"
)

// ConversationSession is the local record of one remote conversational
// context. Scoped to a fixed participant roster and topic; replaced, not
// reused, when the remote side expires it.
type ConversationSession struct {
	ID            string
	ExternalID    string
	Participants  []string
	Topic         string
	Status        Status
	MessageCount  int
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// SessionUpdate is a partial update applied to a stored session.
// Nil fields are left untouched.
type SessionUpdate struct {
	Status        *Status
	MessageCount  *int
	LastMessageAt *time.Time
}
