package session

import (
	"context"
	"sync"
	"time"
)

// Store persists ConversationSession records. Updates are partial: only the
// fields set on SessionUpdate change.
type Store interface {
	Create(ctx context.Context, sess *ConversationSession) error
	Get(ctx context.Context, id string) (*ConversationSession, error)
	Update(ctx context.Context, id string, update SessionUpdate) error

	// DeleteExpiredBefore removes expired sessions older than cutoff and
	// returns how many were deleted. Best-effort housekeeping only.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	sessions map[string]*ConversationSession
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*ConversationSession),
	}
}

// Create stores a new session record.
func (s *MemoryStore) Create(_ context.Context, sess *ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

// Get returns the session with the given ID, or SessionNotFoundError.
func (s *MemoryStore) Get(_ context.Context, id string) (*ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	copied := *sess
	return &copied, nil
}

// Update applies a partial update to a stored session.
func (s *MemoryStore) Update(_ context.Context, id string, update SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &SessionNotFoundError{ID: id}
	}

	if update.Status != nil {
		sess.Status = *update.Status
	}
	if update.MessageCount != nil {
		sess.MessageCount = *update.MessageCount
	}
	if update.LastMessageAt != nil {
		sess.LastMessageAt = *update.LastMessageAt
	}
	return nil
}

// DeleteExpiredBefore removes expired sessions last touched before cutoff.
func (s *MemoryStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Status == StatusExpired && sess.LastMessageAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
