package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tanklab/tanktalk/internal/backend"
)

// DefaultLanguage is used when no preference resolves for a user.
const DefaultLanguage = "en"

// ParticipantDirectory resolves participant IDs to their details.
// Unresolvable IDs are simply absent from the result, not an error.
type ParticipantDirectory interface {
	GetParticipantDetails(ctx context.Context, ids []string) ([]backend.Participant, error)
}

// LanguageResolver looks up a user's output-language preference.
type LanguageResolver interface {
	GetUserLanguage(ctx context.Context, userID string) (string, error)
}

// SendRequest describes one "say something and get a reply" call.
// SessionID empty means start a new conversation.
type SendRequest struct {
	SessionID      string
	Message        string
	UserID         string
	ParticipantIDs []string
	SpeakerName    string
	Topic          string
}

// SendResult is the outcome of a send, including whether a new session had
// to be created (either first contact or expiry replacement).
type SendResult struct {
	Lines        []backend.DialogueLine
	SessionID    string
	IsNewSession bool
}

// Manager is the single entry point for sending messages. It hides session
// creation and the renew-once recovery from remote expiry.
type Manager struct {
	generator backend.Generator
	store     Store
	directory ParticipantDirectory
	languages LanguageResolver
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a session lifecycle manager.
func NewManager(generator backend.Generator, store Store, directory ParticipantDirectory, languages LanguageResolver) *Manager {
	return &Manager{
		generator: generator,
		store:     store,
		directory: directory,
		languages: languages,
		logger:    slog.Default().With(slog.String("component", "session.manager")),
		now:       time.Now,
	}
}

// Send submits one turn, creating or renewing the session as needed.
//
// The renew-once rule: if the remote service reports the session expired,
// the old record is marked expired, exactly one replacement session is
// created and the generate call retried on it. A second expiry, or any
// error not classified as expiry, propagates unmodified. This bounds every
// call to at most one extra remote round-trip.
func (m *Manager) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	roster, err := m.resolveRoster(ctx, req.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	language := m.resolveLanguage(ctx, req.UserID)

	if req.SessionID == "" {
		return m.sendOnNewSession(ctx, req, roster, language)
	}
	return m.sendOnExistingSession(ctx, req, roster, language)
}

// resolveRoster looks up participant details once per call. The resolved
// roster, not the raw ID list, is what the service sees.
func (m *Manager) resolveRoster(ctx context.Context, ids []string) ([]backend.Participant, error) {
	roster, err := m.directory.GetParticipantDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve participants: %w", err)
	}
	if len(roster) == 0 {
		return nil, &NoValidParticipantsError{Requested: len(ids)}
	}
	return roster, nil
}

func (m *Manager) resolveLanguage(ctx context.Context, userID string) string {
	if userID == "" || m.languages == nil {
		return DefaultLanguage
	}

	language, err := m.languages.GetUserLanguage(ctx, userID)
	if err != nil || language == "" {
		return DefaultLanguage
	}
	return language
}

// sendOnNewSession creates a local record plus remote context, then runs the
// first generate call on it.
func (m *Manager) sendOnNewSession(ctx context.Context, req SendRequest, roster []backend.Participant, language string) (*SendResult, error) {
	sess, err := m.createSession(ctx, req.ParticipantIDs, req.Topic)
	if err != nil {
		return nil, err
	}

	result, err := m.generate(ctx, sess, req, roster, language)
	if err != nil {
		return nil, err
	}

	m.recordFirstMessage(ctx, sess.ID)

	return &SendResult{
		Lines:        result.Lines,
		SessionID:    sess.ID,
		IsNewSession: true,
	}, nil
}

// sendOnExistingSession generates on the stored session, renewing it at most
// once when the remote side reports expiry.
func (m *Manager) sendOnExistingSession(ctx context.Context, req SendRequest, roster []backend.Participant, language string) (*SendResult, error) {
	sess, err := m.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := m.generate(ctx, sess, req, roster, language)
	if err == nil {
		m.recordMessage(ctx, sess)
		return &SendResult{
			Lines:        result.Lines,
			SessionID:    sess.ID,
			IsNewSession: false,
		}, nil
	}

	if !backend.IsSessionExpired(err) {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Remote session expired, renewing once",
		slog.String("session_id", sess.ID),
		slog.Int("roster_size", len(roster)),
	)

	m.markExpired(ctx, sess.ID)

	// Replacement session for the same roster and topic. No second renewal:
	// whatever this attempt returns goes straight back to the caller.
	replacement, err := m.createSession(ctx, sess.Participants, sess.Topic)
	if err != nil {
		return nil, err
	}

	result, err = m.generate(ctx, replacement, req, roster, language)
	if err != nil {
		return nil, err
	}

	m.recordFirstMessage(ctx, replacement.ID)

	return &SendResult{
		Lines:        result.Lines,
		SessionID:    replacement.ID,
		IsNewSession: true,
	}, nil
}

// createSession makes the local record and the remote context together.
func (m *Manager) createSession(ctx context.Context, participantIDs []string, topic string) (*ConversationSession, error) {
	externalID, err := m.generator.CreateSession(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &ConversationSession{
		ID:            uuid.NewString(),
		ExternalID:    externalID,
		Participants:  append([]string(nil), participantIDs...),
		Topic:         topic,
		Status:        StatusActive,
		MessageCount:  0,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	return sess, nil
}

func (m *Manager) generate(ctx context.Context, sess *ConversationSession, req SendRequest, roster []backend.Participant, language string) (*backend.GenerateResult, error) {
	topic := req.Topic
	if topic == "" {
		topic = sess.Topic
	}

	return m.generator.Generate(ctx, backend.GenerateRequest{
		Topic:        topic,
		Participants: roster,
		ExternalID:   sess.ExternalID,
		UserMessage:  req.Message,
		SpeakerName:  req.SpeakerName,
		Language:     language,
	})
}

// Bookkeeping writes are best-effort: the generated lines are already in
// hand, so a failed update can at most undercount messages. It must never
// fail the send.

func (m *Manager) recordFirstMessage(ctx context.Context, sessionID string) {
	count := 1
	now := m.now()
	err := m.store.Update(ctx, sessionID, SessionUpdate{
		MessageCount:  &count,
		LastMessageAt: &now,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to record first message",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) recordMessage(ctx context.Context, sess *ConversationSession) {
	count := sess.MessageCount + 1
	now := m.now()
	err := m.store.Update(ctx, sess.ID, SessionUpdate{
		MessageCount:  &count,
		LastMessageAt: &now,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to record message",
			slog.String("session_id", sess.ID),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) markExpired(ctx context.Context, sessionID string) {
	status := StatusExpired
	err := m.store.Update(ctx, sessionID, SessionUpdate{Status: &status})
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to mark session expired",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
}
