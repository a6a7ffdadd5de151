package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanklab/tanktalk/internal/backend"
	"github.com/tanklab/tanktalk/internal/session"
)

// scriptedGenerator returns canned outcomes per Generate call, in order.
// Once the script runs out, the last outcome repeats.
type scriptedGenerator struct {
	generateErrs  []error
	createErr     error
	createCalls   int
	generateCalls int
	externalIDs   []string
	lines         []backend.DialogueLine
}

func (g *scriptedGenerator) CreateSession(_ context.Context) (string, error) {
	g.createCalls++
	if g.createErr != nil {
		return "", g.createErr
	}
	if len(g.externalIDs) > 0 {
		id := g.externalIDs[0]
		if len(g.externalIDs) > 1 {
			g.externalIDs = g.externalIDs[1:]
		}
		return id, nil
	}
	return "ext-default", nil
}

func (g *scriptedGenerator) Generate(_ context.Context, _ backend.GenerateRequest) (*backend.GenerateResult, error) {
	g.generateCalls++
	var err error
	if len(g.generateErrs) > 0 {
		err = g.generateErrs[0]
		if len(g.generateErrs) > 1 {
			g.generateErrs = g.generateErrs[1:]
		}
	}
	if err != nil {
		return nil, err
	}

	lines := g.lines
	if lines == nil {
		lines = []backend.DialogueLine{
			{SpeakerID: "p1", SpeakerName: "Bubbles", Text: "blub", Sequence: 1},
			{SpeakerID: "p2", SpeakerName: "Finn", Text: "glub", Sequence: 2},
		}
	}
	return &backend.GenerateResult{Lines: lines}, nil
}

// staticDirectory resolves a fixed set of participants.
type staticDirectory struct {
	known map[string]backend.Participant
}

func (d *staticDirectory) GetParticipantDetails(_ context.Context, ids []string) ([]backend.Participant, error) {
	var out []backend.Participant
	for _, id := range ids {
		if p, ok := d.known[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type staticLanguages struct {
	byUser map[string]string
}

func (l *staticLanguages) GetUserLanguage(_ context.Context, userID string) (string, error) {
	if lang, ok := l.byUser[userID]; ok {
		return lang, nil
	}
	return "", nil
}

func testDirectory() *staticDirectory {
	return &staticDirectory{known: map[string]backend.Participant{
		"p1": {ID: "p1", Name: "Bubbles", Personality: "cheerful"},
		"p2": {ID: "p2", Name: "Finn", Personality: "grumpy"},
		"p3": {ID: "p3", Name: "Gil", Personality: "sleepy"},
	}}
}

func newTestManager(gen *scriptedGenerator) (*session.Manager, *session.MemoryStore) {
	store := session.NewMemoryStore()
	mgr := session.NewManager(gen, store, testDirectory(), &staticLanguages{})
	return mgr, store
}

// Scenario A: first call with no session ID creates a session and returns a
// sorted batch with IsNewSession=true.
func TestSendCreatesNewSession(t *testing.T) {
	gen := &scriptedGenerator{externalIDs: []string{"ext-1"}}
	mgr, store := newTestManager(gen)

	result, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2", "p3"},
		Topic:          "morning kelp",
	})
	require.NoError(t, err)
	require.True(t, result.IsNewSession)
	require.NotEmpty(t, result.SessionID)
	require.Len(t, result.Lines, 2)

	sess, err := store.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.Equal(t, 1, sess.MessageCount)
	assert.Equal(t, "ext-1", sess.ExternalID)
	assert.Equal(t, "morning kelp", sess.Topic)

	for i := 1; i < len(result.Lines); i++ {
		assert.Less(t, result.Lines[i-1].Sequence, result.Lines[i].Sequence)
	}
}

// Scenario B: an expiry error on an existing session triggers exactly one
// renewal; two backend generate calls total.
func TestSendRenewsOnceOnExpiry(t *testing.T) {
	gen := &scriptedGenerator{externalIDs: []string{"ext-1", "ext-2"}}
	mgr, store := newTestManager(gen)

	first, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
		Topic:          "tank gossip",
	})
	require.NoError(t, err)

	gen.generateErrs = []error{
		&backend.RemoteError{Code: "HTTP_410", Message: "conversation expired"},
		nil,
	}
	callsBefore := gen.generateCalls

	second, err := mgr.Send(context.Background(), session.SendRequest{
		SessionID:      first.SessionID,
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
	})
	require.NoError(t, err)
	assert.True(t, second.IsNewSession)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, 2, gen.generateCalls-callsBefore, "expected original attempt plus one retry")

	old, err := store.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusExpired, old.Status)

	replacement, err := store.Get(context.Background(), second.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, replacement.Status)
	assert.Equal(t, 1, replacement.MessageCount)
	assert.Equal(t, old.Participants, replacement.Participants)
	assert.Equal(t, old.Topic, replacement.Topic)
}

// Scenario C: a generic failure propagates unmodified and creates nothing.
func TestSendPropagatesGenericError(t *testing.T) {
	gen := &scriptedGenerator{}
	mgr, store := newTestManager(gen)

	first, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
		Topic:          "tank gossip",
	})
	require.NoError(t, err)
	sessionsBefore := store.Len()

	netErr := errors.New("connection reset by peer")
	gen.generateErrs = []error{netErr}

	_, err = mgr.Send(context.Background(), session.SendRequest{
		SessionID:      first.SessionID,
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
	})
	require.ErrorIs(t, err, netErr)
	assert.Equal(t, sessionsBefore, store.Len(), "no replacement session expected")

	sess, err := store.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, sess.Status, "status must be unchanged")
}

// A second expiry during the renewal attempt propagates; renewal happens at
// most once per call.
func TestSendDoesNotRenewTwice(t *testing.T) {
	gen := &scriptedGenerator{externalIDs: []string{"ext-1", "ext-2"}}
	mgr, _ := newTestManager(gen)

	first, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
		Topic:          "tank gossip",
	})
	require.NoError(t, err)

	expiry := &backend.RemoteError{Code: "CONVERSATION_EXPIRED", Message: "conversation expired"}
	gen.generateErrs = []error{expiry, expiry}
	createsBefore := gen.createCalls
	callsBefore := gen.generateCalls

	_, err = mgr.Send(context.Background(), session.SendRequest{
		SessionID:      first.SessionID,
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
	})
	require.Error(t, err)
	assert.True(t, backend.IsSessionExpired(err), "second expiry must surface unmodified")
	assert.Equal(t, 2, gen.generateCalls-callsBefore)
	assert.Equal(t, 1, gen.createCalls-createsBefore, "exactly one replacement session")
}

func TestSendExistingSessionIncrementsCount(t *testing.T) {
	gen := &scriptedGenerator{}
	mgr, store := newTestManager(gen)

	first, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
		Topic:          "snail sightings",
	})
	require.NoError(t, err)

	second, err := mgr.Send(context.Background(), session.SendRequest{
		SessionID:      first.SessionID,
		UserID:         "user-1",
		ParticipantIDs: []string{"p1", "p2"},
		Message:        "what about the snail?",
	})
	require.NoError(t, err)
	assert.False(t, second.IsNewSession)
	assert.Equal(t, first.SessionID, second.SessionID)

	sess, err := store.Get(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.MessageCount)
}

func TestSendUnknownSessionID(t *testing.T) {
	gen := &scriptedGenerator{}
	mgr, _ := newTestManager(gen)

	_, err := mgr.Send(context.Background(), session.SendRequest{
		SessionID:      "no-such-session",
		UserID:         "user-1",
		ParticipantIDs: []string{"p1"},
	})
	require.Error(t, err)
	assert.True(t, session.IsSessionNotFound(err))
	assert.Zero(t, gen.generateCalls, "no backend call for unknown session")
}

func TestSendNoValidParticipants(t *testing.T) {
	gen := &scriptedGenerator{}
	mgr, _ := newTestManager(gen)

	_, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"ghost-1", "ghost-2"},
	})
	require.Error(t, err)
	assert.True(t, session.IsNoValidParticipants(err))
	assert.Zero(t, gen.createCalls)
	assert.Zero(t, gen.generateCalls)
}

func TestSendCreateSessionFailure(t *testing.T) {
	gen := &scriptedGenerator{createErr: &backend.BackendUnavailableError{Reason: "no key"}}
	mgr, store := newTestManager(gen)

	_, err := mgr.Send(context.Background(), session.SendRequest{
		UserID:         "user-1",
		ParticipantIDs: []string{"p1"},
	})
	require.Error(t, err)
	assert.True(t, backend.IsBackendUnavailable(err))
	assert.Zero(t, store.Len(), "no local record without a remote session")
}
