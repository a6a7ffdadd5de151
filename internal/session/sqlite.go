package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// SQLite driver registration.
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite session store: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite session store: open: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_sessions (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL,
			participants TEXT NOT NULL,
			topic TEXT NOT NULL,
			status TEXT NOT NULL,
			message_count INTEGER NOT NULL,
			created_at_ms INTEGER NOT NULL,
			last_message_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_status
			ON conversation_sessions(status, last_message_at_ms);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("sqlite session store: migrate: %w", err)
		}
	}
	return nil
}

// Create stores a new session record.
func (s *SQLiteStore) Create(ctx context.Context, sess *ConversationSession) error {
	participants, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("sqlite session store: marshal participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions
			(id, external_id, participants, topic, status, message_count, created_at_ms, last_message_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ExternalID, string(participants), sess.Topic, string(sess.Status),
		sess.MessageCount, sess.CreatedAt.UnixMilli(), sess.LastMessageAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite session store: create: %w", err)
	}
	return nil
}

// Get returns the session with the given ID, or SessionNotFoundError.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*ConversationSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, participants, topic, status, message_count, created_at_ms, last_message_at_ms
		FROM conversation_sessions WHERE id = ?`, id)

	var (
		sess             ConversationSession
		participantsJSON string
		status           string
		createdAtMs      int64
		lastMessageAtMs  int64
	)
	err := row.Scan(&sess.ID, &sess.ExternalID, &participantsJSON, &sess.Topic,
		&status, &sess.MessageCount, &createdAtMs, &lastMessageAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SessionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite session store: get: %w", err)
	}

	if err := json.Unmarshal([]byte(participantsJSON), &sess.Participants); err != nil {
		return nil, fmt.Errorf("sqlite session store: unmarshal participants: %w", err)
	}
	sess.Status = Status(status)
	sess.CreatedAt = time.UnixMilli(createdAtMs)
	sess.LastMessageAt = time.UnixMilli(lastMessageAtMs)
	return &sess, nil
}

// Update applies a partial update to a stored session.
func (s *SQLiteStore) Update(ctx context.Context, id string, update SessionUpdate) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.MessageCount != nil {
		sets = append(sets, "message_count = ?")
		args = append(args, *update.MessageCount)
	}
	if update.LastMessageAt != nil {
		sets = append(sets, "last_message_at_ms = ?")
		args = append(args, update.LastMessageAt.UnixMilli())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE conversation_sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("sqlite session store: update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite session store: update result: %w", err)
	}
	if affected == 0 {
		return &SessionNotFoundError{ID: id}
	}
	return nil
}

// DeleteExpiredBefore removes expired sessions last touched before cutoff.
func (s *SQLiteStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_sessions WHERE status = ? AND last_message_at_ms < ?`,
		string(StatusExpired), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite session store: delete expired: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite session store: delete result: %w", err)
	}
	return int(affected), nil
}
