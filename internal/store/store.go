// Package store provides a SQLite-backed store for chat sessions: the
// conversation history keyed by session ID, and user feedback on individual
// answers. Messages are persisted across server restarts and injected into
// the LLM context window on subsequent turns of the same session.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the website visitor.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Rating is a visitor's verdict on one assistant answer.
type Rating string

const (
	// RatingUp marks an answer as helpful.
	RatingUp Rating = "thumbs_up"
	// RatingDown marks an answer as unhelpful.
	RatingDown Rating = "thumbs_down"
)

// FeedbackCounts aggregates stored feedback.
type FeedbackCounts struct {
	// Up is the number of thumbs-up ratings.
	Up int
	// Down is the number of thumbs-down ratings.
	Down int
}

// ConversationStore persists and retrieves conversation history keyed by
// session ID. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists a single message for the given session.
	Append(ctx context.Context, sessionID string, role Role, content string) error
	// Recent returns the most recent n messages for the session, ordered
	// oldest-first so they can be prepended to the LLM message slice directly.
	// If fewer than n messages exist, all are returned.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)
	// Close releases any resources held by the store.
	Close() error
}

// FeedbackStore records visitor feedback on assistant answers.
type FeedbackStore interface {
	// RecordFeedback persists one rating for the session, with an optional
	// free-text comment.
	RecordFeedback(ctx context.Context, sessionID string, rating Rating, comment string) error
	// FeedbackCounts returns the aggregate up/down totals across all sessions.
	FeedbackCounts(ctx context.Context) (FeedbackCounts, error)
}

// SQLiteStore implements ConversationStore and FeedbackStore on a local
// SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the session database.
// It resolves to ~/.jupiterbot/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".jupiterbot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_session_created
    ON conversations (session_id, created_at);

CREATE TABLE IF NOT EXISTS user_feedback (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    rating       TEXT    NOT NULL CHECK(rating IN ('thumbs_up','thumbs_down')),
    comment      TEXT    NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_feedback_session
    ON user_feedback (session_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single message for the given session.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, role Role, content string) error {
	const q = `INSERT INTO conversations (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n messages for the session, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   conversations
    WHERE  session_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return msgs, nil
}

// RecordFeedback persists one rating for the session.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, sessionID string, rating Rating, comment string) error {
	if rating != RatingUp && rating != RatingDown {
		return fmt.Errorf("store: invalid rating %q", rating)
	}
	const q = `INSERT INTO user_feedback (session_id, rating, comment, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, string(rating), comment, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: record feedback: %w", err)
	}
	return nil
}

// FeedbackCounts returns the aggregate up/down totals across all sessions.
func (s *SQLiteStore) FeedbackCounts(ctx context.Context) (FeedbackCounts, error) {
	const q = `
SELECT
    COALESCE(SUM(CASE WHEN rating = 'thumbs_up'   THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN rating = 'thumbs_down' THEN 1 ELSE 0 END), 0)
FROM user_feedback`

	var c FeedbackCounts
	if err := s.db.QueryRowContext(ctx, q).Scan(&c.Up, &c.Down); err != nil {
		return FeedbackCounts{}, fmt.Errorf("store: feedback counts: %w", err)
	}
	return c, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
