// Package docstore provides a SQLite-backed document store for ingested
// website chunks. The vector index only holds embeddings and citation
// metadata; the full chunk records — text included — live here and are
// fetched by ID during retrieval.
package docstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
)

// SQLiteStore is a rag.DocumentStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
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
CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT    PRIMARY KEY,
    text        TEXT    NOT NULL,
    source_url  TEXT    NOT NULL,
    title       TEXT    NOT NULL DEFAULT '',
    position    INTEGER NOT NULL,
    category    TEXT    NOT NULL DEFAULT 'general'
);
CREATE INDEX IF NOT EXISTS idx_chunks_source_position
    ON chunks (source_url, position);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// Put stores or replaces a batch of chunk records in a single transaction.
// Embeddings are not persisted here — they belong to the vector index.
func (s *SQLiteStore) Put(ctx context.Context, chunks []rag.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const q = `INSERT OR REPLACE INTO chunks (id, text, source_url, title, position, category)
               VALUES (?, ?, ?, ?, ?, ?)`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, q, c.ID, c.Text, c.SourceURL, c.Title, c.Position, c.Category); err != nil {
			return fmt.Errorf("docstore: put %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("docstore: commit: %w", err)
	}
	return nil
}

// Get returns the chunk record for the given ID, or an error wrapping
// rag.ErrNotFound when no such chunk exists.
func (s *SQLiteStore) Get(ctx context.Context, id string) (rag.Chunk, error) {
	const q = `SELECT id, text, source_url, title, position, category FROM chunks WHERE id = ?`

	var c rag.Chunk
	err := s.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Text, &c.SourceURL, &c.Title, &c.Position, &c.Category)
	if err == sql.ErrNoRows {
		return rag.Chunk{}, fmt.Errorf("docstore: get %s: %w", id, rag.ErrNotFound)
	}
	if err != nil {
		return rag.Chunk{}, fmt.Errorf("docstore: get %s: %w", id, err)
	}
	return c, nil
}

// Count returns the number of chunk records in the store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("docstore: count: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("docstore: close: %w", err)
	}
	return nil
}
