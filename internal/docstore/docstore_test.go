package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Docstore_PutAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	chunks := []rag.Chunk{
		{ID: "c1", Text: "Jupiter charges no account fees.", SourceURL: "https://jupiter.money/pricing", Title: "Pricing", Position: 0, Category: "pricing"},
		{ID: "c2", Text: "Open an account in five minutes.", SourceURL: "https://jupiter.money/account", Title: "Accounts", Position: 3, Category: "product"},
	}
	if err := s.Put(ctx, chunks); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "c2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != chunks[1].Text || got.Position != 3 || got.Title != "Accounts" {
		t.Errorf("get c2: got %+v", got)
	}
}

func Test_Docstore_GetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func Test_Docstore_PutReplacesExisting(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, []rag.Chunk{{ID: "c1", Text: "old", SourceURL: "u", Position: 0}}); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if err := s.Put(ctx, []rag.Chunk{{ID: "c1", Text: "new", SourceURL: "u", Position: 0}}); err != nil {
		t.Fatalf("put new: %v", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "new" {
		t.Errorf("want replaced text, got %q", got.Text)
	}
}

func Test_Docstore_Count(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, []rag.Chunk{
		{ID: "a", Text: "x", SourceURL: "u", Position: 0},
		{ID: "b", Text: "y", SourceURL: "u", Position: 1},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("want 2 chunks, got %d", n)
	}
}
