package store

import (
	"context"
	"fmt"
	"testing"
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

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-a", RoleUser, "hello"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := s.Append(ctx, "sess-a", RoleAssistant, "world"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := s.Recent(ctx, "sess-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("msg[0]: want user/hello, got %s/%s", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "world" {
		t.Errorf("msg[1]: want assistant/world, got %s/%s", msgs[1].Role, msgs[1].Content)
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := s.Append(ctx, "sess-a", RoleUser, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.Recent(ctx, "sess-a", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %d", len(msgs))
	}
	// Oldest-first ordering of the most recent tail.
	if msgs[0].Content != "message 3" || msgs[2].Content != "message 5" {
		t.Errorf("wrong tail: %q .. %q", msgs[0].Content, msgs[2].Content)
	}
}

func Test_Store_SessionsAreIsolated(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-a", RoleUser, "from a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "sess-b", RoleUser, "from b"); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := s.Recent(ctx, "sess-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "from a" {
		t.Errorf("session a leaked messages: %+v", msgs)
	}
}

func Test_Store_RecentEmptySession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	msgs, err := s.Recent(context.Background(), "never-seen", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("want no messages, got %d", len(msgs))
	}
}

func Test_Store_Feedback(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordFeedback(ctx, "sess-a", RatingUp, ""); err != nil {
		t.Fatalf("record up: %v", err)
	}
	if err := s.RecordFeedback(ctx, "sess-a", RatingUp, "great answer"); err != nil {
		t.Fatalf("record up: %v", err)
	}
	if err := s.RecordFeedback(ctx, "sess-b", RatingDown, "missed the point"); err != nil {
		t.Fatalf("record down: %v", err)
	}

	counts, err := s.FeedbackCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Up != 2 || counts.Down != 1 {
		t.Errorf("got %+v, want Up=2 Down=1", counts)
	}
}

func Test_Store_FeedbackRejectsUnknownRating(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.RecordFeedback(context.Background(), "sess-a", Rating("meh"), ""); err == nil {
		t.Fatal("want error for unknown rating")
	}
}
