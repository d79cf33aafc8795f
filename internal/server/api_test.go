package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/retrieval"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes for retrieve and feedback handler tests
// ---------------------------------------------------------------------------

// fakeRetriever implements the Retriever interface for tests.
type fakeRetriever struct {
	// result is returned on success.
	result retrieval.Result
	// err is returned as the error value.
	err error
	// gotQuery and gotHistory record what the handler passed through.
	gotQuery   string
	gotHistory []retrieval.Turn
}

func (f *fakeRetriever) Retrieve(_ context.Context, utterance string, history []retrieval.Turn) (retrieval.Result, error) {
	f.gotQuery = utterance
	f.gotHistory = history
	return f.result, f.err
}

// fakeFeedback implements store.FeedbackStore for tests.
type fakeFeedback struct {
	// recorded collects every rating passed to RecordFeedback.
	recorded []store.Rating
	// counts is returned by FeedbackCounts.
	counts store.FeedbackCounts
	// err is returned by both methods when non-nil.
	err error
}

func (f *fakeFeedback) RecordFeedback(_ context.Context, _ string, rating store.Rating, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, rating)
	return nil
}

func (f *fakeFeedback) FeedbackCounts(_ context.Context) (store.FeedbackCounts, error) {
	return f.counts, f.err
}

// ---------------------------------------------------------------------------
// POST /api/retrieve
// ---------------------------------------------------------------------------

func TestHandleRetrieve_Success(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{result: retrieval.Result{
		Citations: []retrieval.Citation{
			{Rank: 1, Label: "Source 1: Refund Policy", ChunkID: "c1", SourceURL: "https://example.com/refunds", Score: 1.0},
		},
		NormalizedQuery: "refund policy",
	}}
	s := newTestServer()
	s.retriever = r

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"query":"do you offer refunds?","history":[{"role":"user","text":"hi"}]}`))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var got retrieval.Result
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Citations) != 1 || got.Citations[0].Label != "Source 1: Refund Policy" {
		t.Errorf("citations = %+v", got.Citations)
	}
	if got.NormalizedQuery != "refund policy" {
		t.Errorf("NormalizedQuery = %q", got.NormalizedQuery)
	}
	if r.gotQuery != "do you offer refunds?" {
		t.Errorf("retriever query = %q", r.gotQuery)
	}
	if len(r.gotHistory) != 1 || r.gotHistory[0].Role != retrieval.RoleUser {
		t.Errorf("retriever history = %+v", r.gotHistory)
	}
}

func TestHandleRetrieve_InvalidInput(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{err: fmt.Errorf("too short: %w", retrieval.ErrInvalidInput)}
	s := newTestServer()
	s.retriever = r

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"query":"??"}`))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleRetrieve_InternalError(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{err: errors.New("boom")}
	s := newTestServer()
	s.retriever = r

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"query":"what plans exist?"}`))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleRetrieve_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"query":"anything"}`))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// TestHandleRetrieve_EmptyCitationsIsArray verifies that an empty result
// serializes citations as [] rather than null.
func TestHandleRetrieve_EmptyCitationsIsArray(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{result: retrieval.Result{NormalizedQuery: "nothing matches"}}
	s := newTestServer()
	s.retriever = r

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"query":"nothing matches this"}`))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if !strings.Contains(w.Body.String(), `"citations":[]`) {
		t.Errorf("expected empty array, got: %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /api/feedback and GET /api/feedback/summary
// ---------------------------------------------------------------------------

func TestHandleFeedback_Recorded(t *testing.T) {
	t.Parallel()

	fb := &fakeFeedback{}
	s := newTestServer()
	s.feedback = fb

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"session_id":"sess-1","rating":"thumbs_up","comment":"helpful"}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", w.Code, w.Body.String())
	}
	if len(fb.recorded) != 1 || fb.recorded[0] != store.RatingUp {
		t.Errorf("recorded = %+v", fb.recorded)
	}
}

func TestHandleFeedback_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"missing session", `{"rating":"thumbs_up"}`},
		{"unknown rating", `{"session_id":"s","rating":"five_stars"}`},
		{"empty rating", `{"session_id":"s"}`},
		{"bad json", `not-json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer()
			s.feedback = &fakeFeedback{}

			req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			s.handleFeedback(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHandleFeedback_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"session_id":"s","rating":"thumbs_up"}`))
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHandleFeedbackSummary(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.feedback = &fakeFeedback{counts: store.FeedbackCounts{Up: 7, Down: 2}}

	req := httptest.NewRequest(http.MethodGet, "/api/feedback/summary", nil)
	w := httptest.NewRecorder()

	s.handleFeedbackSummary(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got feedbackSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Up != 7 || got.Down != 2 {
		t.Errorf("summary = %+v, want {7 2}", got)
	}
}
