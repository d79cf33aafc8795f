package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/chat"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/retrieval"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/store"
)

// newRoutedServer builds a fully wired *Server via New so requests traverse
// the real chain: request logger, auth, rate limiter, and instrumentation.
func newRoutedServer(t *testing.T, assistant Assistant, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	s, err := New(assistant, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// TestHandler_ChatStreamsThroughMiddleware exercises POST /api/chat through
// Server.Handler() rather than calling handleChat directly. The logging and
// metrics middleware wrap the response writer, so this guards the Flush
// pass-through that SSE streaming depends on.
func TestHandler_ChatStreamsThroughMiddleware(t *testing.T) {
	t.Parallel()

	a := &fakeAssistant{
		answer: "Support is available 24/7 [Source 1].",
		turn: chat.Turn{
			Citations: []retrieval.Citation{
				{Rank: 1, Label: "Source 1: Support Hours", ChunkID: "c1", SourceURL: "https://example.com/support"},
			},
		},
	}
	s := newRoutedServer(t, a, &Config{APIKey: "secret-key"})

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"session_id":"sess-1","message":"when is support available?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-key")
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: expected text/event-stream, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "data: Support is available 24/7 [Source 1].") {
		t.Errorf("expected answer data frame in body, got: %s", body)
	}
	if !strings.Contains(body, "event: citations") {
		t.Errorf("expected citations event in body, got: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("expected done event in body, got: %s", body)
	}
	if !w.Flushed {
		t.Error("response was never flushed to the client")
	}
}

// TestHandler_ProtectedRoutesRequireAuth verifies every protected route
// rejects unauthenticated requests when an API key is configured.
func TestHandler_ProtectedRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	s := newRoutedServer(t, &fakeAssistant{answer: "ok"}, &Config{
		APIKey:    "secret-key",
		Retriever: &fakeRetriever{},
		Feedback:  &fakeFeedback{},
	})

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/chat", `{"session_id":"s","message":"hi there"}`},
		{http.MethodPost, "/api/retrieve", `{"query":"business hours"}`},
		{http.MethodPost, "/api/feedback", `{"session_id":"s","rating":"thumbs_up"}`},
		{http.MethodGet, "/api/feedback/summary", ""},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 without token, got %d", w.Code)
			}
			if ch := w.Header().Get("WWW-Authenticate"); !strings.Contains(ch, "Bearer") {
				t.Errorf("expected Bearer challenge, got %q", ch)
			}
		})
	}
}

// TestHandler_RetrieveThroughMiddleware verifies POST /api/retrieve works end
// to end with a valid token.
func TestHandler_RetrieveThroughMiddleware(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{result: retrieval.Result{
		Citations: []retrieval.Citation{
			{Rank: 1, Label: "Source 1: Shipping", ChunkID: "c1", SourceURL: "https://example.com/shipping", Score: 1.0},
		},
		NormalizedQuery: "shipping times",
	}}
	s := newRoutedServer(t, &fakeAssistant{}, &Config{APIKey: "secret-key", Retriever: r})

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"query":"how long does shipping take?"}`))
	req.Header.Set("Authorization", "Bearer secret-key")
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Source 1: Shipping") {
		t.Errorf("expected citation in body, got: %s", w.Body.String())
	}
}

// TestHandler_FeedbackThroughMiddleware verifies POST /api/feedback and
// GET /api/feedback/summary work end to end with a valid token.
func TestHandler_FeedbackThroughMiddleware(t *testing.T) {
	t.Parallel()

	fb := &fakeFeedback{counts: store.FeedbackCounts{Up: 3, Down: 1}}
	s := newRoutedServer(t, &fakeAssistant{}, &Config{APIKey: "secret-key", Feedback: fb})

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"session_id":"sess-1","rating":"thumbs_up"}`))
	req.Header.Set("Authorization", "Bearer secret-key")
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", w.Code, w.Body.String())
	}
	if len(fb.recorded) != 1 || fb.recorded[0] != store.RatingUp {
		t.Errorf("expected one thumbs_up recorded, got %v", fb.recorded)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/feedback/summary", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"thumbs_up":3`) {
		t.Errorf("expected summary counts in body, got: %s", w.Body.String())
	}
}

// TestHandler_HealthSkipsAuth verifies the probes stay reachable without a
// token even when an API key is configured.
func TestHandler_HealthSkipsAuth(t *testing.T) {
	t.Parallel()

	s := newRoutedServer(t, &fakeAssistant{}, &Config{APIKey: "secret-key"})

	for _, path := range []string{"/api/health", "/api/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()

		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without token, got %d", path, w.Code)
		}
	}
}

// TestHandler_RateLimitExceeded verifies the per-IP limiter returns 429 once
// the burst is exhausted.
func TestHandler_RateLimitExceeded(t *testing.T) {
	t.Parallel()

	fb := &fakeFeedback{}
	s := newRoutedServer(t, &fakeAssistant{}, &Config{
		Feedback:  fb,
		RateLimit: 0.01,
		RateBurst: 2,
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/feedback",
			strings.NewReader(fmt.Sprintf(`{"session_id":"sess-%d","rating":"thumbs_up"}`, i)))
		last = httptest.NewRecorder()
		s.Handler().ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst exhausted, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}
