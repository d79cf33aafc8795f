// Package server implements the HTTP server that exposes the support
// assistant via a REST/SSE API: streaming chat, citation-only retrieval,
// visitor feedback, health/readiness probes, and Prometheus metrics.
// The server is started by the `jupiterbot serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/retrieval"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/store"
)

// New constructs a Server from the provided assistant and config.
func New(assistant Assistant, cfg *Config) (*Server, error) {
	if assistant == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("auth: no API key configured, /api endpoints are unauthenticated")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		assistant: assistant,
		retriever: cfg.Retriever,
		feedback:  cfg.Feedback,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(registry),
		registry:  registry,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	protected := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", protected("chat", s.handleChat))
	mux.Handle("POST /api/retrieve", protected("retrieve", s.handleRetrieve))
	mux.Handle("POST /api/feedback", protected("feedback", s.handleFeedback))
	mux.Handle("GET /api/feedback/summary", protected("feedback_summary", s.handleFeedbackSummary))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the server's root http.Handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// handleChat handles POST /api/chat requests. It streams the assistant's
// answer using Server-Sent Events (SSE) so the UI can render tokens as they
// arrive, then emits a final "citations" event carrying the source metadata.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sw := &sseWriter{w: w, flusher: flusher}

	start := time.Now()
	s.metrics.chatActiveStreams.Inc()
	turn, err := s.assistant.Chat(r.Context(), req.SessionID, req.Message, sw)
	s.metrics.chatActiveStreams.Dec()

	if err != nil {
		outcome := "error"
		status := http.StatusInternalServerError
		msg := "internal error"
		if errors.Is(err, retrieval.ErrInvalidInput) {
			outcome = "invalid"
			status = http.StatusBadRequest
			msg = err.Error()
		}
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		logging.FromContext(r.Context()).Error("chat turn failed", slog.Any("error", err))

		if sw.wrote {
			// The stream is already open, signal failure in-band.
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", msg)
			flusher.Flush()
			return
		}
		http.Error(w, msg, status)
		return
	}

	s.metrics.chatRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	meta := chatMeta{
		Citations:       turn.Citations,
		NormalizedQuery: turn.NormalizedQuery,
		Degraded:        turn.Degraded,
	}
	if meta.Citations == nil {
		meta.Citations = []retrieval.Citation{}
	}
	payload, err := json.Marshal(meta)
	if err == nil {
		fmt.Fprintf(w, "event: citations\ndata: %s\n\n", payload)
	}
	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// handleRetrieve handles POST /api/retrieve. It runs the retrieval pipeline
// for the given query and returns the ranked citations as JSON, without
// invoking the chat model.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.retriever == nil {
		http.Error(w, "retrieval not configured", http.StatusServiceUnavailable)
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	history := make([]retrieval.Turn, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, retrieval.Turn{Role: retrieval.Role(t.Role), Text: t.Text})
	}

	result, err := s.retriever.Retrieve(r.Context(), req.Query, history)
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logging.FromContext(r.Context()).Error("retrieve failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.metrics.retrieveRequestsTotal.WithLabelValues(retrieveOutcome(result)).Inc()

	if result.Citations == nil {
		result.Citations = []retrieval.Citation{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logging.FromContext(r.Context()).Error("retrieve encode error", slog.Any("error", err))
	}
}

// retrieveOutcome maps a retrieval result to its metrics label.
func retrieveOutcome(result retrieval.Result) string {
	switch {
	case result.Degraded:
		return "degraded"
	case len(result.Citations) == 0:
		return "empty"
	default:
		return "ok"
	}
}

// handleFeedback handles POST /api/feedback. It records one thumbs_up or
// thumbs_down rating for a session.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		http.Error(w, "feedback not configured", http.StatusServiceUnavailable)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	rating := store.Rating(req.Rating)
	if rating != store.RatingUp && rating != store.RatingDown {
		http.Error(w, "rating must be thumbs_up or thumbs_down", http.StatusBadRequest)
		return
	}

	if err := s.feedback.RecordFeedback(r.Context(), req.SessionID, rating, req.Comment); err != nil {
		logging.FromContext(r.Context()).Error("feedback record failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.metrics.feedbackTotal.WithLabelValues(req.Rating).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
}

// handleFeedbackSummary handles GET /api/feedback/summary with aggregate
// rating totals.
func (s *Server) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		http.Error(w, "feedback not configured", http.StatusServiceUnavailable)
		return
	}

	counts, err := s.feedback.FeedbackCounts(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("feedback summary failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feedbackSummaryResponse{Up: counts.Up, Down: counts.Down})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher

	// wrote records whether any data frame reached the client, which decides
	// between an HTTP error status and an in-band SSE error event.
	wrote bool
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.wrote = true
	s.flusher.Flush()
	return len(p), nil
}
