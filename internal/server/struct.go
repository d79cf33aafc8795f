package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/chat"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/retrieval"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// Retriever serves POST /api/retrieve. If nil the endpoint returns 503.
	Retriever Retriever
	// Feedback serves POST /api/feedback and GET /api/feedback/summary.
	// If nil both endpoints return 503.
	Feedback store.FeedbackStore
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a private registry is created.
	Registry *prometheus.Registry
}

// Assistant is the interface handleChat calls to stream an answer.
// *chat.Assistant satisfies it; tests inject a fake.
type Assistant interface {
	// Chat streams the assistant's answer for userMessage to w and returns
	// the turn's citation metadata.
	Chat(ctx context.Context, sessionID, userMessage string, w io.Writer) (chat.Turn, error)
}

// Retriever is the interface handleRetrieve calls to run the retrieval
// pipeline without involving the chat model.
type Retriever interface {
	Retrieve(ctx context.Context, utterance string, history []retrieval.Turn) (retrieval.Result, error)
}

// Server is the HTTP server that exposes the support assistant.
type Server struct {
	// assistant handles all chat turns.
	assistant Assistant
	// retriever serves the citation-only endpoint. May be nil.
	retriever Retriever
	// feedback persists visitor ratings. May be nil.
	feedback store.FeedbackStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// registry backs GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// SessionID groups turns into one conversation. Required.
	SessionID string `json:"session_id"`
	// Message is the visitor's question.
	Message string `json:"message"`
}

// chatMeta is the payload of the SSE "citations" event emitted after the
// answer stream completes.
type chatMeta struct {
	// Citations is the ranked source list backing the streamed answer.
	Citations []retrieval.Citation `json:"citations"`
	// NormalizedQuery is the query the retrieval stage actually searched.
	NormalizedQuery string `json:"normalized_query"`
	// Degraded is true when retrieval was unavailable for this turn.
	Degraded bool `json:"degraded"`
}

// retrieveRequest is the JSON body for POST /api/retrieve.
type retrieveRequest struct {
	// Query is the utterance to retrieve citations for.
	Query string `json:"query"`
	// History is the optional prior conversation, oldest-first.
	History []historyTurn `json:"history,omitempty"`
}

// historyTurn is one prior exchange in a retrieveRequest.
type historyTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Text is the turn's content.
	Text string `json:"text"`
}

// feedbackRequest is the JSON body for POST /api/feedback.
type feedbackRequest struct {
	// SessionID is the conversation the rating belongs to. Required.
	SessionID string `json:"session_id"`
	// Rating is "thumbs_up" or "thumbs_down".
	Rating string `json:"rating"`
	// Comment is an optional free-text note from the visitor.
	Comment string `json:"comment,omitempty"`
}

// feedbackSummaryResponse is the JSON body for GET /api/feedback/summary.
type feedbackSummaryResponse struct {
	// Up is the number of thumbs_up ratings recorded.
	Up int `json:"thumbs_up"`
	// Down is the number of thumbs_down ratings recorded.
	Down int `json:"thumbs_down"`
}
