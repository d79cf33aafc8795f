package retrieval

import "errors"

// Error taxonomy for the pipeline. Callers branch with errors.Is.
var (
	// ErrInvalidInput reports malformed caller input: an empty or oversized
	// utterance, or a candidate chunk missing required fields. Never retried.
	ErrInvalidInput = errors.New("retrieval: invalid input")

	// ErrRetrievalUnavailable reports that the embedder or vector index
	// stayed unreachable after the configured retries. The orchestrator
	// converts it into a degraded result rather than failing the chat turn.
	ErrRetrievalUnavailable = errors.New("retrieval: upstream unavailable")
)
