// Package retrieval implements the core retrieval pipeline: it turns a user
// question plus a session's recent conversation turns into a ranked,
// deduplicated, citation-annotated set of website passages for the chat
// assistant to ground its answer on.
//
// The pipeline runs three stages strictly in order — query normalization,
// candidate retrieval, ranking & deduplication — and treats the embedder,
// vector index, and document store as external collaborators behind the
// interfaces in the rag package.
package retrieval

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the human.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Turn is a single prior exchange in the conversation, oldest-first when
// passed as history.
type Turn struct {
	// Role is the author of the turn.
	Role Role
	// Text is the turn's content.
	Text string
}

// Citation is one ranked, labelled passage in the pipeline's output.
type Citation struct {
	// Rank is the citation's 1-based position in the final ordering.
	Rank int `json:"rank"`

	// Label is the human-readable citation label ("Source 1: Pricing").
	Label string `json:"label"`

	// ChunkID identifies the underlying chunk in the document store.
	ChunkID string `json:"chunk_id"`

	// Text is the passage text.
	Text string `json:"text"`

	// SourceURL is the page the passage came from.
	SourceURL string `json:"source_url"`

	// Title is the source page title.
	Title string `json:"title"`

	// Position is the chunk's ordinal within its source document.
	Position int `json:"position"`

	// Score is the normalized relevance score in [0, 1], descending across
	// the citation set.
	Score float64 `json:"relevance_score"`
}

// Result is the pipeline's output for a single query.
type Result struct {
	// Citations is the ranked, deduplicated citation set. Empty is a valid
	// result; when Degraded is false it means the index had no matches.
	Citations []Citation `json:"citations"`

	// NormalizedQuery is the self-contained query actually used for search,
	// exposed for logging and debugging.
	NormalizedQuery string `json:"normalized_query"`

	// Degraded is true when upstream retrieval was unavailable after
	// retries. A degraded result carries no citations and must be messaged
	// differently to the user than a genuinely empty match set.
	Degraded bool `json:"degraded"`
}

// Config holds the pipeline's tuning knobs. The zero value is usable;
// unset fields fall back to the defaults below.
type Config struct {
	// K is the final citation count (default 5).
	K int

	// OverfetchMultiplier over-fetches K*M candidates from the index to
	// compensate for deduplication losses (default 3).
	OverfetchMultiplier int

	// HistoryWindow is the number of most recent conversation turns the
	// normalizer may look at (default 6).
	HistoryWindow int

	// SimilarityFloor drops raw index hits below this similarity before
	// ranking (default 0.3). Set negative to disable the floor.
	SimilarityFloor float64

	// Timeout bounds each individual embedder / vector index call
	// (default 5s).
	Timeout time.Duration

	// MaxRetries is the number of retries after the first failed attempt of
	// an upstream call (default 2). Set negative to disable retries.
	MaxRetries int

	// BackoffBase is the initial delay of the exponential retry backoff
	// (default 100ms). Tests shrink it to keep retries instant.
	BackoffBase time.Duration
}

// Pipeline defaults, applied by withDefaults.
const (
	defaultK                   = 5
	defaultOverfetchMultiplier = 3
	defaultHistoryWindow       = 6
	defaultSimilarityFloor     = 0.3
	defaultTimeout             = 5 * time.Second
	defaultMaxRetries          = 2
	defaultBackoffBase         = 100 * time.Millisecond
)

// withDefaults returns a copy of cfg with unset fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.K <= 0 {
		c.K = defaultK
	}
	if c.OverfetchMultiplier < 1 {
		c.OverfetchMultiplier = defaultOverfetchMultiplier
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.SimilarityFloor == 0 {
		c.SimilarityFloor = defaultSimilarityFloor
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	// Negative MaxRetries means retries explicitly disabled; it is kept
	// as-is so repeated normalization cannot turn it back into the default.
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return c
}
