package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
)

// Candidate is an over-fetched chunk with its raw index similarity, before
// ranking and deduplication.
type Candidate struct {
	// Chunk is the full record fetched from the document store.
	Chunk rag.Chunk

	// Similarity is the raw similarity reported by the vector index.
	Similarity float64
}

// CandidateRetriever obtains an over-fetched, unranked candidate set for a
// normalized query: embed the query, search the vector index, then fetch
// each hit's full record from the document store.
//
// Embedder and index calls are bounded by the configured per-call timeout
// and retried with exponential backoff; exhausted retries surface as an
// error wrapping ErrRetrievalUnavailable. Caller cancellation aborts
// in-flight calls immediately and is never retried.
type CandidateRetriever struct {
	// embedder converts the query text to a dense vector.
	embedder rag.Embedder

	// index performs the nearest-neighbour search.
	index rag.VectorIndex

	// docs resolves hit IDs to full chunk records.
	docs rag.DocumentStore

	// cfg holds the resolved retry/timeout/floor settings.
	cfg Config
}

// NewCandidateRetriever constructs a CandidateRetriever from the given
// collaborators. Unset cfg fields fall back to package defaults.
func NewCandidateRetriever(embedder rag.Embedder, index rag.VectorIndex, docs rag.DocumentStore, cfg Config) (*CandidateRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("retrieval: vector index must not be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("retrieval: document store must not be nil")
	}
	return &CandidateRetriever{
		embedder: embedder,
		index:    index,
		docs:     docs,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Retrieve returns up to fetchK candidates for the query. Zero candidates is
// a valid, non-error result. If fetchK is not positive it defaults to
// K * OverfetchMultiplier from the config.
func (r *CandidateRetriever) Retrieve(ctx context.Context, query string, fetchK int) ([]Candidate, error) {
	if fetchK <= 0 {
		fetchK = r.cfg.K * r.cfg.OverfetchMultiplier
	}

	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.search(ctx, embedding, fetchK)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		if float64(hit.Similarity) < r.cfg.SimilarityFloor {
			continue
		}
		chunk, err := r.docs.Get(ctx, hit.ChunkID)
		if err != nil {
			// Index/store drift: the index returned an ID the store no
			// longer has. Skip the hit, keep the rest of the candidate set.
			if errors.Is(err, rag.ErrNotFound) {
				log.Warn("retriever: hit has no document record, skipping",
					slog.String("chunk_id", hit.ChunkID),
				)
				continue
			}
			return nil, fmt.Errorf("retrieval: fetch chunk %s: %w: %w", hit.ChunkID, ErrRetrievalUnavailable, err)
		}
		candidates = append(candidates, Candidate{
			Chunk:      chunk,
			Similarity: float64(hit.Similarity),
		})
	}

	return candidates, nil
}

// embedQuery embeds the query text with retry, timeout, and error wrapping.
func (r *CandidateRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var embedding []float32
	err := r.withRetry(ctx, func(callCtx context.Context) error {
		vecs, err := r.embedder.Embed(callCtx, []string{query})
		if err != nil {
			return fmt.Errorf("%w: %w", rag.ErrEmbedding, err)
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return fmt.Errorf("%w: embedder returned empty vector", rag.ErrEmbedding)
		}
		embedding = vecs[0]
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("retrieval: embed query: %w", err)
		}
		return nil, fmt.Errorf("retrieval: embed query: %w: %w", ErrRetrievalUnavailable, err)
	}
	return embedding, nil
}

// search queries the vector index with retry, timeout, and error wrapping.
func (r *CandidateRetriever) search(ctx context.Context, embedding []float32, fetchK int) ([]rag.Hit, error) {
	var hits []rag.Hit
	err := r.withRetry(ctx, func(callCtx context.Context) error {
		var err error
		hits, err = r.index.Search(callCtx, embedding, fetchK)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("retrieval: index search: %w", err)
		}
		return nil, fmt.Errorf("retrieval: index search: %w: %w", ErrRetrievalUnavailable, err)
	}
	return hits, nil
}

// withRetry runs op with a per-attempt timeout under the configured
// exponential backoff. Caller cancellation marks the failure permanent so
// the backoff loop exits immediately instead of sleeping through retries.
func (r *CandidateRetriever) withRetry(ctx context.Context, op func(context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.BackoffBase

	retries := r.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx))
}
