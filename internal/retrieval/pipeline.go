package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
)

// Pipeline runs the full retrieval flow for one utterance: normalize the
// query against conversation history, over-fetch candidates from the vector
// index, then rank and deduplicate them into the final citation list.
//
// Backend outages degrade rather than fail: when the candidate stage
// exhausts its retries the pipeline returns an empty, Degraded result so the
// caller can still answer from the model alone. Invalid input and caller
// cancellation remain hard errors.
type Pipeline struct {
	normalizer *Normalizer
	retriever  *CandidateRetriever
	cfg        Config
}

// New assembles a Pipeline from its collaborators. The reformulator may be
// nil, in which case normalization passes the trimmed raw utterance through.
func New(reformulator Reformulator, embedder rag.Embedder, index rag.VectorIndex, docs rag.DocumentStore, cfg Config) (*Pipeline, error) {
	cfg = cfg.withDefaults()

	retriever, err := NewCandidateRetriever(embedder, index, docs, cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		normalizer: NewNormalizer(reformulator, cfg.HistoryWindow),
		retriever:  retriever,
		cfg:        cfg,
	}, nil
}

// Retrieve returns the ranked citations for the utterance. The same
// utterance, history, and corpus always produce the same Result.
func (p *Pipeline) Retrieve(ctx context.Context, utterance string, history []Turn) (Result, error) {
	query, err := p.normalizer.Normalize(ctx, utterance, history)
	if err != nil {
		return Result{}, err
	}

	fetchK := p.cfg.K * p.cfg.OverfetchMultiplier
	candidates, err := p.retriever.Retrieve(ctx, query, fetchK)
	if err != nil {
		if errors.Is(err, ErrRetrievalUnavailable) && ctx.Err() == nil {
			logging.FromContext(ctx).Warn("retrieval degraded, answering without citations",
				slog.String("query", query),
				slog.String("error", err.Error()),
			)
			return Result{NormalizedQuery: query, Degraded: true}, nil
		}
		return Result{}, err
	}

	citations, err := Rank(candidates, p.cfg.K)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: rank candidates: %w", err)
	}

	return Result{
		Citations:       citations,
		NormalizedQuery: query,
	}, nil
}
