package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
)

// testConfig keeps retries instant and disables the similarity floor so
// tests control filtering explicitly.
func testConfig() Config {
	return Config{
		K:                   5,
		OverfetchMultiplier: 3,
		Timeout:             500 * time.Millisecond,
		MaxRetries:          2,
		BackoffBase:         time.Millisecond,
		SimilarityFloor:     -1,
	}
}

type fakeEmbedder struct {
	vec      []float32
	err      error
	failures int // fail this many initial calls, then succeed; 0 with err set means always fail
	calls    int
	lastText string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if len(texts) > 0 {
		f.lastText = texts[0]
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	vec := f.vec
	if vec == nil {
		vec = []float32{0.1, 0.2, 0.3}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = vec
	}
	return out, nil
}

type fakeIndex struct {
	hits     []rag.Hit
	err      error
	failures int
	calls    int
	lastTopK int
}

func (f *fakeIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]rag.Hit, error) {
	f.calls++
	f.lastTopK = topK
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []rag.Chunk) error { return nil }
func (f *fakeIndex) Delete(ctx context.Context, ids []string) error      { return nil }
func (f *fakeIndex) Close() error                                        { return nil }

type fakeDocs struct {
	chunks map[string]rag.Chunk
	err    error
}

func (f *fakeDocs) Get(ctx context.Context, id string) (rag.Chunk, error) {
	if f.err != nil {
		return rag.Chunk{}, f.err
	}
	c, ok := f.chunks[id]
	if !ok {
		return rag.Chunk{}, fmt.Errorf("chunk %s: %w", id, rag.ErrNotFound)
	}
	return c, nil
}

func (f *fakeDocs) Put(ctx context.Context, chunks []rag.Chunk) error { return nil }
func (f *fakeDocs) Close() error                                      { return nil }

type fakeReformulator struct {
	out          string
	err          error
	calls        int
	gotUtterance string
	gotHistory   []Turn
}

func (f *fakeReformulator) Reformulate(ctx context.Context, utterance string, history []Turn) (string, error) {
	f.calls++
	f.gotUtterance = utterance
	f.gotHistory = history
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

// corpusChunk builds a chunk with the fields the ranker requires.
func corpusChunk(id, text, url, title string, position int) rag.Chunk {
	return rag.Chunk{
		ID:        id,
		Text:      text,
		SourceURL: url,
		Title:     title,
		Position:  position,
		Category:  "general",
	}
}
