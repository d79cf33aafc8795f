// Package rag defines the collaborator contracts the retrieval pipeline
// depends on: text embedding, nearest-neighbour search over a vector index,
// and chunk record lookup in the document store. Concrete implementations
// (Qdrant, SQLite, HTTP embedders) satisfy these interfaces so the pipeline
// never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

// Chunk is the immutable unit of indexed website text. Chunks are created
// once at ingest time and never mutated afterwards; the retrieval pipeline
// only reads them by ID.
type Chunk struct {
	// ID is the stable identifier for this chunk, derived from its source
	// URL and position at ingest time.
	ID string

	// Text is the chunk's raw text content.
	Text string

	// SourceURL is the page the chunk was extracted from.
	SourceURL string

	// Title is the page title of the source document.
	Title string

	// Position is the chunk's ordinal within its source document. Adjacent
	// positions share overlapping text spans (chunking overlap).
	Position int

	// Category is the content category inferred at ingest time
	// (faq, legal, product, about, pricing, security, general).
	Category string

	// Embedding is the chunk's vector representation, computed once at
	// ingest. Empty when the chunk was loaded for citation only.
	Embedding []float32
}

// Hit is a single nearest-neighbour match returned by a VectorIndex search.
type Hit struct {
	// ChunkID identifies the matched chunk in the document store.
	ChunkID string

	// Similarity is the cosine similarity reported by the index, in [-1, 1].
	Similarity float32
}

// Sentinel errors returned by collaborator implementations. The retrieval
// pipeline branches on these with errors.Is.
var (
	// ErrEmbedding indicates the embedder rejected the input or its backend
	// was unreachable.
	ErrEmbedding = errors.New("rag: embedding failed")

	// ErrIndexUnavailable indicates the vector index was unreachable.
	ErrIndexUnavailable = errors.New("rag: vector index unavailable")

	// ErrNotFound indicates a chunk ID has no record in the document store.
	ErrNotFound = errors.New("rag: chunk not found")
)

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the nearest-neighbour search service over chunk embeddings.
// The pipeline treats it as a black box; scoring semantics beyond "higher
// similarity is more relevant" are implementation-defined.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	// Upsert stores or updates a batch of chunks. Every chunk must carry a
	// pre-computed Embedding.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns the top-k most similar chunks for the query embedding,
	// ordered by descending similarity. Fewer than k hits is a valid result.
	// Unreachable backends are reported as errors wrapping ErrIndexUnavailable.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Hit, error)

	// Delete removes chunks by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the index client.
	Close() error
}

// DocumentStore persists full chunk records keyed by chunk ID.
// Implementations must be safe to call from multiple goroutines.
type DocumentStore interface {
	// Put stores or replaces a batch of chunk records.
	Put(ctx context.Context, chunks []Chunk) error

	// Get returns the chunk record for the given ID, or an error wrapping
	// ErrNotFound when no such chunk exists.
	Get(ctx context.Context, id string) (Chunk, error)

	// Close releases any resources held by the store.
	Close() error
}
