// Package ingestion implements the website ingestion pipeline.
// It fetches company website pages, strips markup, splits the text into
// overlapping chunks at sentence boundaries, embeds each chunk, and writes
// the results to the vector index and the chunk document store.
// This pipeline is invoked by the `jupiterbot ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
)

// Source describes one website page to be ingested.
type Source struct {
	// URL is the HTTP(S) URL of the page to fetch.
	URL string

	// Title overrides the page title. When empty, the <title> element of the
	// fetched page is used, falling back to the last URL path segment.
	Title string

	// Category overrides the inferred content category
	// (general, faq, legal, product, about, pricing, security).
	Category string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the target chunk length in characters.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of trailing characters repeated at the
	// start of the next chunk. Defaults to 200 if zero.
	ChunkOverlap int

	// MinChunkChars drops chunks shorter than this after splitting.
	// Defaults to 100 if zero.
	MinChunkChars int

	// HTTPTimeout is the timeout for each page fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the fetch → extract → chunk → embed → store flow
// for a set of website pages.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// index persists the embedded chunks for similarity search.
	index rag.VectorIndex

	// docs persists the full chunk records for hydration at query time.
	docs rag.DocumentStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching pages.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.VectorIndex, docs rag.DocumentStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: vector index must not be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("ingestion: document store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = 100
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "jupiterbot/1.0 (website content ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		docs:     docs,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest fetches, chunks, embeds, and stores all provided sources.
// It processes sources sequentially and returns the first error encountered.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, src := range sources {
		progress(fmt.Sprintf("fetching %s", src.URL))

		body, err := p.fetch(ctx, src.URL)
		if err != nil {
			return fmt.Errorf("ingestion: fetch failed for %s: %w", src.URL, err)
		}

		title := src.Title
		if title == "" {
			title = extractTitle(body)
		}
		if title == "" {
			title = titleFromURL(src.URL)
		}

		category := src.Category
		if category == "" {
			category = InferCategory(src.URL)
		}

		texts := Split(extractText(body), p.cfg.ChunkSize, p.cfg.ChunkOverlap, p.cfg.MinChunkChars)
		if len(texts) == 0 {
			progress(fmt.Sprintf("skipping %s: no usable text", src.URL))
			continue
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", src.URL, len(texts)))

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed for %s: %w", src.URL, err)
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks (%s)", len(embeddings), len(texts), src.URL)
		}

		chunks := make([]rag.Chunk, 0, len(texts))
		for i, text := range texts {
			chunks = append(chunks, rag.Chunk{
				ID:        ChunkID(src.URL, i),
				Text:      text,
				SourceURL: src.URL,
				Title:     title,
				Position:  i,
				Category:  category,
				Embedding: embeddings[i],
			})
		}

		if err := p.docs.Put(ctx, chunks); err != nil {
			return fmt.Errorf("ingestion: document store write failed for %s: %w", src.URL, err)
		}
		if err := p.index.Upsert(ctx, chunks); err != nil {
			return fmt.Errorf("ingestion: index upsert failed for %s: %w", src.URL, err)
		}

		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), src.URL))
	}

	return nil
}

// fetch retrieves the raw content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(body), nil
}

// ChunkID generates a deterministic UUID for a chunk from its source URL and
// position, so re-ingesting a page overwrites its previous chunks instead of
// duplicating them. Qdrant point IDs must be valid UUIDs, hence v5 over a
// plain hash string.
func ChunkID(sourceURL string, position int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", sourceURL, position))).String()
}
