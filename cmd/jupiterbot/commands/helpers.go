package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/docstore"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/embedder"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/rag"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/retrieval"
)

// getEnvOrDefault returns the env var value or fallback when unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env var parsed as float64, or fallback when unset
// or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// retrievalConfigFromEnv builds the retrieval pipeline configuration from
// RETRIEVAL_* environment variables. Unset knobs are left zero so the
// pipeline applies its own defaults.
func retrievalConfigFromEnv() retrieval.Config {
	cfg := retrieval.Config{
		K:                   getEnvInt("RETRIEVAL_TOP_K", 0),
		OverfetchMultiplier: getEnvInt("RETRIEVAL_OVERFETCH_MULTIPLIER", 0),
		HistoryWindow:       getEnvInt("RETRIEVAL_HISTORY_WINDOW", 0),
		SimilarityFloor:     getEnvFloat("RETRIEVAL_SIMILARITY_FLOOR", 0),
		Timeout:             time.Duration(getEnvInt("RETRIEVAL_TIMEOUT_MS", 0)) * time.Millisecond,
		BackoffBase:         time.Duration(getEnvInt("RETRIEVAL_BACKOFF_MS", 0)) * time.Millisecond,
	}
	// RETRIEVAL_RETRY_COUNT=0 disables retries; unset keeps the pipeline
	// default. The config marks "disabled" with a negative value.
	switch n := getEnvInt("RETRIEVAL_RETRY_COUNT", -1); {
	case n == 0:
		cfg.MaxRetries = -1
	case n > 0:
		cfg.MaxRetries = n
	}
	return cfg
}

// openQdrantIndex connects to Qdrant using QDRANT_* environment variables
// and ensures the collection exists with the embedder's vector size.
func openQdrantIndex(ctx context.Context) (*rag.QdrantIndex, error) {
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	index, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "jupiterbot-site"),
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return index, nil
}

// defaultDocstorePath resolves the default chunk store location,
// ~/.jupiterbot/docstore.db, creating the directory if needed.
func defaultDocstorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".jupiterbot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, "docstore.db"), nil
}

// openDocstore opens the SQLite chunk store. JUPITERBOT_DOCSTORE_DB overrides
// the default path.
func openDocstore() (*docstore.SQLiteStore, error) {
	path := os.Getenv("JUPITERBOT_DOCSTORE_DB")
	if path == "" {
		var err error
		path, err = defaultDocstorePath()
		if err != nil {
			return nil, err
		}
	}
	docs, err := docstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docstore at %s: %w", path, err)
	}
	return docs, nil
}

// buildRetrievalPipeline assembles the full retrieval stack: embedder,
// Qdrant index, chunk docstore, and the model-backed query reformulator.
// The returned cleanup function closes the index and docstore.
func buildRetrievalPipeline(ctx context.Context, chatModel model.BaseChatModel, log *slog.Logger) (*retrieval.Pipeline, *rag.QdrantIndex, func(), error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	index, err := openQdrantIndex(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	docs, err := openDocstore()
	if err != nil {
		_ = index.Close()
		return nil, nil, nil, err
	}

	reformulator, err := retrieval.NewModelReformulator(chatModel)
	if err != nil {
		_ = index.Close()
		_ = docs.Close()
		return nil, nil, nil, fmt.Errorf("failed to create reformulator: %w", err)
	}

	pipeline, err := retrieval.New(reformulator, emb, index, docs, retrievalConfigFromEnv())
	if err != nil {
		_ = index.Close()
		_ = docs.Close()
		return nil, nil, nil, fmt.Errorf("failed to create retrieval pipeline: %w", err)
	}

	cleanup := func() {
		_ = docs.Close()
		_ = index.Close()
	}
	return pipeline, index, cleanup, nil
}
