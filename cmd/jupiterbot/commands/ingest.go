package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/embedder"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/ingestion"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
)

// NewIngestCmd constructs the `jupiterbot ingest` command, which fetches
// website pages, chunks them, and indexes them into the Qdrant vector store
// and the local chunk docstore.
func NewIngestCmd() *cobra.Command {
	var category string
	var title string
	var urls []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest website pages into the vector store",
		Long: `Fetch and index website pages so the assistant can cite them.

Each page is cleaned of markup, split into overlapping chunks, embedded, and
stored in Qdrant (for similarity search) and a local SQLite docstore (for
citation text). Re-ingesting a URL overwrites its previous chunks.

Required environment variables:
  QDRANT_HOST             Qdrant server hostname (default: localhost)
  QDRANT_PORT             Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION       Collection name (default: jupiterbot-site)
  QDRANT_API_KEY          Optional API key for authenticated clusters
  MODEL_PROVIDER          Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*             Provider-specific overrides (see README)
  JUPITERBOT_DOCSTORE_DB  Chunk store path (default: ~/.jupiterbot/docstore.db)

The page category (pricing, faq, legal, ...) is inferred from the URL path.
Explicit --category and --title flags override inference and apply to every
URL in the invocation.

Examples:
  jupiterbot ingest --url https://example.com/pricing
  jupiterbot ingest --url https://example.com/legal/terms --url https://example.com/legal/privacy
  jupiterbot ingest --category faq --url https://example.com/help/getting-started`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --url is required")
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))))

			index, err := openQdrantIndex(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer index.Close()

			docs, err := openDocstore()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer docs.Close()

			pipeline, err := ingestion.NewPipeline(emb, index, docs, &ingestion.Config{
				ChunkSize:     getEnvInt("INGEST_CHUNK_SIZE", 0),
				ChunkOverlap:  getEnvInt("INGEST_CHUNK_OVERLAP", 0),
				MinChunkChars: getEnvInt("INGEST_MIN_CHUNK_CHARS", 0),
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			sources := make([]ingestion.Source, 0, len(urls))
			for _, u := range urls {
				src := ingestion.Source{URL: u, Title: title, Category: category}
				if src.Category == "" {
					src.Category = ingestion.InferCategory(u)
				}
				log.Info("source metadata",
					slog.String("url", u),
					slog.String("category", src.Category),
				)
				sources = append(sources, src)
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)))

			if err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Page category label (pricing, faq, legal, product, about, security)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Page title override (applies to all URLs)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Website URL to ingest (repeatable)")

	return cmd
}
