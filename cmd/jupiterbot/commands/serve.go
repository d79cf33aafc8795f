package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/chat"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/provider"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/server"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/store"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/tracing"
)

// NewServeCmd constructs the `jupiterbot serve` command, which starts the
// HTTP server that powers the website chat widget.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JupiterBot HTTP server",
		Long: `Start the JupiterBot HTTP server on localhost.

The server exposes a REST/SSE API for the website chat widget: streaming
chat with citations, a citation-only retrieve endpoint, visitor feedback,
health/readiness probes, and Prometheus metrics.

Examples:
  jupiterbot serve
  jupiterbot serve --port 9090
  MODEL_PROVIDER=azure jupiterbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			pipeline, index, cleanup, err := buildRetrievalPipeline(ctx, chatModel, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			// Open conversation history store. JUPITERBOT_HISTORY_DB overrides
			// the default path (~/.jupiterbot/history.db). Set to "disabled"
			// to disable persistence and feedback.
			var historyStore store.ConversationStore
			var feedbackStore store.FeedbackStore
			dbPath := os.Getenv("JUPITERBOT_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						feedbackStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via JUPITERBOT_HISTORY_DB=disabled")
			}

			assistant, err := chat.New(&chat.Config{
				ChatModel:        chatModel,
				Retriever:        pipeline,
				History:          historyStore,
				HistoryDepth:     getEnvInt("CHAT_HISTORY_DEPTH", 0),
				MaxContextTokens: getEnvInt("CHAT_MAX_CONTEXT_TOKENS", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise assistant: %w", err)
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(index.Client()),
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
			}

			srv, err := server.New(assistant, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				Retriever: pipeline,
				Feedback:  feedbackStore,
				APIKey:    os.Getenv("JUPITERBOT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
