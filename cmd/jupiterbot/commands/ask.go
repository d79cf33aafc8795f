package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/chat"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/provider"
)

// NewAskCmd constructs the `jupiterbot ask` command, which sends a single
// question to the assistant and streams the answer to stdout, followed by
// the source list the answer was grounded on.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the support assistant a question about the website",
		Long: `Ask JupiterBot a single question and stream the answer to stdout.

The answer is grounded in previously ingested website content and ends with
the list of sources it cited. Run 'jupiterbot ingest' first to populate the
vector store.

Examples:
  jupiterbot ask "how much does the starter plan cost?"
  jupiterbot ask "what is your refund policy?"
  MODEL_PROVIDER=openai jupiterbot ask "do you offer a free trial?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			pipeline, _, cleanup, err := buildRetrievalPipeline(ctx, chatModel, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			assistant, err := chat.New(&chat.Config{
				ChatModel: chatModel,
				Retriever: pipeline,
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise assistant: %w", err)
			}

			turn, err := assistant.Chat(ctx, "", args[0], os.Stdout)
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point — error goes directly to cobra
			}

			fmt.Println()
			if turn.Degraded {
				fmt.Println("\n(content lookup was unavailable — answer is uncited)")
				return nil
			}
			if len(turn.Citations) > 0 {
				fmt.Println("\nSources:")
				for _, c := range turn.Citations {
					fmt.Printf("  %s — %s\n", c.Label, c.SourceURL)
				}
			}
			return nil
		},
	}

	return cmd
}
