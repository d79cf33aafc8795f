package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/provider"
)

// NewRetrieveCmd constructs the `jupiterbot retrieve` command, which runs the
// retrieval pipeline for a query and prints the ranked citations as JSON,
// without invoking the chat model for an answer. Useful for tuning the
// similarity floor and inspecting what the assistant would ground on.
func NewRetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Show the ranked citations the assistant would ground on",
		Long: `Run the retrieval pipeline for a query and print the result as JSON.

The output contains the normalized query, the ranked citations with their
relevance scores, and the degraded flag. The chat model is only used for
query reformulation, not for answering.

Examples:
  jupiterbot retrieve "refund policy"
  RETRIEVAL_TOP_K=10 jupiterbot retrieve "enterprise plan features"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("retrieve: failed to initialise model provider: %w", err)
			}

			pipeline, _, cleanup, err := buildRetrievalPipeline(ctx, chatModel, log)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			defer cleanup()

			result, err := pipeline.Retrieve(ctx, args[0], nil)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("retrieve: encode result: %w", err)
			}
			return nil
		},
	}

	return cmd
}
