// Package commands defines all Cobra CLI commands for the jupiterbot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/audit"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/config"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jupiterbot",
		Short: "JupiterBot — a citation-grounded support assistant for your website",
		Long: `JupiterBot is a retrieval-augmented support assistant for company websites.

It ingests website pages into a Qdrant vector store, retrieves the passages
relevant to each visitor question, and answers with inline source citations
so every claim can be traced back to a page.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.jupiterbot/config.yaml).
See 'jupiterbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.jupiterbot/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewRetrieveCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
