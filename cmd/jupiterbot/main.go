// Command jupiterbot is the entry point for the JupiterBot website support
// assistant. It provides a CLI interface (via Cobra) for asking questions,
// inspecting retrieval results, ingesting website content, and running the
// HTTP server that powers the chat widget.
package main

import (
	"fmt"
	"os"

	"github.com/jcb03/JupiterBot-RAG-LLM/cmd/jupiterbot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
