package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// reformulateSystemPrompt instructs the model to act as a query rewriter.
// The output contract is a single line so the result can be embedded directly.
const reformulateSystemPrompt = `You rewrite follow-up questions into standalone search queries.

Given a conversation and the user's latest message, rewrite that message as a
single self-contained question that can be understood without the conversation.
Resolve pronouns and elliptical references ("what about X?", "and for Y?")
using the conversation. Preserve the user's intent exactly — never answer the
question, never add new topics.

Respond with ONLY the rewritten question on one line, no quotes, no preamble.
If the message is already self-contained, respond with it unchanged.`

// ModelReformulator implements Reformulator by delegating to a chat model.
type ModelReformulator struct {
	// model is the chat backend constructed by the provider factory.
	model model.BaseChatModel
}

// NewModelReformulator constructs a ModelReformulator around the given model.
func NewModelReformulator(m model.BaseChatModel) (*ModelReformulator, error) {
	if m == nil {
		return nil, fmt.Errorf("retrieval: reformulator model must not be nil")
	}
	return &ModelReformulator{model: m}, nil
}

// Reformulate asks the model to rewrite utterance into a self-contained
// query. The caller treats any error as "use the raw utterance".
func (r *ModelReformulator) Reformulate(ctx context.Context, utterance string, history []Turn) (string, error) {
	var sb strings.Builder
	sb.WriteString("Conversation:\n")
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
	}
	fmt.Fprintf(&sb, "\nLatest message: %s", utterance)

	messages := []*schema.Message{
		schema.SystemMessage(reformulateSystemPrompt),
		schema.UserMessage(sb.String()),
	}

	resp, err := r.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("retrieval: reformulate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("retrieval: reformulate: model returned nil message")
	}

	// Models occasionally wrap the single-line answer in quotes or pad it
	// with blank lines; keep only the first non-empty line.
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"`)
		if line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("retrieval: reformulate: model returned empty content")
}
