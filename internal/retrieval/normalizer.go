package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/logging"
)

// Utterance bounds. Questions shorter than the minimum carry no searchable
// intent; the maximum guards the embedder against pathological input.
const (
	minUtteranceRunes = 3
	maxUtteranceRunes = 500
)

// Reformulator rewrites a follow-up utterance into a single self-contained
// search query using the conversation history ("what about checking
// accounts?" → "what is the minimum balance for a checking account?").
// Implementations typically delegate to the chat model.
type Reformulator interface {
	// Reformulate returns the rewritten query. An error or an empty result
	// makes the normalizer fall back to the raw utterance — reformulation
	// failure never aborts the pipeline.
	Reformulate(ctx context.Context, utterance string, history []Turn) (string, error)
}

// Normalizer turns a raw utterance plus recent conversation turns into a
// self-contained search query. It is a pure transformation apart from the
// optional reformulator call, whose failure degrades to the raw utterance.
type Normalizer struct {
	// reformulator resolves pronouns and ellipsis against the history.
	// May be nil, in which case the trimmed utterance is used as-is.
	reformulator Reformulator

	// window is the number of most recent history turns passed to the
	// reformulator.
	window int
}

// NewNormalizer constructs a Normalizer. reformulator may be nil.
func NewNormalizer(reformulator Reformulator, window int) *Normalizer {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &Normalizer{reformulator: reformulator, window: window}
}

// Normalize validates the utterance and returns the search query to embed.
// The result is never empty: when reformulation is unavailable, fails, or
// cannot improve on the input, the trimmed raw utterance is returned.
func (n *Normalizer) Normalize(ctx context.Context, utterance string, history []Turn) (string, error) {
	if err := validateUtterance(utterance); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(utterance)

	if n.reformulator == nil || len(history) == 0 {
		return trimmed, nil
	}

	windowed := history
	if len(windowed) > n.window {
		windowed = windowed[len(windowed)-n.window:]
	}

	rewritten, err := n.reformulator.Reformulate(ctx, trimmed, windowed)
	if err != nil {
		logging.FromContext(ctx).Warn("normalizer: reformulation failed, using raw utterance",
			slog.Any("error", err),
		)
		return trimmed, nil
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" || utf8.RuneCountInString(rewritten) > maxUtteranceRunes {
		return trimmed, nil
	}
	return rewritten, nil
}

// validateUtterance enforces the input contract: non-empty after trimming,
// within the rune bounds, and not composed solely of symbols.
func validateUtterance(utterance string) error {
	if utf8.RuneCountInString(utterance) > maxUtteranceRunes {
		return fmt.Errorf("%w: utterance exceeds %d characters", ErrInvalidInput, maxUtteranceRunes)
	}
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return fmt.Errorf("%w: utterance is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) < minUtteranceRunes {
		return fmt.Errorf("%w: utterance shorter than %d characters", ErrInvalidInput, minUtteranceRunes)
	}
	if !hasLetterOrDigit(trimmed) {
		return fmt.Errorf("%w: utterance contains no letters or digits", ErrInvalidInput)
	}
	return nil
}

// hasLetterOrDigit reports whether s contains at least one letter or digit.
func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
