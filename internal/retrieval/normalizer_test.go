package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func Test_Normalizer_ValidUtterancePassesThrough(t *testing.T) {
	t.Parallel()
	n := NewNormalizer(nil, 6)
	got, err := n.Normalize(context.Background(), "  what are your business hours?  ", nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got != "what are your business hours?" {
		t.Errorf("got %q, want trimmed utterance", got)
	}
}

func Test_Normalizer_InputBounds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		utterance string
		wantErr   bool
	}{
		{"empty", "", true},
		{"whitespace only", "   \t\n ", true},
		{"below minimum", "hi", true},
		{"at minimum", "hi?", false},
		{"symbols only", "???!!!", true},
		{"at maximum", strings.Repeat("a", 500), false},
		{"over maximum", strings.Repeat("a", 501), true},
		{"multibyte at maximum", strings.Repeat("ü", 500), false},
		{"multibyte over maximum", strings.Repeat("ü", 501), true},
	}
	n := NewNormalizer(nil, 6)
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := n.Normalize(context.Background(), tc.utterance, nil)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("want ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func Test_Normalizer_ReformulatesWithHistory(t *testing.T) {
	t.Parallel()
	ref := &fakeReformulator{out: "what is the minimum balance for a savings account?"}
	n := NewNormalizer(ref, 6)
	history := []Turn{
		{Role: RoleUser, Text: "tell me about savings accounts"},
		{Role: RoleAssistant, Text: "We offer savings accounts with no monthly fee."},
	}

	got, err := n.Normalize(context.Background(), "what about the minimum balance?", history)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got != ref.out {
		t.Errorf("got %q, want reformulated query %q", got, ref.out)
	}
	if ref.calls != 1 {
		t.Errorf("reformulator called %d times, want 1", ref.calls)
	}
}

func Test_Normalizer_ReformulationFailureFallsBackToRaw(t *testing.T) {
	t.Parallel()
	history := []Turn{{Role: RoleUser, Text: "earlier question"}}
	cases := []struct {
		name string
		ref  *fakeReformulator
	}{
		{"model error", &fakeReformulator{err: errors.New("model unreachable")}},
		{"empty rewrite", &fakeReformulator{out: "   "}},
		{"oversized rewrite", &fakeReformulator{out: strings.Repeat("x", 600)}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := NewNormalizer(tc.ref, 6)
			got, err := n.Normalize(context.Background(), "what about fees?", history)
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if got != "what about fees?" {
				t.Errorf("got %q, want raw utterance fallback", got)
			}
		})
	}
}

func Test_Normalizer_SkipsReformulatorWithoutHistory(t *testing.T) {
	t.Parallel()
	ref := &fakeReformulator{out: "should not be used"}
	n := NewNormalizer(ref, 6)

	got, err := n.Normalize(context.Background(), "do you offer refunds?", nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got != "do you offer refunds?" {
		t.Errorf("got %q, want raw utterance", got)
	}
	if ref.calls != 0 {
		t.Errorf("reformulator called %d times, want 0", ref.calls)
	}
}

func Test_Normalizer_WindowsHistory(t *testing.T) {
	t.Parallel()
	ref := &fakeReformulator{out: "rewritten"}
	n := NewNormalizer(ref, 2)
	history := []Turn{
		{Role: RoleUser, Text: "turn one"},
		{Role: RoleAssistant, Text: "turn two"},
		{Role: RoleUser, Text: "turn three"},
		{Role: RoleAssistant, Text: "turn four"},
	}

	if _, err := n.Normalize(context.Background(), "and pricing?", history); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(ref.gotHistory) != 2 {
		t.Fatalf("reformulator saw %d turns, want 2", len(ref.gotHistory))
	}
	if ref.gotHistory[0].Text != "turn three" || ref.gotHistory[1].Text != "turn four" {
		t.Errorf("reformulator saw %+v, want the two most recent turns", ref.gotHistory)
	}
}
