package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/jcb03/JupiterBot-RAG-LLM/internal/retrieval"
	"github.com/jcb03/JupiterBot-RAG-LLM/internal/store"
)

// fakeChatModel streams canned parts and records the input messages.
type fakeChatModel struct {
	parts     []string
	streamErr error
	gotInput  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.gotInput = in
	return schema.AssistantMessage(strings.Join(f.parts, ""), nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.gotInput = in
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	msgs := make([]*schema.Message, 0, len(f.parts))
	for _, p := range f.parts {
		msgs = append(msgs, schema.AssistantMessage(p, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// fakeRetriever returns a canned result and records the utterance and history.
type fakeRetriever struct {
	result     retrieval.Result
	err        error
	gotQuery   string
	gotHistory []retrieval.Turn
}

func (f *fakeRetriever) Retrieve(_ context.Context, utterance string, history []retrieval.Turn) (retrieval.Result, error) {
	f.gotQuery = utterance
	f.gotHistory = history
	return f.result, f.err
}

// memoryHistory is an in-memory ConversationStore.
type memoryHistory struct {
	sessions  map[string][]store.Message
	recentErr error
	appendErr error
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{sessions: map[string][]store.Message{}}
}

func (m *memoryHistory) Append(_ context.Context, sessionID string, role store.Role, content string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.sessions[sessionID] = append(m.sessions[sessionID], store.Message{Role: role, Content: content})
	return nil
}

func (m *memoryHistory) Recent(_ context.Context, sessionID string, n int) ([]store.Message, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	msgs := m.sessions[sessionID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (m *memoryHistory) Close() error { return nil }

func testCitations() []retrieval.Citation {
	return []retrieval.Citation{
		{
			Rank:      1,
			Label:     "Source 1: Pricing",
			ChunkID:   "c1",
			Text:      "The starter plan costs $10 per month.",
			SourceURL: "https://example.com/pricing",
			Title:     "Pricing",
			Position:  0,
			Score:     1.0,
		},
		{
			Rank:      2,
			Label:     "Source 2: Refund Policy",
			ChunkID:   "c2",
			Text:      "Refunds are available within 30 days.",
			SourceURL: "https://example.com/legal/refunds",
			Title:     "Refund Policy",
			Position:  2,
			Score:     0.4,
		},
	}
}

func TestNew_RequiresChatModel(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error for nil ChatModel")
	}
}

func TestAssistant_Chat_StreamsGroundedAnswer(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"The starter plan is $10/month", " [Source 1]."}}
	rt := &fakeRetriever{result: retrieval.Result{
		Citations:       testCitations(),
		NormalizedQuery: "starter plan price",
	}}
	hist := newMemoryHistory()

	a, err := New(&Config{ChatModel: cm, Retriever: rt, History: hist})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out strings.Builder
	turn, err := a.Chat(context.Background(), "sess-1", "How much is the starter plan?", &out)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if got, want := out.String(), "The starter plan is $10/month [Source 1]."; got != want {
		t.Errorf("streamed answer = %q, want %q", got, want)
	}
	if len(turn.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(turn.Citations))
	}
	if turn.Degraded {
		t.Error("turn should not be degraded")
	}
	if turn.NormalizedQuery != "starter plan price" {
		t.Errorf("NormalizedQuery = %q", turn.NormalizedQuery)
	}
	if rt.gotQuery != "How much is the starter plan?" {
		t.Errorf("retriever query = %q", rt.gotQuery)
	}
}

func TestAssistant_Chat_MessageAssembly(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"ok"}}
	rt := &fakeRetriever{result: retrieval.Result{Citations: testCitations()}}

	a, err := New(&Config{ChatModel: cm, Retriever: rt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := a.Chat(context.Background(), "", "What plans do you offer?", &strings.Builder{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	in := cm.gotInput
	if len(in) != 3 {
		t.Fatalf("got %d messages, want 3 (system, context, user)", len(in))
	}
	if in[0].Role != schema.System || !strings.Contains(in[0].Content, "JupiterBot") {
		t.Errorf("first message is not the persona prompt: %v", in[0])
	}
	if in[1].Role != schema.System {
		t.Errorf("second message role = %v, want system", in[1].Role)
	}
	for _, want := range []string{"Source 1: Pricing", "https://example.com/pricing", "The starter plan costs $10 per month."} {
		if !strings.Contains(in[1].Content, want) {
			t.Errorf("citation context missing %q:\n%s", want, in[1].Content)
		}
	}
	if in[2].Role != schema.User || in[2].Content != "What plans do you offer?" {
		t.Errorf("last message = %v, want the user question", in[2])
	}
}

func TestAssistant_Chat_InjectsSessionHistory(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"ok"}}
	rt := &fakeRetriever{result: retrieval.Result{Citations: testCitations()}}
	hist := newMemoryHistory()
	hist.sessions["sess-1"] = []store.Message{
		{Role: store.RoleUser, Content: "Do you offer refunds?"},
		{Role: store.RoleAssistant, Content: "Yes, within 30 days [Source 1]."},
	}

	a, err := New(&Config{ChatModel: cm, Retriever: rt, History: hist})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := a.Chat(context.Background(), "sess-1", "Even for annual plans?", &strings.Builder{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	in := cm.gotInput
	if len(in) != 5 {
		t.Fatalf("got %d messages, want 5 (system, 2 history, context, user)", len(in))
	}
	if in[1].Role != schema.User || in[1].Content != "Do you offer refunds?" {
		t.Errorf("history user turn missing, got %v", in[1])
	}
	if in[2].Role != schema.Assistant {
		t.Errorf("history assistant turn missing, got %v", in[2])
	}

	// The retriever gets the same history for query reformulation.
	if len(rt.gotHistory) != 2 {
		t.Fatalf("retriever got %d history turns, want 2", len(rt.gotHistory))
	}
	if rt.gotHistory[0].Role != retrieval.RoleUser || rt.gotHistory[1].Role != retrieval.RoleAssistant {
		t.Errorf("retriever history roles wrong: %+v", rt.gotHistory)
	}
}

func TestAssistant_Chat_PersistsBothTurns(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"Answer", " text."}}
	rt := &fakeRetriever{result: retrieval.Result{}}
	hist := newMemoryHistory()

	a, err := New(&Config{ChatModel: cm, Retriever: rt, History: hist})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := a.Chat(context.Background(), "sess-9", "Is there an API?", &strings.Builder{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	msgs := hist.sessions["sess-9"]
	if len(msgs) != 2 {
		t.Fatalf("got %d persisted messages, want 2", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[0].Content != "Is there an API?" {
		t.Errorf("persisted user turn = %+v", msgs[0])
	}
	if msgs[1].Role != store.RoleAssistant || msgs[1].Content != "Answer text." {
		t.Errorf("persisted assistant turn = %+v", msgs[1])
	}
}

func TestAssistant_Chat_PersistFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"fine"}}
	rt := &fakeRetriever{result: retrieval.Result{}}
	hist := newMemoryHistory()
	hist.appendErr = errors.New("disk full")

	a, err := New(&Config{ChatModel: cm, Retriever: rt, History: hist})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out strings.Builder
	if _, err := a.Chat(context.Background(), "sess-1", "Still works?", &out); err != nil {
		t.Fatalf("Chat should not fail on persistence errors: %v", err)
	}
	if out.String() != "fine" {
		t.Errorf("answer = %q", out.String())
	}
}

func TestAssistant_Chat_DegradedRetrieval(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"I could not check the website right now."}}
	rt := &fakeRetriever{result: retrieval.Result{NormalizedQuery: "pricing", Degraded: true}}

	a, err := New(&Config{ChatModel: cm, Retriever: rt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	turn, err := a.Chat(context.Background(), "", "How much does it cost?", &strings.Builder{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !turn.Degraded {
		t.Error("turn should be degraded")
	}
	if len(turn.Citations) != 0 {
		t.Errorf("degraded turn carries %d citations", len(turn.Citations))
	}

	in := cm.gotInput
	if len(in) != 3 {
		t.Fatalf("got %d messages, want 3", len(in))
	}
	if !strings.Contains(in[1].Content, "temporarily unavailable") {
		t.Errorf("degraded notice missing from context message:\n%s", in[1].Content)
	}
}

func TestAssistant_Chat_NoMatchesOmitsContextMessage(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"ok"}}
	rt := &fakeRetriever{result: retrieval.Result{Citations: []retrieval.Citation{}}}

	a, err := New(&Config{ChatModel: cm, Retriever: rt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := a.Chat(context.Background(), "", "Anything relevant?", &strings.Builder{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	in := cm.gotInput
	if len(in) != 2 {
		t.Fatalf("got %d messages, want 2 (system, user)", len(in))
	}
}

func TestAssistant_Chat_InvalidInputIsHardError(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{parts: []string{"never reached"}}
	rt := &fakeRetriever{err: retrieval.ErrInvalidInput}

	a, err := New(&Config{ChatModel: cm, Retriever: rt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out strings.Builder
	_, err = a.Chat(context.Background(), "", "hi", &out)
	if !errors.Is(err, retrieval.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be streamed on invalid input, got %q", out.String())
	}
}

func TestAssistant_Chat_StreamErrorPropagates(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{streamErr: errors.New("model offline")}
	rt := &fakeRetriever{result: retrieval.Result{}}

	a, err := New(&Config{ChatModel: cm, Retriever: rt})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := a.Chat(context.Background(), "", "hello there", &strings.Builder{}); err == nil {
		t.Fatal("expected stream error")
	}
}
