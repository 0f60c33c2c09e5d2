package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/session"
)

// fakeModel echoes a canned answer and records the messages it was given.
type fakeModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	delay   time.Duration
	prompts [][]*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, in)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.answer, nil), nil
}

func (m *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (m *fakeModel) lastPrompt(t *testing.T) []*schema.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		t.Fatal("model was never invoked")
	}
	return m.prompts[len(m.prompts)-1]
}

// fakeRetriever returns fixed documents.
type fakeRetriever struct {
	docs  []rag.Document
	err   error
	delay time.Duration
	gotK  int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]rag.Document, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.gotK = k
	return r.docs, r.err
}

func newTestChain(t *testing.T, m *fakeModel, r *fakeRetriever, opts ...func(*Config)) (*Chain, session.Store) {
	t.Helper()
	store := session.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	cfg := &Config{ChatModel: m, Retriever: r, Sessions: store}
	for _, opt := range opts {
		opt(cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, store
}

func TestAsk_AnswersAndPersistsTurn(t *testing.T) {
	m := &fakeModel{answer: "the answer"}
	r := &fakeRetriever{docs: []rag.Document{{Content: "relevant context"}}}
	c, store := newTestChain(t, m, r)

	result, err := c.Ask(context.Background(), "sess-1", "the question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if result.Answer != "the answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}

	msgs, err := store.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history has %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "the question" || msgs[1].Content != "the answer" {
		t.Errorf("history = %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestAsk_PromptCarriesContextAndQuestion(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	r := &fakeRetriever{docs: []rag.Document{
		{Content: "first passage"},
		{Content: "second passage"},
	}}
	c, _ := newTestChain(t, m, r)

	if _, err := c.Ask(context.Background(), "sess-1", "what is this?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	prompt := m.lastPrompt(t)
	if prompt[0].Role != schema.System {
		t.Fatalf("first message role = %q, want system", prompt[0].Role)
	}
	system := prompt[0].Content
	for _, want := range []string{
		"Use the following pieces of context and the message history",
		"just say that you don't know",
		"first passage",
		"second passage",
	} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	last := prompt[len(prompt)-1]
	if last.Role != schema.User || last.Content != "what is this?" {
		t.Errorf("last message = %q %q, want the user question", last.Role, last.Content)
	}
}

func TestAsk_InjectsRecentHistoryOnly(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	r := &fakeRetriever{}
	c, store := newTestChain(t, m, r)

	// Seed 7 turns (14 messages); only the last 10 messages should be
	// injected.
	for i := 0; i < 7; i++ {
		q := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		if err := store.AppendTurn(context.Background(), "sess-1", q, a); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	if _, err := c.Ask(context.Background(), "sess-1", "current"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	prompt := m.lastPrompt(t)
	// system + 10 history + user question
	if len(prompt) != 12 {
		t.Fatalf("prompt has %d messages, want 12", len(prompt))
	}
	// The oldest injected message should be from turn 2, not turn 0.
	if got := prompt[1].Content; got != "question 2" {
		t.Errorf("oldest injected message = %q, want %q", got, "question 2")
	}
}

func TestAsk_NoTurnPersistedOnGenerateFailure(t *testing.T) {
	m := &fakeModel{err: errors.New("model unavailable")}
	r := &fakeRetriever{}
	c, store := newTestChain(t, m, r)

	if _, err := c.Ask(context.Background(), "sess-1", "question"); err == nil {
		t.Fatal("Ask succeeded with failing model")
	}

	msgs, err := store.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("history has %d messages after failed turn, want 0", len(msgs))
	}
}

func TestAsk_RetrievalFailureIsFatal(t *testing.T) {
	sentinel := errors.New("store offline")
	m := &fakeModel{answer: "ok"}
	r := &fakeRetriever{err: sentinel}
	c, _ := newTestChain(t, m, r)

	_, err := c.Ask(context.Background(), "sess-1", "question")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	if len(m.prompts) != 0 {
		t.Error("model was invoked despite retrieval failure")
	}
}

func TestAsk_ElapsedCoversRetrievalAndGeneration(t *testing.T) {
	m := &fakeModel{answer: "ok", delay: 5 * time.Millisecond}
	r := &fakeRetriever{delay: 5 * time.Millisecond}
	c, _ := newTestChain(t, m, r)

	result, err := c.Ask(context.Background(), "sess-1", "question")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if result.Elapsed < 10*time.Millisecond {
		t.Errorf("Elapsed = %v, want at least 10ms", result.Elapsed)
	}
}

func TestAsk_RunIDsAreUnique(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	c, _ := newTestChain(t, m, &fakeRetriever{})

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		result, err := c.Ask(context.Background(), "sess-1", "question")
		if err != nil {
			t.Fatalf("Ask: %v", err)
		}
		if seen[result.RunID] {
			t.Fatalf("duplicate run ID %q", result.RunID)
		}
		seen[result.RunID] = true
	}
}

func TestAsk_ConcurrentSessionsStayIsolated(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	c, store := newTestChain(t, m, &fakeRetriever{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("sess-%d", i%2)
			if _, err := c.Ask(context.Background(), sessionID, "question"); err != nil {
				t.Errorf("Ask: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for _, sessionID := range []string{"sess-0", "sess-1"} {
		msgs, err := store.History(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(msgs) != 10 {
			t.Errorf("%s has %d messages, want 10", sessionID, len(msgs))
		}
	}
}

func TestNewChat_ClearsHistory(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	c, store := newTestChain(t, m, &fakeRetriever{})

	if err := store.AppendTurn(context.Background(), "sess-1", "q", "a"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := c.NewChat(context.Background(), "sess-1"); err != nil {
		t.Fatalf("NewChat: %v", err)
	}

	msgs, err := c.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("history has %d messages after NewChat, want 0", len(msgs))
	}
}

func TestAsk_DefaultTopK(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	r := &fakeRetriever{}
	c, _ := newTestChain(t, m, r)

	if _, err := c.Ask(context.Background(), "sess-1", "question"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if r.gotK != 4 {
		t.Errorf("retriever k = %d, want default 4", r.gotK)
	}
}

func TestNew_Validation(t *testing.T) {
	m := &fakeModel{}
	r := &fakeRetriever{}
	store := session.NewMemoryStore(0)
	defer store.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"nil model", Config{Retriever: r, Sessions: store}},
		{"nil retriever", Config{ChatModel: m, Sessions: store}},
		{"nil sessions", Config{ChatModel: m, Retriever: r}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg); err == nil {
				t.Error("New accepted invalid config")
			}
		})
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()

	base := time.Now()
	clock := base
	tr.now = func() time.Time { return clock }

	tr.Start("run-1")
	tr.Start("run-2")
	if tr.Active() != 2 {
		t.Errorf("Active = %d, want 2", tr.Active())
	}

	clock = base.Add(3 * time.Second)
	if got := tr.End("run-1"); got != 3*time.Second {
		t.Errorf("End(run-1) = %v, want 3s", got)
	}
	if tr.Active() != 1 {
		t.Errorf("Active = %d, want 1", tr.Active())
	}

	// Ending again, or ending an unknown run, reports zero.
	if got := tr.End("run-1"); got != 0 {
		t.Errorf("second End(run-1) = %v, want 0", got)
	}
	if got := tr.End("never-started"); got != 0 {
		t.Errorf("End(never-started) = %v, want 0", got)
	}
}
