// Package chain implements the conversational retrieval chain behind the ask
// endpoint. Each invocation retrieves context for the question, assembles a
// prompt from the system template, recent session history, and the question,
// generates an answer with the configured chat model, and persists the
// completed turn to the session store. Every invocation is timed under its
// own run ID.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/oliverwm/ragserver/internal/budget"
	"github.com/oliverwm/ragserver/internal/logging"
	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/session"
)

// systemPromptTemplate frames the retrieved context for the model. The
// instruction to admit ignorance keeps answers grounded in the context
// instead of the model's own knowledge.
const systemPromptTemplate = "Use the following pieces of context and the message history " +
	"to answer the question at the end. If you don't know the answer, just say " +
	"that you don't know, don't try to make up an answer.\n\nContext: %s"

// defaultHistoryDepth is the number of prior messages injected per
// invocation when none is configured.
const defaultHistoryDepth = 10

// Config holds the dependencies required to construct a Chain.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Retriever supplies context documents for each question.
	Retriever rag.Retriever

	// Sessions persists conversation history between invocations.
	Sessions session.Store

	// TopK controls how many context documents are retrieved per question.
	// Defaults to 4 if zero.
	TopK int

	// HistoryDepth is the number of prior messages injected per invocation.
	// Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + history + question). History is trimmed oldest-first
	// to fit. Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Result is the outcome of one chain invocation.
type Result struct {
	// Answer is the model's response text.
	Answer string

	// RunID uniquely identifies this invocation.
	RunID string

	// Elapsed is the wall time from retrieval start to generation end.
	Elapsed time.Duration
}

// Chain runs the retrieve → prompt → generate flow for one question at a
// time per caller. It is safe for concurrent use across sessions.
type Chain struct {
	// model is the LLM backend.
	model model.BaseChatModel

	// retriever supplies context documents.
	retriever rag.Retriever

	// sessions persists conversation history.
	sessions session.Store

	// timings measures per-invocation elapsed time.
	timings *Tracker

	// topK is the number of context documents retrieved per question.
	topK int

	// historyDepth is the number of prior messages injected per invocation.
	historyDepth int

	// maxContextTokens is the estimated token budget for the full input.
	maxContextTokens int
}

// New constructs a Chain from the provided Config.
func New(cfg *Config) (*Chain, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chain: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("chain: Retriever must not be nil")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("chain: Sessions must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Chain{
		model:            cfg.ChatModel,
		retriever:        cfg.Retriever,
		sessions:         cfg.Sessions,
		timings:          NewTracker(),
		topK:             topK,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask answers question in the context of the given session. The completed
// turn is persisted only after generation succeeds, so a failed invocation
// leaves the session history untouched.
func (c *Chain) Ask(ctx context.Context, sessionID, question string) (*Result, error) {
	runID := uuid.NewString()
	c.timings.Start(runID)
	defer c.timings.End(runID)

	docs, err := c.retriever.Retrieve(ctx, question, c.topK)
	if err != nil {
		return nil, fmt.Errorf("chain: retrieve context: %w", err)
	}

	messages, err := c.buildMessages(ctx, sessionID, question, docs)
	if err != nil {
		return nil, err
	}

	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chain: generate: %w", err)
	}

	// Persist the turn (non-fatal on error).
	if err := c.sessions.AppendTurn(ctx, sessionID, question, resp.Content); err != nil {
		logging.FromContext(ctx).Warn("session: failed to persist turn",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}

	return &Result{
		Answer:  resp.Content,
		RunID:   runID,
		Elapsed: c.timings.End(runID),
	}, nil
}

// History returns the session's conversation so far, oldest-first.
func (c *Chain) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	msgs, err := c.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chain: load history: %w", err)
	}
	return msgs, nil
}

// NewChat discards the session's history so the next question starts a fresh
// conversation.
func (c *Chain) NewChat(ctx context.Context, sessionID string) error {
	if err := c.sessions.Reset(ctx, sessionID); err != nil {
		return fmt.Errorf("chain: reset session: %w", err)
	}
	return nil
}

// buildMessages assembles the prompt: system message carrying the retrieved
// context, recent history, then the user's question. History beyond the
// configured depth is dropped oldest-first, then trimmed further if the
// token budget requires it.
func (c *Chain) buildMessages(ctx context.Context, sessionID, question string, docs []rag.Document) ([]*schema.Message, error) {
	system := schema.SystemMessage(fmt.Sprintf(systemPromptTemplate, contextBlock(docs)))

	prior, err := c.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chain: load history: %w", err)
	}
	if len(prior) > c.historyDepth {
		prior = prior[len(prior)-c.historyDepth:]
	}

	history := make([]*schema.Message, 0, len(prior))
	for _, m := range prior {
		switch m.Role {
		case session.RoleUser:
			history = append(history, schema.UserMessage(m.Content))
		case session.RoleAssistant:
			history = append(history, schema.AssistantMessage(m.Content, nil))
		}
	}

	user := schema.UserMessage(question)
	fixed := []*schema.Message{system, user}

	before := len(history)
	history = budget.TrimHistory(fixed, history, c.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", c.maxContextTokens),
		)
	}

	messages := make([]*schema.Message, 0, 2+len(history))
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, user)
	return messages, nil
}

// contextBlock joins the retrieved documents into the context section of the
// system prompt.
func contextBlock(docs []rag.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n\n")
}
