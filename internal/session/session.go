// Package session persists per-session conversation history for the chat
// server. Each browser session has its own thread, keyed by the session ID
// carried in the session cookie. Two implementations are provided: an
// in-memory store with TTL eviction for single-host deployments, and a
// SQLite-backed store that survives restarts.
package session

import (
	"context"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the LLM.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Store persists and retrieves conversation history keyed by session ID.
// Implementations must be safe for concurrent use.
type Store interface {
	// History returns all messages for the session, ordered oldest-first.
	// An unknown session yields an empty history, not an error.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// AppendTurn persists one completed question/answer pair atomically.
	// A partial turn is never observable.
	AppendTurn(ctx context.Context, sessionID, question, answer string) error
	// Reset discards the session's history. Resetting an unknown session
	// is a no-op.
	Reset(ctx context.Context, sessionID string) error
	// Close releases any resources held by the store.
	Close() error
}
