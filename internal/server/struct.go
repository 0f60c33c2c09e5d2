package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oliverwm/ragserver/internal/chain"
	"github.com/oliverwm/ragserver/internal/session"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for slow model backends.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// WebhookSecret is the shared secret used to verify object storage event
	// notifications on POST /api/webhook. If empty the endpoint is not registered.
	WebhookSecret string
	// OnWebhook is invoked with the raw body of each verified webhook delivery.
	// Typically it triggers an append-mode ingestion run. May be nil.
	OnWebhook func(ctx context.Context, body []byte) error
	// MetricsRegistry receives the server's Prometheus metrics. If nil a fresh
	// registry is created and also used as the gatherer for GET /metrics.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. If nil and
	// MetricsRegistry is also nil, the internally created registry is used.
	MetricsGatherer prometheus.Gatherer
}

// asker is the interface the HTTP handlers call to run the conversational
// chain. *chain.Chain satisfies it; tests inject a fake.
type asker interface {
	// Ask runs one retrieval-augmented turn for the session.
	Ask(ctx context.Context, sessionID, question string) (*chain.Result, error)
	// History returns the session transcript, oldest first.
	History(ctx context.Context, sessionID string) ([]session.Message, error)
	// NewChat discards the session's accumulated history.
	NewChat(ctx context.Context, sessionID string) error
}

// Server is the HTTP server that exposes the chat chain as a JSON API.
type Server struct {
	// chat answers questions against the vector store and session history.
	chat asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Answer is the model's reply rendered as HTML from Markdown.
	Answer string `json:"answer"`
	// RunID uniquely identifies this chain invocation.
	RunID string `json:"run_id"`
	// Elapsed is the wall-clock chain duration in seconds.
	Elapsed float64 `json:"elapsed"`
}

// historyMessage is one transcript entry in the GET /api/history response.
type historyMessage struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the raw message text.
	Content string `json:"content"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// SessionID identifies the conversation the transcript belongs to.
	SessionID string `json:"session_id"`
	// Messages is the transcript, oldest first.
	Messages []historyMessage `json:"messages"`
}

// statusResponse is the minimal JSON body for endpoints that only acknowledge.
type statusResponse struct {
	// Status is "ok" or "accepted".
	Status string `json:"status"`
}
