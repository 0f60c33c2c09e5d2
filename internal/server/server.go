// Package server implements the HTTP server that exposes the RAG chat chain
// as a JSON API. The server is started by the `ragserver serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oliverwm/ragserver/internal/logging"
	"github.com/oliverwm/ragserver/internal/markdown"
)

// sessionCookie is the cookie that pins a browser to its conversation.
const sessionCookie = "ragserver_session"

// New constructs a Server from the provided chain and config.
func New(chat asker, cfg *Config) (*Server, error) {
	if chat == nil {
		return nil, fmt.Errorf("server: chain must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full model generation round trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	registry := cfg.MetricsRegistry
	gatherer := cfg.MetricsGatherer
	if registry == nil {
		reg := prometheus.NewRegistry()
		registry = reg
		if gatherer == nil {
			gatherer = reg
		}
	}

	s := &Server{
		chat:    chat,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("api authentication disabled: RAGSERVER_API_KEY is not set")
	}
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", s.instrument("ask",
		authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleAsk)))))
	mux.Handle("POST /api/newchat", protected("newchat", s.handleNewChat))
	mux.Handle("GET /api/history", protected("history", s.handleHistory))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	// The webhook authenticates with an HMAC signature, not the Bearer token.
	if cfg.WebhookSecret != "" {
		mux.Handle("POST /api/webhook", s.instrument("webhook", http.HandlerFunc(s.handleWebhook)))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. It runs one retrieval-augmented turn for
// the caller's session and returns the answer rendered to HTML.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.chat.Ask(r.Context(), s.sessionID(w, r), req.Question)
	if err != nil {
		s.metrics.askRequestsTotal.WithLabelValues("error").Inc()
		s.metrics.askDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		log.Error("ask failed", slog.Any("error", err))
		// Internal detail stays out of the response body.
		http.Error(w, "failed to answer question", http.StatusInternalServerError)
		return
	}
	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	html, err := markdown.ToHTML(result.Answer)
	if err != nil {
		log.Warn("markdown render failed, returning raw answer", slog.Any("error", err))
		html = result.Answer
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:  html,
		RunID:   result.RunID,
		Elapsed: result.Elapsed.Seconds(),
	})
}

// handleNewChat handles POST /api/newchat. It discards the caller's session
// history so the next question starts a fresh conversation.
func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.NewChat(r.Context(), s.sessionID(w, r)); err != nil {
		logging.FromContext(r.Context()).Error("newchat failed", slog.Any("error", err))
		http.Error(w, "failed to reset chat", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleHistory handles GET /api/history. It returns the caller's transcript,
// oldest message first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	msgs, err := s.chat.History(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("history failed", slog.Any("error", err))
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{SessionID: id, Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, historyMessage{Role: string(m.Role), Content: m.Content})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// sessionID returns the caller's conversation ID from the session cookie,
// minting and setting a fresh one when the cookie is absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// instrument wraps h so every request increments the HTTP request counter and
// records latency, partitioned by the logical handler name.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, fmt.Sprintf("%d", rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}

// writeJSON encodes v as the JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encode error", slog.Any("error", err))
	}
}
