package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/oliverwm/ragserver/internal/chain"
	"github.com/oliverwm/ragserver/internal/config"
	"github.com/oliverwm/ragserver/internal/embedder"
	"github.com/oliverwm/ragserver/internal/extract"
	"github.com/oliverwm/ragserver/internal/ingestion"
	"github.com/oliverwm/ragserver/internal/logging"
	"github.com/oliverwm/ragserver/internal/objectstore"
	"github.com/oliverwm/ragserver/internal/provider"
	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/server"
	"github.com/oliverwm/ragserver/internal/session"
	"github.com/oliverwm/ragserver/internal/tracing"
	"github.com/oliverwm/ragserver/internal/vectorstore"
)

// NewServeCmd constructs the `ragserver serve` command, which starts the
// HTTP chat API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragserver HTTP chat API",
		Long: `Start the ragserver HTTP server.

The server exposes a JSON API: POST /api/ask answers a question with retrieved
document context and per-session chat history, GET /api/history returns the
session transcript, POST /api/newchat starts a fresh conversation, and
POST /api/webhook accepts signed object storage event notifications that
trigger an append-mode ingestion run.

Examples:
  ragserver serve
  ragserver serve --port 9090
  MODEL_PROVIDER=azure ragserver serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			col, err := config.CollectionFromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			gw, err := newGateway(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, err := newVectorStore(ctx, gw, emb, col.VectorStoreLocation, true)
			if errors.Is(err, vectorstore.ErrNotFound) {
				return fmt.Errorf("serve: vector store %s holds no data — run 'ragserver load' first", col.VectorStoreLocation)
			}
			if err != nil {
				return fmt.Errorf("serve: failed to open vector store: %w", err)
			}
			defer store.Close()

			retriever, err := rag.NewRetriever(store, col.SearchK)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			sessions, err := openSessionStore(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer sessions.Close()

			chat, err := chain.New(&chain.Config{
				ChatModel: chatModel,
				Retriever: retriever,
				Sessions:  sessions,
				TopK:      col.SearchK,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(chat, &server.Config{
				Host:          host,
				Port:          port,
				Logger:        log,
				Pingers:       buildPingers(chatModel, gw, col),
				APIKey:        os.Getenv("RAGSERVER_API_KEY"),
				WebhookSecret: os.Getenv("WEBHOOK_SIGNING_SECRET"),
				OnWebhook:     webhookIngest(gw, store, col),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// openSessionStore opens the SQLite session store at RAGSERVER_SESSION_DB,
// falling back to an in-memory store when the variable is unset or the file
// cannot be opened. Chat still works without persistence.
func openSessionStore(log *slog.Logger) (session.Store, error) {
	dbPath := os.Getenv("RAGSERVER_SESSION_DB")
	if dbPath == "" {
		log.Info("sessions: in-memory store (set RAGSERVER_SESSION_DB to persist)")
		return session.NewMemoryStore(0), nil
	}

	st, err := session.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sessions: failed to open %s: %w", dbPath, err)
	}
	log.Info("sessions: sqlite store opened", slog.String("path", dbPath))
	return st, nil
}

// buildPingers assembles the dependency probes for GET /api/ready: the chat
// model backend, the source bucket, and Qdrant when it backs the vector store.
func buildPingers(chatModel model.BaseChatModel, gw *objectstore.Gateway, col *config.Collection) []server.Pinger {
	pingers := []server.Pinger{
		server.NewModelPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
	}
	if src, err := objectstore.ParseURI(col.SourceDataLocation); err == nil {
		pingers = append(pingers, server.NewObjectStorePinger(gw, src))
	}
	if client := qdrantClientFor(col.VectorStoreLocation); client != nil {
		pingers = append(pingers, server.NewQdrantPinger(client))
	}
	return pingers
}

// webhookIngest returns the POST /api/webhook callback: an append-mode
// ingestion run over the source bucket, so newly uploaded documents become
// searchable without restarting the server. The event body is only a trigger;
// the bucket listing is the source of truth.
func webhookIngest(gw *objectstore.Gateway, store vectorstore.Store, col *config.Collection) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		source, err := objectstore.ParseURI(col.SourceDataLocation)
		if err != nil {
			return fmt.Errorf("webhook: invalid source data location: %w", err)
		}

		pipeline, err := ingestion.NewPipeline(gw, extract.NewRegistry(gw), store, ingestion.Config{
			Mode: ingestion.ModeAppend,
		})
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}

		log := logging.FromContext(ctx)
		summary, err := pipeline.Run(ctx, source, func(msg string) {
			log.Info(msg)
		})
		if err != nil {
			return fmt.Errorf("webhook: ingestion failed: %w", err)
		}
		log.Info("webhook ingestion complete",
			slog.Int("loaded", summary.Loaded),
			slog.Int("skipped", summary.Skipped),
			slog.Int64("rows", summary.Rows),
		)
		return nil
	}
}

// qdrantClientFor builds a Qdrant client for readiness probing when the
// vector store location uses the qdrant:// scheme. Returns nil otherwise.
func qdrantClientFor(location string) *qdrant.Client {
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "qdrant" {
		return nil
	}
	port := 6334
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil
	}
	return client
}
