package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oliverwm/ragserver/internal/chain"
	"github.com/oliverwm/ragserver/internal/embedder"
	"github.com/oliverwm/ragserver/internal/logging"
	"github.com/oliverwm/ragserver/internal/provider"
	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/session"
	"github.com/oliverwm/ragserver/internal/vectorstore"
)

// NewAskCmd constructs the `ragserver ask` command, which answers a single
// question from the shell without starting the HTTP server.
func NewAskCmd() *cobra.Command {
	var storeLoc string
	var k int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question against the loaded documents",
		Long: `Run one retrieval-augmented question through the chat chain and print the
answer. Each invocation is its own conversation; use 'ragserver serve' for
multi-turn sessions.

Examples:
  ragserver ask "what does the Q3 report say about churn?"
  ragserver ask --top-k 8 "summarise the onboarding guide"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if storeLoc == "" {
				storeLoc = getEnvOrDefault("VECTOR_STORE_LOCATION", "")
			}
			if storeLoc == "" {
				return fmt.Errorf("ask: VECTOR_STORE_LOCATION must be set (flag or env)")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: failed to initialise embedder: %w", err)
			}

			gw, err := newGateway(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			store, err := newVectorStore(ctx, gw, emb, storeLoc, true)
			if errors.Is(err, vectorstore.ErrNotFound) {
				return fmt.Errorf("ask: vector store %s holds no data — run 'ragserver load' first", storeLoc)
			}
			if err != nil {
				return fmt.Errorf("ask: failed to open vector store: %w", err)
			}
			defer store.Close()

			retriever, err := rag.NewRetriever(store, k)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			// One-shot invocation: an in-memory session nobody else sees.
			sessions := session.NewMemoryStore(time.Minute)
			defer sessions.Close()

			chat, err := chain.New(&chain.Config{
				ChatModel: chatModel,
				Retriever: retriever,
				Sessions:  sessions,
				TopK:      k,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			result, err := chat.Ask(ctx, uuid.NewString(), args[0])
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Answer)
			fmt.Printf("\n(%.2fs)\n", result.Elapsed.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&storeLoc, "vector-store-location", "", "Vector store URI (default: $VECTOR_STORE_LOCATION)")
	cmd.Flags().IntVarP(&k, "top-k", "k", getEnvInt("SEARCH_K", 4), "Number of context chunks to retrieve")

	return cmd
}
