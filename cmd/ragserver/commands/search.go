package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oliverwm/ragserver/internal/embedder"
	"github.com/oliverwm/ragserver/internal/logging"
	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/vectorstore"
)

// NewSearchCmd constructs the `ragserver search` command, which runs a
// similarity search against the vector store and prints the matching chunks.
func NewSearchCmd() *cobra.Command {
	var storeLoc string
	var k int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a similarity search against the vector store",
		Long: `Embed the query and print the most similar stored chunks with their
similarity scores and source URIs. Useful for checking what context the chat
chain would retrieve for a question.

Examples:
  ragserver search "quarterly revenue"
  ragserver search --top-k 8 "refund policy for enterprise customers"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if storeLoc == "" {
				storeLoc = getEnvOrDefault("VECTOR_STORE_LOCATION", "")
			}
			if storeLoc == "" {
				return fmt.Errorf("search: VECTOR_STORE_LOCATION must be set (flag or env)")
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("search: failed to initialise embedder: %w", err)
			}

			gw, err := newGateway(ctx)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			store, err := newVectorStore(ctx, gw, emb, storeLoc, true)
			if errors.Is(err, vectorstore.ErrNotFound) {
				return fmt.Errorf("search: vector store %s holds no data — run 'ragserver load' first", storeLoc)
			}
			if err != nil {
				return fmt.Errorf("search: failed to open vector store: %w", err)
			}
			defer store.Close()

			retriever, err := rag.NewRetriever(store, k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			query := strings.Join(args, " ")
			docs, err := retriever.Retrieve(ctx, query, k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(docs) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, doc := range docs {
				fmt.Printf("%d. [%.4f] %s\n", i+1, doc.Score, doc.Source)
				fmt.Printf("   %s\n", snippet(doc.Content, 200))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeLoc, "vector-store-location", "", "Vector store URI (default: $VECTOR_STORE_LOCATION)")
	cmd.Flags().IntVarP(&k, "top-k", "k", getEnvInt("SEARCH_K", 4), "Number of chunks to return")

	return cmd
}

// snippet returns the first n characters of s on a single line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
