package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/oliverwm/ragserver/internal/embedder"
	"github.com/oliverwm/ragserver/internal/extract"
	"github.com/oliverwm/ragserver/internal/ingestion"
	"github.com/oliverwm/ragserver/internal/logging"
	"github.com/oliverwm/ragserver/internal/objectstore"
)

// NewLoadCmd constructs the `ragserver load` command, which runs the
// ingestion pipeline: list documents in the source bucket, extract their
// text, chunk it, embed it, and append the chunks to the vector store.
func NewLoadCmd() *cobra.Command {
	var (
		sourceLoc  string
		storeLoc   string
		mode       string
		extensions []string
		pageSize   int
		maxResults int
		loadAll    bool
		chunkSize  int
		overlap    int
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load documents from object storage into the vector store",
		Long: `List documents in the source bucket, extract and chunk their text, and
append the embedded chunks to the vector store.

In overwrite mode the vector store is cleared first; in append mode documents
whose source URI is already stored are skipped, so repeated runs only pick up
new uploads.

Required environment variables:
  SOURCE_DATA_LOCATION    s3:// URI of the bucket prefix holding documents
  VECTOR_STORE_LOCATION   s3:// or qdrant:// URI of the vector store
  MODEL_PROVIDER          Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*             Provider-specific overrides (see README)

Examples:
  ragserver load
  ragserver load --mode append
  ragserver load --extensions pdf,txt,md --max-results 50
  ragserver load --source-data-location s3://corpus/reports --mode overwrite`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if sourceLoc == "" {
				sourceLoc = getEnvOrDefault("SOURCE_DATA_LOCATION", "")
			}
			if storeLoc == "" {
				storeLoc = getEnvOrDefault("VECTOR_STORE_LOCATION", "")
			}
			if sourceLoc == "" || storeLoc == "" {
				return fmt.Errorf("load: SOURCE_DATA_LOCATION and VECTOR_STORE_LOCATION must be set (flags or env)")
			}

			source, err := objectstore.ParseURI(sourceLoc)
			if err != nil {
				return fmt.Errorf("load: invalid source data location: %w", err)
			}

			runMode, err := ingestion.ParseMode(mode)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("load: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("load: failed to initialise embedder: %w", err)
			}

			gw, err := newGateway(ctx)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			store, err := newVectorStore(ctx, gw, emb, storeLoc, false)
			if err != nil {
				return fmt.Errorf("load: failed to open vector store: %w", err)
			}
			defer store.Close()

			pipeline, err := ingestion.NewPipeline(gw, extract.NewRegistry(gw), store, ingestion.Config{
				Mode:         runMode,
				PageSize:     pageSize,
				MaxResults:   maxResults,
				Extensions:   extensions,
				LoadAll:      loadAll,
				ChunkSize:    chunkSize,
				ChunkOverlap: overlap,
			})
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("source", source.String()),
				slog.String("store", storeLoc),
				slog.String("mode", string(runMode)),
			)

			summary, err := pipeline.Run(ctx, source, func(msg string) {
				fmt.Println(msg)
			})
			if err != nil {
				return fmt.Errorf("load: ingestion failed: %w", err)
			}

			fmt.Printf("loaded %d documents (%d skipped) across %d pages, %d chunks appended\n",
				summary.Loaded, summary.Skipped, summary.Pages, summary.Chunks)
			fmt.Printf("vector store now holds %d rows\n", summary.Rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceLoc, "source-data-location", "", "s3:// URI of the source documents (default: $SOURCE_DATA_LOCATION)")
	cmd.Flags().StringVar(&storeLoc, "vector-store-location", "", "Vector store URI (default: $VECTOR_STORE_LOCATION)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "overwrite", "Ingestion mode: overwrite or append")
	cmd.Flags().StringSliceVarP(&extensions, "extensions", "e", []string{"pdf"}, "File extensions to load")
	cmd.Flags().IntVar(&pageSize, "page-size", 1000, "Listing page size (max 1000)")
	cmd.Flags().IntVar(&maxResults, "max-results", -1, "Stop after considering this many objects (-1 for unlimited)")
	cmd.Flags().BoolVar(&loadAll, "load-all", false, "Load every file regardless of extension")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Chunk size in characters")
	cmd.Flags().IntVar(&overlap, "chunk-overlap", 100, "Overlap between consecutive chunks in characters")

	return cmd
}
