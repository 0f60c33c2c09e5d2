package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/oliverwm/ragserver/internal/embedder"
	"github.com/oliverwm/ragserver/internal/objectstore"
	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/vectorstore"
)

// newGateway builds the object storage gateway from the standard AWS SDK
// environment (credentials, region, optional AWS_ENDPOINT_URL_S3 for
// S3-compatible providers).
func newGateway(ctx context.Context) (*objectstore.Gateway, error) {
	client, err := objectstore.NewClientFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise object storage client: %w", err)
	}
	return objectstore.NewGateway(client), nil
}

// newVectorStore resolves and opens the vector store at location, wiring the
// embedder and, for s3:// locations, the object storage gateway. With
// checkExists set, a location holding no data fails with
// vectorstore.ErrNotFound.
func newVectorStore(ctx context.Context, gw *objectstore.Gateway, emb rag.Embedder, location string, checkExists bool) (vectorstore.Store, error) {
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))

	manager, err := vectorstore.NewManager(vectorstore.ManagerOptions{
		Embedder:     emb,
		Gateway:      gw,
		QdrantAPIKey: os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:    os.Getenv("QDRANT_TLS") == "true",
		VectorSize:   uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
	})
	if err != nil {
		return nil, err
	}
	return manager.Open(ctx, location, checkExists)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
