package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/oliverwm/ragserver/internal/rag"
)

// qdrantConfig holds connection parameters for a Qdrant collection.
type qdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of stored embeddings. Zero means
	// infer from the first appended batch.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// qdrantStore implements Store backed by a Qdrant instance. The collection is
// created lazily on first Append so that opening a location never has the
// side effect of bringing it into existence.
type qdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg qdrantConfig

	// embed computes vectors for documents and queries.
	embed rag.Embedder
}

func newQdrantStore(cfg qdrantConfig, embed rag.Embedder) (*qdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}

	return &qdrantStore{client: client, cfg: cfg, embed: embed}, nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *qdrantStore) ensureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Append embeds docs and upserts them under fresh point IDs, so repeated
// appends accumulate rather than replace.
func (s *qdrantStore) Append(ctx context.Context, docs []rag.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("vectorstore: embed batch: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("vectorstore: embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	size := s.cfg.VectorSize
	if size == 0 {
		size = uint64(len(vectors[0]))
	}
	if err := s.ensureCollection(ctx, size); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]interface{}{
			"content": doc.Content,
			"source":  doc.Source,
		}
		for k, v := range doc.Metadata {
			if k != "content" && k != "source" {
				payload[k] = v
			}
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert failed: %w", err)
	}
	return nil
}

// Search embeds query and performs a cosine similarity query, returning the
// top-k results best first.
func (s *qdrantStore) Search(ctx context.Context, query string, k int) ([]rag.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := s.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search failed: %w", err)
	}

	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		doc := rag.Document{
			ID:       r.Id.GetUuid(),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				doc.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				doc.Source = v.GetStringValue()
			}
			for k, v := range p {
				if k != "content" && k != "source" {
					doc.Metadata[k] = v.GetStringValue()
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SourceKeys scrolls the collection and returns the distinct source URIs.
func (s *qdrantStore) SourceKeys(ctx context.Context) (map[string]bool, error) {
	keys := make(map[string]bool)

	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: check collection existence: %w", err)
	}
	if !exists {
		return keys, nil
	}

	batch := uint32(256)
	var offset *qdrant.PointId
	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Limit:          qdrant.PtrOf(batch),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("source"),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scroll failed: %w", err)
		}
		for _, r := range results {
			if source := r.Payload["source"].GetStringValue(); source != "" {
				keys[source] = true
			}
		}
		if len(results) < int(batch) {
			return keys, nil
		}
		// Scroll treats the offset as inclusive, so the last point of each
		// page is read again on the next one. The set absorbs the duplicate.
		offset = results[len(results)-1].Id
	}
}

// Count returns the number of points in the collection, or zero when the
// collection does not exist.
func (s *qdrantStore) Count(ctx context.Context) (int64, error) {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: check collection existence: %w", err)
	}
	if !exists {
		return 0, nil
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("vectorstore: count failed: %w", err)
	}
	return int64(n), nil
}

// Reset drops the collection. Resetting a missing collection is a no-op.
func (s *qdrantStore) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("vectorstore: delete collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *qdrantStore) Close() error {
	return s.client.Close()
}

func (s *qdrantStore) hasData(ctx context.Context) (bool, error) {
	return s.client.CollectionExists(ctx, s.cfg.Collection)
}
