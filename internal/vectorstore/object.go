package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/oliverwm/ragserver/internal/objectstore"
	"github.com/oliverwm/ragserver/internal/rag"
)

// objectStore keeps the collection as immutable JSON segment objects under a
// bucket prefix. Each Append writes one new segment; Reset deletes every
// object under the prefix. Search loads all segments and ranks by cosine
// similarity, which is adequate for the collection sizes this engine targets.
type objectStore struct {
	gateway *objectstore.Gateway
	root    objectstore.URI
	embed   rag.Embedder
}

// record is the stored form of one document.
type record struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"vector"`
}

// segment is the JSON body of one segment object.
type segment struct {
	Records []record `json:"records"`
}

func newObjectStore(gateway *objectstore.Gateway, root objectstore.URI, embed rag.Embedder) *objectStore {
	return &objectStore{gateway: gateway, root: root, embed: embed}
}

// Append embeds docs and writes them as a single new segment object. Nothing
// existing is read or rewritten, so concurrent appends never clobber each
// other.
func (s *objectStore) Append(ctx context.Context, docs []rag.Document) error {
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

	seg := segment{Records: make([]record, len(docs))}
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		seg.Records[i] = record{
			ID:       id,
			Content:  doc.Content,
			Source:   doc.Source,
			Metadata: doc.Metadata,
			Vector:   vectors[i],
		}
	}

	data, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("vectorstore: encode segment: %w", err)
	}

	key := s.root.Join("segment-" + uuid.NewString() + ".json")
	if err := s.gateway.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("vectorstore: write segment: %w", err)
	}
	return nil
}

// Search embeds query and returns the k stored documents with the highest
// cosine similarity, best first.
func (s *objectStore) Search(ctx context.Context, query string, k int) ([]rag.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := s.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	queryVec := vectors[0]

	records, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   record
		score float32
	}
	ranked := make([]scored, 0, len(records))
	for _, rec := range records {
		ranked = append(ranked, scored{rec: rec, score: cosine(queryVec, rec.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	docs := make([]rag.Document, k)
	for i := 0; i < k; i++ {
		docs[i] = rag.Document{
			ID:       ranked[i].rec.ID,
			Content:  ranked[i].rec.Content,
			Source:   ranked[i].rec.Source,
			Metadata: ranked[i].rec.Metadata,
			Score:    ranked[i].score,
		}
	}
	return docs, nil
}

// SourceKeys scans all segments and returns the distinct source URIs.
func (s *objectStore) SourceKeys(ctx context.Context) (map[string]bool, error) {
	records, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool)
	for _, rec := range records {
		if rec.Source != "" {
			keys[rec.Source] = true
		}
	}
	return keys, nil
}

// Count returns the total number of stored documents.
func (s *objectStore) Count(ctx context.Context) (int64, error) {
	records, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Reset deletes every object under the collection prefix. An empty prefix
// deletes nothing and is not an error.
func (s *objectStore) Reset(ctx context.Context) error {
	if _, err := s.gateway.DeleteAll(ctx, s.root); err != nil {
		return fmt.Errorf("vectorstore: reset %s: %w", s.root, err)
	}
	return nil
}

// Close is a no-op; the gateway's client is owned by the caller.
func (s *objectStore) Close() error { return nil }

func (s *objectStore) hasData(ctx context.Context) (bool, error) {
	return s.gateway.HasAny(ctx, s.root)
}

// loadAll reads and decodes every segment under the prefix.
func (s *objectStore) loadAll(ctx context.Context) ([]record, error) {
	var records []record
	pager := s.gateway.ListPager(s.root, objectstore.MaxPageSize)
	for pager.HasMorePages() {
		keys, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: list segments: %w", err)
		}
		for _, key := range keys {
			data, err := s.gateway.Get(ctx, objectstore.URI{Bucket: s.root.Bucket, Key: key})
			if err != nil {
				return nil, fmt.Errorf("vectorstore: read segment %s: %w", key, err)
			}
			var seg segment
			if err := json.Unmarshal(data, &seg); err != nil {
				return nil, fmt.Errorf("vectorstore: decode segment %s: %w", key, err)
			}
			records = append(records, seg.Records...)
		}
	}
	return records, nil
}

// cosine returns the cosine similarity of a and b, or 0 when either has zero
// magnitude or the lengths differ.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
