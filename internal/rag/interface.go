// Package rag defines the core types and interfaces for retrieval-augmented
// generation: documents, chunking, embedding, and retrieval. Concrete storage
// backends (object-store segments, Qdrant) satisfy the retrieval contracts so
// the chain layer never depends on a specific engine.
package rag

import (
	"context"
)

// MetadataSource is the metadata key holding the object-store URI a document
// was extracted from. It is the dedup key for append-mode ingestion: a source
// already present in the store is never loaded twice.
const MetadataSource = "source"

// Document represents a unit of extracted, stored, or retrieved text.
// Extraction produces one Document per object; the splitter produces one
// Document per chunk, inheriting the parent's metadata.
type Document struct {
	// ID is the unique identifier for this document or chunk.
	ID string

	// Content is the raw text content.
	Content string

	// Source is the object-store URI of the originating object.
	Source string

	// Metadata holds arbitrary key-value pairs. MetadataSource is always set.
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface the chain uses to fetch relevant
// context for a question. Implementations must be safe to call from multiple
// goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query,
	// ordered best-first. Passing k <= 0 selects the configured default.
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}
