package rag

import (
	"context"
	"fmt"
)

// Searcher is the subset of the vector store contract the retriever needs:
// embed a query and return the nearest stored chunks best-first.
type Searcher interface {
	// Search returns the k stored documents nearest the query text, ordered
	// by non-increasing similarity score.
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// DefaultRetriever implements Retriever on top of a Searcher, applying the
// per-collection default result count when the caller does not supply one.
type DefaultRetriever struct {
	// searcher performs the similarity search.
	searcher Searcher

	// defaultK is the number of results to return when the caller passes 0.
	defaultK int
}

// NewRetriever constructs a DefaultRetriever. defaultK sets the fallback
// result count when Retrieve is called with k <= 0.
func NewRetriever(searcher Searcher, defaultK int) (*DefaultRetriever, error) {
	if searcher == nil {
		return nil, fmt.Errorf("rag: searcher must not be nil")
	}
	if defaultK <= 0 {
		defaultK = 4
	}
	return &DefaultRetriever{searcher: searcher, defaultK: defaultK}, nil
}

// Retrieve returns the top-k most relevant documents for the given query.
// If k <= 0 the default configured at construction time is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		k = r.defaultK
	}

	docs, err := r.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("rag: similarity search failed: %w", err)
	}
	return docs, nil
}
