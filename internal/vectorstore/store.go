// Package vectorstore provides embedding storage and similarity search over
// two interchangeable engines: a Qdrant collection, or a set of JSON segment
// objects in an S3-compatible bucket. A Manager picks the engine from the
// location URI scheme, so the rest of the application never branches on the
// backend.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/oliverwm/ragserver/internal/objectstore"
	"github.com/oliverwm/ragserver/internal/rag"
)

// Store is the backend-independent surface of a vector collection.
type Store interface {
	// Append embeds docs and adds them to the collection without touching
	// existing entries.
	Append(ctx context.Context, docs []rag.Document) error

	// Search embeds query and returns the k most similar documents,
	// best first.
	Search(ctx context.Context, query string, k int) ([]rag.Document, error)

	// SourceKeys returns the set of source URIs already present in the
	// collection.
	SourceKeys(ctx context.Context) (map[string]bool, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int64, error)

	// Reset removes all stored documents. Resetting an empty or missing
	// collection is a no-op.
	Reset(ctx context.Context) error

	// Close releases any client resources held by the store.
	Close() error
}

// hasData is implemented by both engines so Open can apply its existence
// check without a backend branch.
type hasData interface {
	hasData(ctx context.Context) (bool, error)
}

// Manager opens Stores by location URI.
type Manager struct {
	// embed computes vectors for documents and queries.
	embed rag.Embedder

	// gateway backs s3:// locations. May be nil when only Qdrant is used.
	gateway *objectstore.Gateway

	// qdrantAPIKey authenticates qdrant:// locations. Optional.
	qdrantAPIKey string

	// qdrantTLS enables TLS on qdrant:// connections.
	qdrantTLS bool

	// vectorSize is the embedding dimensionality, required for collection
	// creation on Qdrant.
	vectorSize uint64
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Embedder computes vectors for documents and queries. Required.
	Embedder rag.Embedder

	// Gateway backs s3:// locations.
	Gateway *objectstore.Gateway

	// QdrantAPIKey authenticates qdrant:// locations.
	QdrantAPIKey string

	// QdrantTLS enables TLS on qdrant:// connections.
	QdrantTLS bool

	// VectorSize is the embedding dimensionality.
	VectorSize uint64
}

// NewManager constructs a Manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("vectorstore: embedder is required")
	}
	return &Manager{
		embed:        opts.Embedder,
		gateway:      opts.Gateway,
		qdrantAPIKey: opts.QdrantAPIKey,
		qdrantTLS:    opts.QdrantTLS,
		vectorSize:   opts.VectorSize,
	}, nil
}

// Open resolves location to an engine and returns a ready Store.
//
// Supported schemes:
//
//	s3://bucket/prefix          JSON segments in object storage
//	qdrant://host:port/name     Qdrant collection (port defaults to 6334)
//
// With checkExists set, opening a location that holds no data fails with
// ErrNotFound instead of returning an empty store.
func (m *Manager) Open(ctx context.Context, location string, checkExists bool) (Store, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse location %q: %w", location, err)
	}

	var store Store
	switch u.Scheme {
	case "s3":
		if m.gateway == nil {
			return nil, fmt.Errorf("vectorstore: no object store client configured for %q", location)
		}
		loc, err := objectstore.ParseURI(location)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: %w", err)
		}
		store = newObjectStore(m.gateway, loc, m.embed)
	case "qdrant":
		store, err = m.openQdrant(ctx, u)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrScheme, location)
	}

	if checkExists {
		ok, err := store.(hasData).hasData(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("vectorstore: check %q: %w", location, err)
		}
		if !ok {
			store.Close()
			return nil, fmt.Errorf("%w: %q", ErrNotFound, location)
		}
	}
	return store, nil
}

// openQdrant resolves a qdrant://host:port/collection URL.
func (m *Manager) openQdrant(ctx context.Context, u *url.URL) (Store, error) {
	collection := strings.TrimPrefix(u.Path, "/")
	if collection == "" || strings.Contains(collection, "/") {
		return nil, fmt.Errorf("vectorstore: qdrant location %q must name exactly one collection", u)
	}

	port := 6334
	if p := u.Port(); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: qdrant location %q: invalid port: %w", u, err)
		}
	}

	return newQdrantStore(qdrantConfig{
		Host:       u.Hostname(),
		Port:       port,
		Collection: collection,
		VectorSize: m.vectorSize,
		APIKey:     m.qdrantAPIKey,
		UseTLS:     m.qdrantTLS,
	}, m.embed)
}
