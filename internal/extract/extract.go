// Package extract turns raw object bytes into rag.Documents. Extractors are
// registered per file extension; the registry picks one by the object key's
// extension and reports which extensions it can handle so the ingestion
// filter can skip everything else.
package extract

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/oliverwm/ragserver/internal/objectstore"
	"github.com/oliverwm/ragserver/internal/rag"
)

// Error wraps a document parse failure. The ingestion pipeline treats it as
// fatal for the whole run.
type Error struct {
	// Source is the URI of the object that failed to parse.
	Source string
	// Err is the underlying parser error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extractor decodes one file type into plain text.
type Extractor interface {
	// Extract returns the plain text content of data.
	Extract(data []byte) (string, error)
	// Extensions returns the lowercase extensions (without dot) this
	// extractor handles.
	Extensions() []string
}

// fetcher reads object bytes. *objectstore.Gateway satisfies it.
type fetcher interface {
	Get(ctx context.Context, loc objectstore.URI) ([]byte, error)
}

// Registry maps file extensions to extractors and loads documents from the
// object store.
type Registry struct {
	// byExt maps a lowercase extension (without dot) to its extractor.
	byExt map[string]Extractor
	// fetch reads object bytes.
	fetch fetcher
}

// NewRegistry constructs a Registry with the default extractors: PDF, plain
// text, and markdown.
func NewRegistry(fetch fetcher) *Registry {
	r := &Registry{byExt: make(map[string]Extractor), fetch: fetch}
	r.Register(&PDFExtractor{})
	r.Register(&TextExtractor{})
	return r
}

// Register adds an extractor for each extension it declares. Later
// registrations win on conflict.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Supported returns the sorted list of extensions the registry can extract.
func (r *Registry) Supported() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// CanExtract reports whether an extractor is registered for the key's
// extension.
func (r *Registry) CanExtract(key string) bool {
	_, ok := r.byExt[keyExtension(key)]
	return ok
}

// Extract loads the object at loc and decodes it into a Document whose
// source metadata points back at the originating URI. A parse failure is
// returned as an *Error.
func (r *Registry) Extract(ctx context.Context, loc objectstore.URI) (rag.Document, error) {
	ext := keyExtension(loc.Key)
	extractor, ok := r.byExt[ext]
	if !ok {
		return rag.Document{}, &Error{Source: loc.String(), Err: fmt.Errorf("no extractor for extension %q", ext)}
	}

	data, err := r.fetch.Get(ctx, loc)
	if err != nil {
		return rag.Document{}, fmt.Errorf("extract: load %s: %w", loc, err)
	}

	text, err := extractor.Extract(data)
	if err != nil {
		return rag.Document{}, &Error{Source: loc.String(), Err: err}
	}

	source := loc.String()
	return rag.Document{
		Content:  text,
		Source:   source,
		Metadata: map[string]string{rag.MetadataSource: source},
	}, nil
}

// keyExtension returns the lowercase extension of key without the dot.
func keyExtension(key string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
}

// TextExtractor handles plain text and markdown files, which need no
// decoding beyond a UTF-8 read.
type TextExtractor struct{}

// Extract returns data unchanged as a string.
func (TextExtractor) Extract(data []byte) (string, error) {
	return string(data), nil
}

// Extensions returns the plain-text extensions.
func (TextExtractor) Extensions() []string {
	return []string{"txt", "md", "markdown"}
}
