// Package ingestion implements the document ingestion pipeline. It lists
// objects under an object-store prefix page by page, filters out files that
// are not wanted or already loaded, extracts and chunks the rest, and appends
// the chunks to the vector store one batch per listing page. The pipeline is
// invoked by the `ragserver load` CLI command and by bucket event webhooks.
package ingestion

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/oliverwm/ragserver/internal/objectstore"
	"github.com/oliverwm/ragserver/internal/rag"
	"github.com/oliverwm/ragserver/internal/vectorstore"
)

// Mode selects what happens to data already in the vector store.
type Mode string

const (
	// ModeOverwrite clears the store before loading.
	ModeOverwrite Mode = "overwrite"

	// ModeAppend adds to the store, skipping sources it already holds.
	ModeAppend Mode = "append"
)

// ParseMode validates a mode string from a flag or request.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOverwrite, ModeAppend:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("ingestion: invalid mode %q (want %q or %q)", s, ModeOverwrite, ModeAppend)
	}
}

// Config holds the configuration for an ingestion run.
type Config struct {
	// Mode selects overwrite or append behavior. Required.
	Mode Mode

	// PageSize is the number of object keys listed per page; each page
	// becomes one append batch. Defaults to 1000 if zero, the listing
	// maximum.
	PageSize int

	// MaxResults caps how many objects the run processes, counting both
	// loaded and skipped files. Negative means unlimited.
	MaxResults int

	// Extensions lists the file extensions (without dot, case-insensitive)
	// eligible for loading. Defaults to ["pdf"] if empty.
	Extensions []string

	// LoadAll disables the extension allow-list, making every object under
	// the prefix eligible. The already-loaded check still applies.
	LoadAll bool

	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Defaults to 100 if zero.
	ChunkOverlap int
}

// Summary reports what an ingestion run did.
type Summary struct {
	// Pages is the number of listing pages consumed.
	Pages int

	// Loaded is the number of objects extracted and appended.
	Loaded int

	// Skipped is the number of objects filtered out.
	Skipped int

	// Chunks is the number of chunks appended across all pages.
	Chunks int

	// Rows is the vector store document count after the run.
	Rows int64
}

// extractor turns one object into a document.
type extractor interface {
	Extract(ctx context.Context, loc objectstore.URI) (rag.Document, error)
}

// Pipeline orchestrates the list → filter → extract → chunk → append flow.
type Pipeline struct {
	// list pages object keys under the source prefix.
	list *objectstore.Gateway

	// extract decodes objects into documents.
	extract extractor

	// store receives the embedded chunks.
	store vectorstore.Store

	// splitter chunks extracted documents.
	splitter *rag.Splitter

	// cfg holds the resolved run configuration.
	cfg Config

	// allowed is the normalized extension set from cfg.Extensions.
	allowed map[string]bool
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(list *objectstore.Gateway, ex extractor, store vectorstore.Store, cfg Config) (*Pipeline, error) {
	if list == nil {
		return nil, fmt.Errorf("ingestion: lister must not be nil")
	}
	if ex == nil {
		return nil, fmt.Errorf("ingestion: extractor must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 || cfg.PageSize > objectstore.MaxPageSize {
		cfg.PageSize = objectstore.MaxPageSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 100
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{"pdf"}
	}

	allowed := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		allowed[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")] = true
	}

	splitter, err := rag.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		list:     list,
		extract:  ex,
		store:    store,
		splitter: splitter,
		cfg:      cfg,
		allowed:  allowed,
	}, nil
}

// Run ingests the objects under source. In overwrite mode the store is
// cleared first; in append mode sources the store already holds are skipped.
// Each listing page is chunked and appended as one
// batch before the next page is listed. An extraction failure aborts the run;
// batches already appended stay in the store. Progress is reported via the
// optional progress callback.
func (p *Pipeline) Run(ctx context.Context, source objectstore.URI, progress func(msg string)) (*Summary, error) {
	if progress == nil {
		progress = func(string) {}
	}

	if p.cfg.Mode == ModeOverwrite {
		if err := p.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("ingestion: reset store: %w", err)
		}
	}

	loaded := make(map[string]bool)
	if p.cfg.Mode == ModeAppend {
		var err error
		loaded, err = p.store.SourceKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("ingestion: read existing sources: %w", err)
		}
	}

	summary := &Summary{}
	done := false
	pager := p.list.ListPager(source, p.cfg.PageSize)
	for pager.HasMorePages() && !done {
		keys, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ingestion: list %s: %w", source, err)
		}
		summary.Pages++

		var docs []rag.Document
		for _, key := range keys {
			if p.cfg.MaxResults >= 0 && summary.Loaded+summary.Skipped >= p.cfg.MaxResults {
				done = true
				break
			}

			loc := objectstore.URI{Bucket: source.Bucket, Key: key}
			uri := loc.String()

			if !p.cfg.LoadAll && !p.allowed[keyExtension(key)] {
				summary.Skipped++
				progress(fmt.Sprintf("skipping %s: extension is not allowed", uri))
				continue
			}
			if loaded[uri] {
				summary.Skipped++
				progress(fmt.Sprintf("skipping %s: already loaded", uri))
				continue
			}

			progress(fmt.Sprintf("loading %s", uri))
			doc, err := p.extract.Extract(ctx, loc)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			summary.Loaded++
		}

		chunks := p.splitter.Split(docs)
		if len(chunks) > 0 {
			if err := p.store.Append(ctx, chunks); err != nil {
				return nil, fmt.Errorf("ingestion: append page %d: %w", summary.Pages, err)
			}
			summary.Chunks += len(chunks)
			progress(fmt.Sprintf("appended %d chunks from page %d", len(chunks), summary.Pages))
		}
	}

	rows, err := p.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: count rows: %w", err)
	}
	summary.Rows = rows
	return summary, nil
}

// keyExtension returns the lowercase extension of key without the dot.
func keyExtension(key string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
}
