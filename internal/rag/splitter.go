package rag

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Splitter segments documents into overlapping fixed-size text windows.
// Splitting is deterministic: identical input and parameters always produce
// identical chunks, which makes re-chunking idempotent.
type Splitter struct {
	// chunkSize is the maximum number of characters per chunk.
	chunkSize int

	// overlap is the number of characters shared between consecutive
	// chunks. Always strictly less than chunkSize.
	overlap int
}

// NewSplitter constructs a Splitter. chunkSize must be positive and overlap
// must satisfy 0 <= overlap < chunkSize.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("rag: chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("rag: overlap must satisfy 0 <= overlap < chunk size, got %d (chunk size %d)", overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split segments each document into chunks of at most chunkSize characters
// with exactly overlap characters shared between consecutive chunks. Chunk
// boundaries never cross documents; each chunk inherits its parent's source
// and metadata.
func (s *Splitter) Split(docs []Document) []Document {
	var chunks []Document
	for _, doc := range docs {
		for i, window := range s.windows(doc.Content) {
			chunk := Document{
				ID:       chunkID(doc.Source, i),
				Content:  window,
				Source:   doc.Source,
				Metadata: make(map[string]string, len(doc.Metadata)+1),
			}
			for k, v := range doc.Metadata {
				chunk.Metadata[k] = v
			}
			chunk.Metadata[MetadataSource] = doc.Source
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// windows returns the greedy sliding-window segmentation of text.
// Each window is at most chunkSize characters; consecutive windows overlap by
// exactly overlap characters, except that the final window may be shorter.
// Boundaries are measured in runes so multibyte text never yields an
// invalid-UTF-8 chunk.
func (s *Splitter) windows(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	step := s.chunkSize - s.overlap
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// chunkID generates a deterministic ID for a chunk from its source URI and
// position, so re-ingesting the same object yields the same IDs.
func chunkID(source string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return fmt.Sprintf("%x", h[:16])
}
