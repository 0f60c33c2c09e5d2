// Package markdown renders model answers to HTML for the chat UI.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// md is the shared converter. GFM covers the tables, strikethrough, and
// autolinks that chat models routinely emit.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// ToHTML converts markdown source to HTML. Plain text passes through wrapped
// in paragraph tags.
func ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("markdown: convert: %w", err)
	}
	return buf.String(), nil
}
