package markdown

import (
	"strings"
	"testing"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "plain text becomes a paragraph",
			source: "just an answer",
			want:   []string{"<p>just an answer</p>"},
		},
		{
			name:   "emphasis and code",
			source: "use `Fprintf` for *formatted* output",
			want:   []string{"<code>Fprintf</code>", "<em>formatted</em>"},
		},
		{
			name:   "fenced code block",
			source: "```\nfmt.Println(42)\n```",
			want:   []string{"<pre><code>", "fmt.Println(42)"},
		},
		{
			name:   "gfm table",
			source: "| a | b |\n|---|---|\n| 1 | 2 |",
			want:   []string{"<table>", "<td>1</td>"},
		},
		{
			name:   "list",
			source: "- one\n- two",
			want:   []string{"<ul>", "<li>one</li>"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToHTML(tt.source)
			if err != nil {
				t.Fatalf("ToHTML: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("output %q missing %q", got, want)
				}
			}
		})
	}
}

func TestToHTML_EmptyInput(t *testing.T) {
	got, err := ToHTML("")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if strings.TrimSpace(got) != "" {
		t.Errorf("ToHTML(\"\") = %q, want empty", got)
	}
}

func TestToHTML_RawHTMLIsNotPassedThrough(t *testing.T) {
	got, err := ToHTML("<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw script tag passed through: %q", got)
	}
}
