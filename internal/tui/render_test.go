package tui

import (
	"strings"
	"testing"

	"github.com/csheth/lecturepad/internal/markdown"
)

func TestTermRendererRendersBlocks(t *testing.T) {
	src := "## Setup\n\nRun the **server** now.\n\n- one\n- two\n\n1. first\n2. second\n\n```go\nfmt.Println()\n```\n\n> quoted"
	out := markdown.Render(markdown.Parse(src), termRenderer{width: 60})
	for _, want := range []string{"Setup", "Run the ", "server", "• one", "• two", "1. first", "2. second", "  fmt.Println()", "│ ", "quoted"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestTermRendererWrapsParagraphs(t *testing.T) {
	text := strings.Repeat("goroutine scheduler ", 10)
	out := termRenderer{width: 24}.Paragraph(strings.TrimSpace(text))
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 24 {
			t.Fatalf("line exceeds width: %q", line)
		}
	}
	if !strings.Contains(out, "\n") {
		t.Fatal("expected paragraph to wrap")
	}
}

func TestTermRendererIndentsListContinuation(t *testing.T) {
	item := strings.Repeat("word ", 12)
	out := termRenderer{width: 20}.List(false, []string{strings.TrimSpace(item)})
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected wrapped list item, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "• ") {
		t.Fatalf("first line missing bullet: %q", lines[0])
	}
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "  ") {
			t.Fatalf("continuation not indented: %q", line)
		}
	}
}
