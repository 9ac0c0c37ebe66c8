package tui

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/muesli/reflow/wordwrap"
)

// termRenderer renders assistant markdown with lipgloss styles, wrapping
// prose to width.
type termRenderer struct {
	width int
}

func (r termRenderer) wrap(text string, indent int) string {
	w := r.width - indent
	if w < 10 {
		w = 10
	}
	return wordwrap.String(text, w)
}

func (r termRenderer) Heading(level int, text string) string {
	if level <= 1 {
		return titleStyle.Render(text)
	}
	return sectionHeaderStyle.Render(text)
}

func (r termRenderer) Paragraph(text string) string {
	return r.wrap(text, 0)
}

func (r termRenderer) List(ordered bool, items []string) string {
	lines := make([]string, 0, len(items))
	for i, item := range items {
		bullet := "•"
		if ordered {
			bullet = strconv.Itoa(i+1) + "."
		}
		prefix := bullet + " "
		width := utf8.RuneCountInString(prefix)
		pad := strings.Repeat(" ", width)
		body := indentMultiline(r.wrap(item, width), pad)
		lines = append(lines, prefix+strings.TrimPrefix(body, pad))
	}
	return strings.Join(lines, "\n")
}

func (r termRenderer) Code(_ string, text string) string {
	return codeBlockStyle.Render(indentMultiline(text, "  "))
}

func (r termRenderer) Blockquote(text string) string {
	return quoteStyle.Render(indentMultiline(r.wrap(text, 2), "│ "))
}

func (r termRenderer) Text(s string) string { return s }

func (r termRenderer) Emphasis(strong bool, s string) string {
	if strong {
		return strongStyle.Render(s)
	}
	return emphasisStyle.Render(s)
}

func (r termRenderer) CodeSpan(s string) string { return codeSpanStyle.Render(s) }
