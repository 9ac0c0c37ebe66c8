// Package markdown parses the subset of markdown the assistant produces and
// renders it through a Renderer.
package markdown

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Block is a top-level node. The set is closed: Heading, Paragraph, List,
// Code and Blockquote.
type Block interface{ isBlock() }

// Inline is a span inside a block: Text, Emphasis or CodeSpan.
type Inline interface{ isInline() }

type Heading struct {
	Level   int
	Inlines []Inline
}

type Paragraph struct{ Inlines []Inline }

type List struct {
	Ordered bool
	Items   [][]Inline
}

type Code struct {
	Lang string
	Text string
}

type Blockquote struct{ Inlines []Inline }

type Text struct{ Value string }

// Emphasis is *em* or, when Strong, **strong**.
type Emphasis struct {
	Strong bool
	Value  string
}

type CodeSpan struct{ Value string }

func (Heading) isBlock()    {}
func (Paragraph) isBlock()  {}
func (List) isBlock()       {}
func (Code) isBlock()       {}
func (Blockquote) isBlock() {}

func (Text) isInline()     {}
func (Emphasis) isInline() {}
func (CodeSpan) isInline() {}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	listRe    = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+(.*)$`)
	quoteRe   = regexp.MustCompile(`^>\s?(.*)$`)
	fenceRe   = regexp.MustCompile("^```\\s*([\\w+-]*)\\s*$")
)

// Parse splits src into blocks.
func Parse(src string) []Block {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	var (
		blocks []Block
		para   []string
		quote  []string
		list   *List
	)
	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, Paragraph{Inlines: ParseInline(strings.Join(para, " "))})
			para = nil
		}
		if len(quote) > 0 {
			blocks = append(blocks, Blockquote{Inlines: ParseInline(strings.Join(quote, " "))})
			quote = nil
		}
		if list != nil {
			blocks = append(blocks, *list)
			list = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		trimmed := strings.TrimSpace(line)

		if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			var body []string
			for i++; i < len(lines); i++ {
				if strings.TrimSpace(lines[i]) == "```" {
					break
				}
				body = append(body, lines[i])
			}
			blocks = append(blocks, Code{Lang: m[1], Text: strings.Join(body, "\n")})
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			blocks = append(blocks, Heading{Level: len(m[1]), Inlines: ParseInline(strings.TrimRight(m[2], " #"))})
			continue
		}
		if m := quoteRe.FindStringSubmatch(trimmed); m != nil {
			if len(para) > 0 || list != nil {
				flush()
			}
			quote = append(quote, strings.TrimSpace(m[1]))
			continue
		}
		if m := listRe.FindStringSubmatch(line); m != nil {
			ordered := unicode.IsDigit(rune(m[1][0]))
			if list == nil || list.Ordered != ordered {
				flush()
				list = &List{Ordered: ordered}
			}
			list.Items = append(list.Items, ParseInline(m[2]))
			continue
		}
		if list != nil && strings.HasPrefix(line, "  ") && len(list.Items) > 0 {
			last := len(list.Items) - 1
			list.Items[last] = append(list.Items[last], Text{Value: " "})
			list.Items[last] = append(list.Items[last], ParseInline(trimmed)...)
			continue
		}
		if len(quote) > 0 || list != nil {
			flush()
		}
		para = append(para, trimmed)
	}
	flush()
	return blocks
}

// ParseInline splits s into text, emphasis and code spans. Unclosed markers
// are kept as text.
func ParseInline(s string) []Inline {
	var (
		out []Inline
		buf strings.Builder
	)
	emitText := func() {
		if buf.Len() > 0 {
			out = append(out, Text{Value: buf.String()})
			buf.Reset()
		}
	}
	for i := 0; i < len(s); {
		switch {
		case s[i] == '`':
			if end := strings.IndexByte(s[i+1:], '`'); end >= 0 {
				emitText()
				out = append(out, CodeSpan{Value: s[i+1 : i+1+end]})
				i += end + 2
				continue
			}
		case strings.HasPrefix(s[i:], "**") || strings.HasPrefix(s[i:], "__"):
			marker := s[i : i+2]
			if end := strings.Index(s[i+2:], marker); end > 0 {
				emitText()
				out = append(out, Emphasis{Strong: true, Value: s[i+2 : i+2+end]})
				i += end + 4
				continue
			}
		case s[i] == '*' || (s[i] == '_' && wordBoundaryBefore(s, i)):
			marker := s[i : i+1]
			if end := strings.Index(s[i+1:], marker); end > 0 && s[i+1] != ' ' {
				emitText()
				out = append(out, Emphasis{Value: s[i+1 : i+1+end]})
				i += end + 2
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		buf.WriteRune(r)
		i += size
	}
	emitText()
	return out
}

func wordBoundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Renderer produces output for each node kind.
type Renderer interface {
	Heading(level int, text string) string
	Paragraph(text string) string
	List(ordered bool, items []string) string
	Code(lang, text string) string
	Blockquote(text string) string
	Text(s string) string
	Emphasis(strong bool, s string) string
	CodeSpan(s string) string
}

// Render walks blocks and joins the rendered output with blank lines.
func Render(blocks []Block, r Renderer) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch node := b.(type) {
		case Heading:
			parts = append(parts, r.Heading(node.Level, renderInlines(node.Inlines, r)))
		case Paragraph:
			parts = append(parts, r.Paragraph(renderInlines(node.Inlines, r)))
		case List:
			items := make([]string, len(node.Items))
			for i, item := range node.Items {
				items[i] = renderInlines(item, r)
			}
			parts = append(parts, r.List(node.Ordered, items))
		case Code:
			parts = append(parts, r.Code(node.Lang, node.Text))
		case Blockquote:
			parts = append(parts, r.Blockquote(renderInlines(node.Inlines, r)))
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderInlines(inlines []Inline, r Renderer) string {
	var b strings.Builder
	for _, in := range inlines {
		switch node := in.(type) {
		case Text:
			b.WriteString(r.Text(node.Value))
		case Emphasis:
			b.WriteString(r.Emphasis(node.Strong, node.Value))
		case CodeSpan:
			b.WriteString(r.CodeSpan(node.Value))
		}
	}
	return b.String()
}

// PlainRenderer renders markup-free text.
type PlainRenderer struct{}

func (PlainRenderer) Heading(_ int, text string) string { return text }

func (PlainRenderer) Paragraph(text string) string { return text }

func (PlainRenderer) List(ordered bool, items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		bullet := "-"
		if ordered {
			bullet = strconv.Itoa(i+1) + "."
		}
		lines[i] = bullet + " " + item
	}
	return strings.Join(lines, "\n")
}

func (PlainRenderer) Code(_ string, text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

func (PlainRenderer) Blockquote(text string) string { return "| " + text }

func (PlainRenderer) Text(s string) string { return s }

func (PlainRenderer) Emphasis(_ bool, s string) string { return s }

func (PlainRenderer) CodeSpan(s string) string { return s }
