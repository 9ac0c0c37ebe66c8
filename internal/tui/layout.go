package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/chat"
	"github.com/csheth/lecturepad/internal/markdown"
	"github.com/csheth/lecturepad/internal/summary"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	timelineWidth  int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 16,
		timelineWidth:  80,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	l.timelineWidth = innerWidth
	const chrome = 12
	usable := height - chrome
	if usable < 6 {
		usable = 6
	}
	l.viewportHeight = usable
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

// renderTimeline draws the progress bar with note (◆) and bookmark (▲)
// markers and the playhead (●). Notes win over bookmarks on the same cell.
func renderTimeline(width int, position, duration float64, markers []annotation.Marker) string {
	if width < 2 {
		width = 2
	}
	cells := make([]rune, width)
	head := cellFor(annotation.MarkerPosition(position, duration), width)
	for i := range cells {
		if i < head {
			cells[i] = '━'
		} else {
			cells[i] = '─'
		}
	}
	for _, mk := range markers {
		idx := cellFor(mk.Position, width)
		switch mk.Kind {
		case annotation.MarkerNote:
			cells[idx] = '◆'
		case annotation.MarkerBookmark:
			if cells[idx] != '◆' {
				cells[idx] = '▲'
			}
		}
	}
	cells[head] = '●'
	return string(cells)
}

func cellFor(position float64, width int) int {
	idx := int(math.Round(position * float64(width-1)))
	if idx < 0 {
		return 0
	}
	if idx >= width {
		return width - 1
	}
	return idx
}

func (m *model) writeTranscript(cb *contentBuilder) {
	msgs := m.cfg.Chat.Messages()
	wrap := m.wrapWidth(4)
	if len(msgs) == 0 {
		cb.WriteString(helperStyle.Render("Ask about this lecture with q, or pick a quick question:"))
		cb.WriteRune('\n')
	}
	for idx, msg := range msgs {
		label := "You"
		if msg.Role == chat.RoleAssistant {
			label = "Assistant"
		}
		cb.WriteString(transcriptLabelStyle.Render(label))
		cb.WriteRune('\n')
		var body string
		switch {
		case msg.Role == chat.RoleUser:
			body = wordwrap.String(msg.Content, wrap)
		case msg.Content == "" && msg.Streaming:
			body = helperStyle.Render(m.spinner.View() + " Thinking…")
		default:
			body = markdown.Render(markdown.Parse(msg.Content), termRenderer{width: wrap})
			if msg.Streaming {
				body += " " + m.spinner.View()
			}
		}
		cb.WriteString(indentMultiline(body, "  "))
		cb.WriteRune('\n')
		if idx < len(msgs)-1 {
			cb.WriteRune('\n')
		}
	}
	if len(msgs) == 0 || !m.cfg.Chat.Streaming() {
		if len(msgs) > 0 {
			cb.WriteRune('\n')
		}
		for i, q := range m.cfg.Session.QuickQuestions() {
			line := fmt.Sprintf(" %d) %s", i+1, q.Question)
			cb.WriteString(helperStyle.Render(wordwrap.String(line, wrap)))
			cb.WriteRune('\n')
		}
	}
}

func (m *model) writeNotes(cb *contentBuilder) {
	notes := m.cfg.Notes.Notes()
	if len(notes) == 0 {
		cb.WriteString(helperStyle.Render("No notes yet. Press a to note the current moment."))
		cb.WriteRune('\n')
	}
	wrap := m.wrapWidth(12)
	for idx, note := range notes {
		stamp := timestampStyle.Render("[" + formatClock(note.Timestamp) + "]")
		body := indentMultiline(wordwrap.String(note.Content, wrap), "          ")
		body = strings.TrimLeft(body, " ")
		line := fmt.Sprintf("  %s %s", stamp, body)
		if idx == m.noteCursor {
			line = currentLineStyle.Render("▸ " + strings.TrimLeft(line, " "))
		}
		cb.WriteString(line)
		cb.WriteRune('\n')
	}
	if bms := m.cfg.Notes.Bookmarks(); len(bms) > 0 {
		cb.WriteRune('\n')
		cb.WriteString(sectionHeaderStyle.Render("Bookmarks"))
		cb.WriteRune('\n')
		stamps := make([]string, len(bms))
		for i, bm := range bms {
			stamps[i] = formatClock(bm.Timestamp)
		}
		cb.WriteString(helperStyle.Render("  " + strings.Join(stamps, "  ")))
		cb.WriteRune('\n')
	}
}

func (m *model) writeSummary(cb *contentBuilder) {
	s := m.cfg.Session.Summary()
	if s.Empty() {
		cb.WriteString(helperStyle.Render("This lecture has no summary."))
		cb.WriteRune('\n')
		return
	}
	wrap := m.wrapWidth(4)
	writeSummarySections(cb, s, wrap)
}

func writeSummarySections(cb *contentBuilder, s summary.Structured, wrap int) {
	writeText := func(title, text string) {
		if text == "" {
			return
		}
		if cb.Line() > 0 {
			cb.WriteRune('\n')
		}
		cb.WriteString(sectionHeaderStyle.Render(title))
		cb.WriteRune('\n')
		cb.WriteString(indentMultiline(wordwrap.String(text, wrap), "  "))
		cb.WriteRune('\n')
	}
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		if cb.Line() > 0 {
			cb.WriteRune('\n')
		}
		cb.WriteString(sectionHeaderStyle.Render(title))
		cb.WriteRune('\n')
		for _, item := range items {
			cb.WriteString(" • ")
			cb.WriteString(indentMultiline(wordwrap.String(item, wrap-3), "   ")[3:])
			cb.WriteRune('\n')
		}
	}
	writeText("Main Topic", s.MainTopic)
	writeList("Key Concepts", s.KeyConcepts)
	writeList("Learning Objectives", s.LearningObjectives)
	writeList("Important Details", s.ImportantDetails)
	writeText("Conclusion", s.Conclusion)
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func previewText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
