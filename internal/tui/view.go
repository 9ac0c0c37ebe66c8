package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/lecturepad/internal/playback"
)

var (
	titleStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Underline(true)
	sectionHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	transcriptLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	timestampStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))

	heroAccentColor        = lipgloss.Color("#ff8c00")
	heroEmberColor         = lipgloss.Color("#2b1400")
	heroTextColor          = lipgloss.Color("#fff4d0")
	heroSecondaryTextColor = lipgloss.Color("#ffb347")

	heroTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	heroBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(heroAccentColor).Foreground(heroTextColor).Background(heroEmberColor).Padding(0, 2)
	taglineStyle     = lipgloss.NewStyle().Foreground(heroSecondaryTextColor).Italic(true)
	statusBarStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(1, 2)
	helpBoxStyle     = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(1, 2)
	currentLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	tabStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4")).Padding(0, 1)
	timelineStyle    = lipgloss.NewStyle().Foreground(heroAccentColor)

	codeBlockStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c"))
	quoteStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	strongStyle    = lipgloss.NewStyle().Bold(true)
	emphasisStyle  = lipgloss.NewStyle().Italic(true)
	codeSpanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166"))
)

func (m *model) View() string {
	switch m.stage {
	case stageLoading:
		return joinNonEmpty([]string{
			m.heroView(),
			helperStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), m.infoMessage)),
		})
	case stageError:
		return joinNonEmpty([]string{
			m.heroView(),
			errorStyle.Render("Could not load the course: " + m.errorMessage),
			helperStyle.Render(m.infoMessage),
		})
	default:
		return m.viewPlayer()
	}
}

func (m *model) viewPlayer() string {
	parts := []string{
		m.heroView(),
		m.transportView(),
		m.tabsView(),
		m.viewport.View(),
	}
	if m.composer.Focused() {
		parts = append(parts, m.composerPanel())
	}
	parts = append(parts, m.statusView())
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		message := m.infoMessage
		if len(m.running) > 0 {
			message = fmt.Sprintf("%s %s", m.spinner.View(), message)
		}
		parts = append(parts, helperStyle.Render(message))
	}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView(), m.helpView())
	}
	return joinNonEmpty(parts)
}

func (m *model) heroView() string {
	c, ok := m.cfg.Session.Course()
	if !ok {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			heroTitleStyle.Render("lecturepad"),
			taglineStyle.Render(heroTagline),
		)
	}
	lines := []string{heroTitleStyle.Render(wordwrap.String(c.Title, 60))}
	if c.Instructor != "" {
		lines = append(lines, helperStyle.Render("Instructor: "+c.Instructor))
	}
	if lecture, ok := m.cfg.Session.Current(); ok {
		lectures := m.cfg.Session.Lectures()
		pos := 0
		for i, l := range lectures {
			if l.ID == lecture.ID {
				pos = i + 1
				break
			}
		}
		label := fmt.Sprintf("Lecture %d/%d · %s", pos, len(lectures), trimmedTitle(lecture.Title))
		lines = append(lines, label+m.lectureBadges(lecture.ID))
	}
	return heroBoxStyle.Render(strings.Join(lines, "\n"))
}

func (m *model) lectureBadges(lectureID string) string {
	var badges []string
	if rec, ok := m.cfg.Progress.Record(lectureID); ok {
		if rec.Completed {
			badges = append(badges, "✓ done")
		} else if rec.Percentage > 0 {
			badges = append(badges, fmt.Sprintf("%.0f%%", rec.Percentage))
		}
	}
	if m.lectureBookmarked {
		badges = append(badges, "★")
	}
	if len(badges) == 0 {
		return ""
	}
	return "  " + strings.Join(badges, "  ")
}

func (m *model) transportView() string {
	lecture, ok := m.cfg.Session.Current()
	if !ok {
		return ""
	}
	if !lecture.HasMedia() || lecture.IsPDFResource() {
		return helperStyle.Render("Reading material · no playback for this lecture.")
	}
	snap := m.cfg.Player.Snapshot()
	bar := timelineStyle.Render(renderTimeline(m.layout.timelineWidth, snap.Position, snap.Duration, m.cfg.Notes.Markers()))
	status := []string{
		fmt.Sprintf("%s / %s", formatClock(snap.Position), formatClock(snap.Duration)),
		stateGlyph(snap.State) + " " + snap.State.String(),
		formatRate(snap.Rate),
	}
	if snap.Muted {
		status = append(status, "muted")
	}
	if snap.Buffering {
		status = append(status, "buffering…")
	}
	return bar + "\n" + helperStyle.Render(strings.Join(status, "  "))
}

func stateGlyph(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return "▶"
	case playback.StatePaused, playback.StateReady:
		return "⏸"
	case playback.StateEnded:
		return "■"
	default:
		return "…"
	}
}

func (m *model) tabsView() string {
	tabs := make([]string, 0, len(bodySequence))
	for _, v := range bodySequence {
		label := v.String()
		if v == viewNotes {
			label = fmt.Sprintf("%s (%d)", label, len(m.cfg.Notes.Notes()))
		}
		if v == m.body {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *model) composerPanel() string {
	title := "Ask the assistant"
	if m.composerMode == composerModeNote {
		title = fmt.Sprintf("Note at %s", formatClock(m.panel.Timestamp))
		if m.panel.NoteID != "" {
			title = "Edit note: " + previewText(m.panel.Draft, notePreviewLimit)
		}
	}
	return joinNonEmpty([]string{
		sectionHeaderStyle.Render(title),
		m.composer.View(),
		helperStyle.Render("Enter: save • Esc: cancel"),
	})
}

func (m *model) statusView() string {
	stats := []string{}
	if m.cfg.Chat.Streaming() {
		stats = append(stats, m.spinner.View()+" assistant replying (x to stop)")
	} else {
		stats = append(stats, fmt.Sprintf("Q&A %d", len(m.cfg.Chat.Messages())/2))
	}
	stats = append(stats,
		fmt.Sprintf("Notes %d", len(m.cfg.Notes.Notes())),
		fmt.Sprintf("Bookmarks %d", len(m.cfg.Notes.Bookmarks())),
		"? help",
	)
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"space", "Play/pause"},
		{"←/→", "Seek 10s"},
		{"n/p", "Next/prev lecture"},
		{"a", "Add note"},
		{"e/d", "Edit/delete note"},
		{"b/B", "Bookmark moment/lecture"},
		{"c", "Toggle complete"},
		{"q", "Ask question"},
		{"1-4", "Quick question"},
		{"tab", "Switch view"},
		{"</>", "Speed"},
		{"m", "Mute"},
	}
	rows := []string{sectionHeaderStyle.Render("Player Cheatsheet")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description + "  ")
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func (m *model) helpView() string {
	lines := []string{
		sectionHeaderStyle.Render("Working with a lecture"),
		helperStyle.Render("• progress is saved as you watch; finishing a lecture moves on to the next one after a short pause."),
		helperStyle.Render("• in the Notes view use j / k to select a note and Enter to jump the player to it."),
		helperStyle.Render("• x stops a reply that is still streaming; the partial answer is kept."),
		helperStyle.Render("• Esc closes this help or quits, Ctrl+C always quits."),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}
