package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/chat"
	"github.com/csheth/lecturepad/internal/logger"
	"github.com/csheth/lecturepad/internal/playback"
	"github.com/csheth/lecturepad/internal/progress"
	"github.com/csheth/lecturepad/internal/session"
)

// Config wires the session components into the program. Media is optional;
// without it the player never advances on its own.
type Config struct {
	Session  *session.Session
	Player   *playback.Controller
	Media    *playback.SimulatedMedia
	Notes    *annotation.Store
	Chat     *chat.Engine
	Progress *progress.Tracker
	Log      *logger.Logger
	Context  context.Context

	TickInterval time.Duration
}

// New returns a tea.Model ready to be mounted into a Program.
func New(cfg Config) tea.Model {
	return newModel(cfg)
}

type model struct {
	cfg  Config
	log  *logger.Logger
	jobs *jobBus

	stage  stage
	body   bodyView
	layout pageLayout

	composer     textinput.Model
	composerMode composerMode
	panel        annotation.Panel
	spinner      spinner.Model
	spinning     bool
	viewport     viewport.Model

	changes  chan struct{}
	running  map[string]jobSnapshot
	lastTick time.Time

	lectureID         string
	noteCursor        int
	lectureBookmarked bool
	helpVisible       bool
	infoMessage       string
	errorMessage      string
}

func newModel(cfg Config) *model {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	composer := textinput.New()
	composer.CharLimit = 500
	composer.Width = 70

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 16)
	vp.MouseWheelEnabled = true

	m := &model{
		cfg:         cfg,
		log:         log.With("component", "tui"),
		jobs:        newJobBus(cfg.Context, log),
		stage:       stageLoading,
		layout:      newPageLayout(),
		composer:    composer,
		spinner:     spin,
		viewport:    vp,
		changes:     make(chan struct{}, 1),
		running:     map[string]jobSnapshot{},
		infoMessage: "Loading course…",
	}
	signal := func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}
	cfg.Session.Subscribe(signal)
	cfg.Chat.Subscribe(signal)
	return m
}

func (m *model) Init() tea.Cmd {
	m.spinning = true
	return tea.Batch(
		m.jobs.Start(jobKindLoad, loadCourseJob(m.cfg.Session, false)),
		waitForChange(m.changes),
		playbackTick(m.cfg.TickInterval),
		m.spinner.Tick,
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.composer.Width = m.layout.viewportWidth - 4
		m.refreshBody()
		return m, nil
	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshBody()
		return m, cmd
	case playbackTickMsg:
		now := time.Time(msg)
		if m.cfg.Media != nil && !m.lastTick.IsZero() {
			m.cfg.Media.Advance(now.Sub(m.lastTick))
		}
		m.lastTick = now
		return m, playbackTick(m.cfg.TickInterval)
	case changedMsg:
		if lecture, ok := m.cfg.Session.Current(); ok && m.stage == stagePlayer && lecture.ID != m.lectureID {
			m.afterLectureChange()
		}
		m.refreshBody()
		return m, tea.Batch(waitForChange(m.changes), m.ensureSpinner())
	case jobSignalMsg:
		m.running[msg.Snapshot.ID] = msg.Snapshot
		return m, m.ensureSpinner()
	case jobResultEnvelope:
		delete(m.running, msg.Snapshot.ID)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case loadResultMsg:
		if msg.err != nil {
			m.stage = stageError
			m.errorMessage = msg.err.Error()
			m.infoMessage = "Press r to retry, Esc to quit."
			return m, nil
		}
		m.stage = stagePlayer
		m.errorMessage = ""
		m.afterLectureChange()
		if c, ok := m.cfg.Session.Course(); ok {
			m.infoMessage = fmt.Sprintf("Loaded %s.", trimmedTitle(c.Title))
		}
		return m, nil
	case navResultMsg:
		if msg.err != nil {
			if errors.Is(msg.err, session.ErrNoMoreLectures) {
				m.infoMessage = "No more lectures in that direction."
				return m, nil
			}
			if errors.Is(msg.err, session.ErrLectureLocked) {
				m.infoMessage = "That lecture needs an enrollment."
				return m, nil
			}
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.afterLectureChange()
		return m, nil
	case noteResultMsg:
		return m.handleNoteResult(msg)
	case bookmarkResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("bookmark failed: %v", msg.err)
			return m, nil
		}
		switch {
		case msg.lecture:
			m.lectureBookmarked = msg.on
			m.infoMessage = "Lecture bookmark removed."
			if msg.on {
				m.infoMessage = "Lecture bookmarked."
			}
		case msg.on:
			m.infoMessage = "Bookmark added."
		default:
			m.infoMessage = "Bookmark removed."
		}
		m.refreshBody()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) handleNoteResult(msg noteResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("note not saved: %v", msg.err)
		if m.panel.State == annotation.PanelEditing {
			m.openComposer(composerModeNote, m.panel.Draft)
		}
		return m, nil
	}
	m.errorMessage = ""
	if msg.action != "deleted" {
		m.panel = m.panel.Cancel()
	}
	m.infoMessage = fmt.Sprintf("Note %s at %s.", msg.action, formatClock(msg.note.Timestamp))
	if n := len(m.cfg.Notes.Notes()); m.noteCursor >= n {
		m.noteCursor = n - 1
	}
	if m.noteCursor < 0 {
		m.noteCursor = 0
	}
	m.refreshBody()
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.composer.Focused() {
		return m.processComposerKey(key)
	}
	switch m.stage {
	case stageLoading:
		if key.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		return m, nil
	case stageError:
		switch key.String() {
		case "r":
			m.stage = stageLoading
			m.errorMessage = ""
			m.infoMessage = "Retrying…"
			return m, m.jobs.Start(jobKindLoad, loadCourseJob(m.cfg.Session, true))
		case "esc", "q":
			return m, tea.Quit
		}
		return m, nil
	}
	return m.handlePlayerKey(key)
}

func (m *model) handlePlayerKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := m.cfg.Context
	player := m.cfg.Player
	switch key.String() {
	case "esc":
		if m.helpVisible {
			m.helpVisible = false
			return m, nil
		}
		return m, tea.Quit
	case "?":
		m.helpVisible = !m.helpVisible
	case " ":
		player.Toggle()
	case "left", "h":
		player.SeekBy(-seekStep)
	case "right", "l":
		player.SeekBy(seekStep)
	case "<":
		m.infoMessage = "Speed " + formatRate(player.SetRate(player.Snapshot().Rate-rateStep))
	case ">":
		m.infoMessage = "Speed " + formatRate(player.SetRate(player.Snapshot().Rate+rateStep))
	case "m":
		player.SetMuted(!player.Snapshot().Muted)
	case "n":
		if !m.cfg.Session.CanGoNext() {
			m.infoMessage = "This is the last lecture."
			return m, nil
		}
		return m, m.jobs.Start(jobKindNavigate, navigateJob(m.cfg.Session, "next"))
	case "p":
		if !m.cfg.Session.CanGoPrevious() {
			m.infoMessage = "This is the first lecture."
			return m, nil
		}
		return m, m.jobs.Start(jobKindNavigate, navigateJob(m.cfg.Session, "previous"))
	case "a":
		m.panel = m.panel.Open().BeginNew(player.Position())
		m.openComposer(composerModeNote, "")
		m.infoMessage = fmt.Sprintf("New note at %s.", formatClock(m.panel.Timestamp))
	case "e":
		note, ok := m.selectedNote()
		if !ok {
			m.infoMessage = "Select a note in the Notes view first."
			return m, nil
		}
		m.panel = m.panel.Open().BeginEdit(note)
		m.openComposer(composerModeNote, note.Content)
	case "d":
		note, ok := m.selectedNote()
		if !ok {
			return m, nil
		}
		return m, m.jobs.Start(jobKindNote, deleteNoteJob(m.cfg.Notes, note))
	case "enter":
		if note, ok := m.selectedNote(); ok {
			annotation.JumpToNote(player, note.Timestamp)
			m.infoMessage = fmt.Sprintf("Jumped to %s.", formatClock(note.Timestamp))
		}
	case "b":
		return m, m.jobs.Start(jobKindBookmark, bookmarkTimestampJob(m.cfg.Notes, player.Position()))
	case "B":
		lecture, ok := m.cfg.Session.Current()
		if !ok {
			return m, nil
		}
		return m, m.jobs.Start(jobKindBookmark, bookmarkLectureJob(m.cfg.Notes, lecture.ID))
	case "c":
		rec, err := m.cfg.Session.ToggleComplete()
		if err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		if rec.Completed {
			m.infoMessage = "Marked complete. Moving on shortly…"
		} else {
			m.infoMessage = "Marked incomplete."
		}
	case "q":
		m.body = viewChat
		m.openComposer(composerModeQuestion, "")
	case "x":
		m.cfg.Chat.Cancel()
	case "1", "2", "3", "4":
		idx := int(key.Runes[0] - '1')
		if _, err := m.cfg.Session.AskQuick(ctx, idx); err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		m.body = viewChat
		m.refreshBody()
		m.viewport.GotoBottom()
		return m, m.ensureSpinner()
	case "tab":
		m.body = bodySequence[(int(m.body)+1)%len(bodySequence)]
		m.viewport.SetYOffset(0)
	case "s":
		m.body = viewSummary
		m.viewport.SetYOffset(0)
	case "up", "k":
		if m.body == viewNotes {
			m.moveNoteCursor(-1)
		} else {
			m.viewport.LineUp(1)
		}
	case "down", "j":
		if m.body == viewNotes {
			m.moveNoteCursor(1)
		} else {
			m.viewport.LineDown(1)
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}
	m.refreshBody()
	return m, nil
}

func (m *model) processComposerKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		if m.composerMode == composerModeNote {
			m.panel = m.panel.Cancel()
		}
		m.closeComposer()
		m.infoMessage = "Cancelled."
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.composer.Value())
		switch m.composerMode {
		case composerModeQuestion:
			if value == "" {
				return m, nil
			}
			m.closeComposer()
			if _, err := m.cfg.Session.Ask(m.cfg.Context, value); err != nil {
				m.errorMessage = err.Error()
				return m, nil
			}
			m.errorMessage = ""
			m.refreshBody()
			m.viewport.GotoBottom()
			return m, m.ensureSpinner()
		case composerModeNote:
			m.panel = m.panel.SetDraft(value)
			if !m.panel.CanSave() {
				m.errorMessage = "Note is empty."
				return m, nil
			}
			m.closeComposer()
			m.errorMessage = ""
			m.body = viewNotes
			return m, m.jobs.Start(jobKindNote, saveNoteJob(m.cfg.Notes, m.panel))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(key)
	return m, cmd
}

func (m *model) openComposer(mode composerMode, value string) {
	m.composerMode = mode
	switch mode {
	case composerModeQuestion:
		m.composer.Placeholder = composerQuestionPlaceholder
	case composerModeNote:
		m.composer.Placeholder = composerNotePlaceholder
	}
	m.composer.SetValue(value)
	m.composer.Focus()
}

func (m *model) closeComposer() {
	m.composerMode = composerModeIdle
	m.composer.SetValue("")
	m.composer.Blur()
}

func (m *model) afterLectureChange() {
	m.noteCursor = 0
	m.viewport.SetYOffset(0)
	m.lectureBookmarked = false
	if lecture, ok := m.cfg.Session.Current(); ok {
		m.lectureID = lecture.ID
		on, err := m.cfg.Notes.IsLectureBookmarked(m.cfg.Context, lecture.ID)
		if err != nil {
			m.log.Warn("lecture bookmark lookup failed", "lecture_id", lecture.ID, "error", err)
		}
		m.lectureBookmarked = on
		m.infoMessage = fmt.Sprintf("Now on %s.", trimmedTitle(lecture.Title))
	}
	m.refreshBody()
}

func (m *model) selectedNote() (annotation.Note, bool) {
	if m.body != viewNotes {
		return annotation.Note{}, false
	}
	notes := m.cfg.Notes.Notes()
	if m.noteCursor < 0 || m.noteCursor >= len(notes) {
		return annotation.Note{}, false
	}
	return notes[m.noteCursor], true
}

func (m *model) moveNoteCursor(delta int) {
	n := len(m.cfg.Notes.Notes())
	if n == 0 {
		m.noteCursor = 0
		return
	}
	m.noteCursor += delta
	if m.noteCursor < 0 {
		m.noteCursor = 0
	}
	if m.noteCursor >= n {
		m.noteCursor = n - 1
	}
}

func (m *model) busy() bool {
	return len(m.running) > 0 || m.cfg.Chat.Streaming()
}

func (m *model) ensureSpinner() tea.Cmd {
	if m.spinning || !m.busy() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *model) refreshBody() {
	if m.stage != stagePlayer {
		m.viewport.SetContent("")
		return
	}
	cb := &contentBuilder{}
	switch m.body {
	case viewNotes:
		m.writeNotes(cb)
	case viewSummary:
		m.writeSummary(cb)
	default:
		atBottom := m.viewport.AtBottom()
		m.writeTranscript(cb)
		m.viewport.SetContent(strings.TrimRight(cb.String(), "\n"))
		if atBottom && m.cfg.Chat.Streaming() {
			m.viewport.GotoBottom()
		}
		return
	}
	m.viewport.SetContent(strings.TrimRight(cb.String(), "\n"))
}
