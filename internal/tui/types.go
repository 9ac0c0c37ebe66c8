package tui

import (
	"time"

	"github.com/csheth/lecturepad/internal/annotation"
)

type stage int

const (
	stageLoading stage = iota
	stageError
	stagePlayer
)

type bodyView int

const (
	viewChat bodyView = iota
	viewNotes
	viewSummary
)

var bodySequence = []bodyView{viewChat, viewNotes, viewSummary}

func (v bodyView) String() string {
	switch v {
	case viewNotes:
		return "Notes"
	case viewSummary:
		return "Summary"
	default:
		return "Assistant"
	}
}

const heroTagline = "Watch, annotate and ask with lecturepad."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	seekStep                  = 10.0
	rateStep                  = 0.25
	defaultTickInterval       = 250 * time.Millisecond
	notePreviewLimit          = 72
)

type composerMode int

const (
	composerModeIdle composerMode = iota
	composerModeQuestion
	composerModeNote
)

const (
	composerQuestionPlaceholder = "Ask about this lecture…"
	composerNotePlaceholder     = "Write a note for this moment, Enter to save…"
)

type playbackTickMsg time.Time

type changedMsg struct{}

type loadResultMsg struct{ err error }

type navResultMsg struct {
	action string
	err    error
}

type noteResultMsg struct {
	action string
	note   annotation.Note
	err    error
}

type bookmarkResultMsg struct {
	lecture bool
	on      bool
	err     error
}
