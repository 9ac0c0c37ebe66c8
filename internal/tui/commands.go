package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/session"
)

func loadCourseJob(s *session.Session, retry bool) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		var err error
		if retry {
			err = s.Retry(ctx)
		} else {
			err = s.Load(ctx)
		}
		return loadResultMsg{err: err}, err
	}
}

func navigateJob(s *session.Session, action string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		var err error
		switch action {
		case "next":
			err = s.Next(ctx)
		case "previous":
			err = s.Previous(ctx)
		default:
			err = s.SelectLecture(ctx, action)
		}
		return navResultMsg{action: action, err: err}, err
	}
}

func saveNoteJob(store *annotation.Store, panel annotation.Panel) jobRunner {
	action := "added"
	if panel.State == annotation.PanelEditing && panel.NoteID != "" {
		action = "updated"
	}
	return func(ctx context.Context) (tea.Msg, error) {
		_, note, err := panel.Save(ctx, store)
		return noteResultMsg{action: action, note: note, err: err}, err
	}
}

func deleteNoteJob(store *annotation.Store, note annotation.Note) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := store.DeleteNote(ctx, note.ID)
		return noteResultMsg{action: "deleted", note: note, err: err}, err
	}
}

func bookmarkTimestampJob(store *annotation.Store, timestamp float64) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		_, added, err := store.AddBookmark(ctx, timestamp)
		if err == nil && !added {
			added = !store.RemoveBookmark(ctx, timestamp)
		}
		return bookmarkResultMsg{on: added, err: err}, err
	}
}

func bookmarkLectureJob(store *annotation.Store, lectureID string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		on, err := store.ToggleLectureBookmark(ctx, lectureID)
		return bookmarkResultMsg{lecture: true, on: on, err: err}, err
	}
}

func playbackTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return playbackTickMsg(t)
	})
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64) + "x"
}

func trimmedTitle(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= 60 {
		return value
	}
	return strings.TrimSpace(string(runes[:57])) + "…"
}
