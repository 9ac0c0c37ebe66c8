package tui

import (
	"context"
	"errors"
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/store"
)

func TestJobBusReportsStartAndResult(t *testing.T) {
	bus := newJobBus(context.Background(), nil)
	boom := errors.New("boom")
	cmd := bus.Start(jobKindNote, func(context.Context) (tea.Msg, error) {
		return noteResultMsg{action: "added", err: boom}, boom
	})

	seq := reflect.ValueOf(cmd())
	if seq.Kind() != reflect.Slice || !seq.Type().ConvertibleTo(cmdSliceType) {
		t.Fatalf("expected a command sequence, got %T", seq.Interface())
	}
	var msgs []tea.Msg
	for _, step := range seq.Convert(cmdSliceType).Interface().([]tea.Cmd) {
		msgs = append(msgs, step())
	}
	if len(msgs) != 2 {
		t.Fatalf("expected start and result messages, got %d", len(msgs))
	}
	start, ok := msgs[0].(jobSignalMsg)
	if !ok || start.Snapshot.Status != jobStatusRunning || start.Snapshot.ID != "note-1" {
		t.Fatalf("unexpected start message %#v", msgs[0])
	}
	result, ok := msgs[1].(jobResultEnvelope)
	if !ok {
		t.Fatalf("unexpected result message %#v", msgs[1])
	}
	if result.Snapshot.Status != jobStatusFailed || result.Snapshot.Err != "boom" {
		t.Fatalf("unexpected result snapshot %#v", result.Snapshot)
	}
	if payload, ok := result.Payload.(noteResultMsg); !ok || !errors.Is(payload.err, boom) {
		t.Fatalf("payload not forwarded: %#v", result.Payload)
	}
}

func newLoadedNotes(t *testing.T) *annotation.Store {
	t.Helper()
	notes := annotation.New(annotation.Config{UserID: "u1", Store: store.NewMemory()})
	if err := notes.Load(context.Background(), "l1", 100); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return notes
}

func TestSaveNoteJobActions(t *testing.T) {
	notes := newLoadedNotes(t)
	ctx := context.Background()

	panel := annotation.Panel{}.Open().BeginNew(12).SetDraft("first")
	msg, err := saveNoteJob(notes, panel)(ctx)
	if err != nil {
		t.Fatalf("save error = %v", err)
	}
	added := msg.(noteResultMsg)
	if added.action != "added" || added.note.Timestamp != 12 {
		t.Fatalf("unexpected add result %#v", added)
	}

	panel = annotation.Panel{}.Open().BeginEdit(added.note).SetDraft("first, edited")
	msg, err = saveNoteJob(notes, panel)(ctx)
	if err != nil {
		t.Fatalf("edit error = %v", err)
	}
	if updated := msg.(noteResultMsg); updated.action != "updated" || updated.note.Content != "first, edited" {
		t.Fatalf("unexpected edit result %#v", updated)
	}

	if _, err := deleteNoteJob(notes, added.note)(ctx); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if len(notes.Notes()) != 0 {
		t.Fatal("note should be deleted")
	}
}

func TestBookmarkTimestampJobToggles(t *testing.T) {
	notes := newLoadedNotes(t)
	ctx := context.Background()

	msg, err := bookmarkTimestampJob(notes, 30)(ctx)
	if err != nil || !msg.(bookmarkResultMsg).on {
		t.Fatalf("first toggle should add, got %#v err=%v", msg, err)
	}
	msg, err = bookmarkTimestampJob(notes, 30.4)(ctx)
	if err != nil || msg.(bookmarkResultMsg).on {
		t.Fatalf("second toggle in the same second should remove, got %#v err=%v", msg, err)
	}
	if len(notes.Bookmarks()) != 0 {
		t.Fatalf("unexpected bookmarks %#v", notes.Bookmarks())
	}
}
