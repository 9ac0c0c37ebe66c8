package annotation

import (
	"context"
	"strings"
)

// PanelState is the note panel lifecycle: Closed → Viewing ⇄ Editing → Closed.
type PanelState int

const (
	PanelClosed PanelState = iota
	PanelViewing
	PanelEditing
)

func (s PanelState) String() string {
	switch s {
	case PanelViewing:
		return "viewing"
	case PanelEditing:
		return "editing"
	default:
		return "closed"
	}
}

// Panel is the note editor state. Transitions return a new value.
type Panel struct {
	State     PanelState
	NoteID    string
	Draft     string
	Timestamp float64
}

// Open shows the note list.
func (p Panel) Open() Panel {
	if p.State == PanelClosed {
		return Panel{State: PanelViewing}
	}
	return p
}

// BeginNew starts a draft anchored at timestamp.
func (p Panel) BeginNew(timestamp float64) Panel {
	return Panel{State: PanelEditing, Timestamp: timestamp}
}

// BeginEdit starts editing an existing note.
func (p Panel) BeginEdit(n Note) Panel {
	return Panel{State: PanelEditing, NoteID: n.ID, Draft: n.Content, Timestamp: n.Timestamp}
}

// SetDraft replaces the draft text while editing.
func (p Panel) SetDraft(text string) Panel {
	if p.State == PanelEditing {
		p.Draft = text
	}
	return p
}

// CanSave is false for blank drafts; the draft is kept, not discarded.
func (p Panel) CanSave() bool {
	return p.State == PanelEditing && strings.TrimSpace(p.Draft) != ""
}

// Save writes the draft through s and returns to Viewing. When saving is not
// possible the panel is returned unchanged with ErrEmptyContent.
func (p Panel) Save(ctx context.Context, s *Store) (Panel, Note, error) {
	if !p.CanSave() {
		return p, Note{}, ErrEmptyContent
	}
	var (
		note Note
		err  error
	)
	if p.NoteID == "" {
		note, err = s.AddNote(ctx, p.Draft, p.Timestamp)
	} else {
		note, err = s.EditNote(ctx, p.NoteID, p.Draft)
	}
	if err != nil {
		return p, Note{}, err
	}
	return Panel{State: PanelViewing}, note, nil
}

// Cancel drops the draft and returns to Viewing.
func (p Panel) Cancel() Panel {
	if p.State == PanelEditing {
		return Panel{State: PanelViewing}
	}
	return p
}

// Close hides the panel.
func (p Panel) Close() Panel {
	return Panel{}
}
