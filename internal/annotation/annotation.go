// Package annotation manages timestamp-anchored notes and bookmarks for the
// active lecture along with the per-user lecture bookmark set.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/lecturepad/internal/logger"
	"github.com/csheth/lecturepad/internal/playback"
	"github.com/csheth/lecturepad/internal/retry"
	"github.com/csheth/lecturepad/internal/store"
)

var (
	ErrEmptyContent = errors.New("annotation: note content is empty")
	ErrNoteNotFound = errors.New("annotation: note not found")
	ErrNoLecture    = errors.New("annotation: no lecture loaded")
)

// Note is a user-authored annotation anchored to a lecture timestamp.
type Note struct {
	ID        string    `json:"id"`
	LectureID string    `json:"lectureId"`
	Content   string    `json:"content"`
	Timestamp float64   `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bookmark is a bare timestamp for quick re-seek.
type Bookmark struct {
	Timestamp float64   `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// Player is the part of the playback controller a jump needs.
type Player interface {
	Seek(t float64) float64
	Play() bool
	Snapshot() playback.Snapshot
}

// Config wires a Store.
type Config struct {
	UserID string
	Store  store.Store
	// Retry governs note writes; bookmarks are written once.
	Retry retry.Policy
	Log   *logger.Logger
	Now   func() time.Time
	NewID func() string
}

// Store holds the active lecture's annotations in memory and mirrors every
// change into the persistence port as an atomic read-modify-write.
type Store struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	lectureID string
	duration  float64
	notes     []Note
	bookmarks []Bookmark
}

// New returns a Store with defaults filled in.
func New(cfg Config) *Store {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Delay == nil {
		cfg.Retry = retry.Fixed(2, 250*time.Millisecond)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Store{cfg: cfg, log: log.With("component", "annotation")}
}

// Load switches to lectureID, replacing the in-memory notes and bookmarks.
func (s *Store) Load(ctx context.Context, lectureID string, duration float64) error {
	notes, _, err := store.GetJSON[[]Note](ctx, s.cfg.Store, s.cfg.UserID, store.LectureNotesKey(lectureID))
	if err != nil {
		s.log.Error("load notes failed", "lecture_id", lectureID, "error", err)
	}
	bookmarks, _, bmErr := store.GetJSON[[]Bookmark](ctx, s.cfg.Store, s.cfg.UserID, store.LectureBookmarksKey(lectureID))
	if bmErr != nil {
		s.log.Warn("load bookmarks failed", "lecture_id", lectureID, "error", bmErr)
	}

	s.mu.Lock()
	s.lectureID = lectureID
	s.duration = duration
	s.notes = notes
	s.bookmarks = bookmarks
	s.mu.Unlock()
	return errors.Join(err, bmErr)
}

// SetDuration updates the clamping bound once the player knows the real
// media duration. Calls for a lecture other than the loaded one, or with a
// non-positive duration, are ignored.
func (s *Store) SetDuration(lectureID string, duration float64) {
	if duration <= 0 {
		return
	}
	s.mu.Lock()
	if s.lectureID == lectureID {
		s.duration = duration
	}
	s.mu.Unlock()
}

// Notes returns the notes in creation order.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

// AddNote anchors content at timestamp, clamped to the lecture duration.
func (s *Store) AddNote(ctx context.Context, content string, timestamp float64) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}
	s.mu.Lock()
	if s.lectureID == "" {
		s.mu.Unlock()
		return Note{}, ErrNoLecture
	}
	note := Note{
		ID:        s.cfg.NewID(),
		LectureID: s.lectureID,
		Content:   content,
		Timestamp: s.clampLocked(timestamp),
		CreatedAt: s.cfg.Now().UTC(),
	}
	s.notes = append(s.notes, note)
	s.mu.Unlock()

	s.writeNotes(ctx, note.LectureID, func(list []Note) []Note {
		for _, n := range list {
			if n.ID == note.ID {
				return list
			}
		}
		return append(list, note)
	})
	return note, nil
}

// EditNote replaces a note's content; id, timestamp and createdAt are kept.
// Unchanged content is not rewritten.
func (s *Store) EditNote(ctx context.Context, id, content string) (Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return Note{}, ErrNoteNotFound
	}
	if s.notes[idx].Content == content {
		note := s.notes[idx]
		s.mu.Unlock()
		return note, nil
	}
	s.notes[idx].Content = content
	note := s.notes[idx]
	s.mu.Unlock()

	s.writeNotes(ctx, note.LectureID, func(list []Note) []Note {
		for i := range list {
			if list[i].ID == id {
				list[i].Content = content
				return list
			}
		}
		return append(list, note)
	})
	return note, nil
}

// DeleteNote removes a note from memory and the persisted list.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNoteNotFound
	}
	lectureID := s.notes[idx].LectureID
	s.notes = append(s.notes[:idx:idx], s.notes[idx+1:]...)
	s.mu.Unlock()

	s.writeNotes(ctx, lectureID, func(list []Note) []Note {
		out := list[:0]
		for _, n := range list {
			if n.ID != id {
				out = append(out, n)
			}
		}
		return out
	})
	return nil
}

// writeNotes applies op to the stored list under the retry policy. A final
// failure is logged; the in-memory copy stays authoritative for the session.
func (s *Store) writeNotes(ctx context.Context, lectureID string, op func([]Note) []Note) {
	_, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context, attempt int) (struct{}, error) {
		_, err := store.UpdateJSON(ctx, s.cfg.Store, s.cfg.UserID, store.LectureNotesKey(lectureID), func(list []Note) ([]Note, error) {
			return op(list), nil
		})
		if err != nil && attempt > 0 {
			s.log.Warn("note write retry failed", "lecture_id", lectureID, "attempt", attempt, "error", err)
		}
		return struct{}{}, err
	})
	if err != nil {
		s.log.Error("persist notes failed", "lecture_id", lectureID, "error", err)
	}
}

// AddBookmark records timestamp unless a bookmark already exists in the same
// whole second.
func (s *Store) AddBookmark(ctx context.Context, timestamp float64) (Bookmark, bool, error) {
	s.mu.Lock()
	if s.lectureID == "" {
		s.mu.Unlock()
		return Bookmark{}, false, ErrNoLecture
	}
	bm := Bookmark{Timestamp: s.clampLocked(timestamp), CreatedAt: s.cfg.Now().UTC()}
	for _, existing := range s.bookmarks {
		if sameSecond(existing.Timestamp, bm.Timestamp) {
			s.mu.Unlock()
			return existing, false, nil
		}
	}
	s.bookmarks = insertBookmark(s.bookmarks, bm)
	lectureID := s.lectureID
	s.mu.Unlock()

	s.writeBookmarks(ctx, lectureID, func(list []Bookmark) []Bookmark {
		for _, existing := range list {
			if sameSecond(existing.Timestamp, bm.Timestamp) {
				return list
			}
		}
		return insertBookmark(list, bm)
	})
	return bm, true, nil
}

// RemoveBookmark deletes the bookmark in timestamp's whole second.
func (s *Store) RemoveBookmark(ctx context.Context, timestamp float64) bool {
	s.mu.Lock()
	removed := false
	out := s.bookmarks[:0]
	for _, bm := range s.bookmarks {
		if sameSecond(bm.Timestamp, timestamp) {
			removed = true
			continue
		}
		out = append(out, bm)
	}
	s.bookmarks = out
	lectureID := s.lectureID
	s.mu.Unlock()
	if !removed {
		return false
	}

	s.writeBookmarks(ctx, lectureID, func(list []Bookmark) []Bookmark {
		out := list[:0]
		for _, bm := range list {
			if !sameSecond(bm.Timestamp, timestamp) {
				out = append(out, bm)
			}
		}
		return out
	})
	return true
}

// Bookmarks returns bookmarks sorted by timestamp.
func (s *Store) Bookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Bookmark(nil), s.bookmarks...)
}

func (s *Store) writeBookmarks(ctx context.Context, lectureID string, op func([]Bookmark) []Bookmark) {
	_, err := store.UpdateJSON(ctx, s.cfg.Store, s.cfg.UserID, store.LectureBookmarksKey(lectureID), func(list []Bookmark) ([]Bookmark, error) {
		return op(list), nil
	})
	if err != nil {
		s.log.Warn("persist bookmarks failed", "lecture_id", lectureID, "error", err)
	}
}

// ToggleLectureBookmark flips lectureID's membership in the bookmarked set
// and reports the new state.
func (s *Store) ToggleLectureBookmark(ctx context.Context, lectureID string) (bool, error) {
	var now bool
	_, err := store.UpdateJSON(ctx, s.cfg.Store, s.cfg.UserID, store.KeyBookmarkedLectures, func(set store.StringSet) (store.StringSet, error) {
		if set.Has(lectureID) {
			now = false
			return set.Without(lectureID), nil
		}
		now = true
		return set.With(lectureID), nil
	})
	if err != nil {
		s.log.Warn("toggle lecture bookmark failed", "lecture_id", lectureID, "error", err)
		return false, fmt.Errorf("toggle lecture bookmark: %w", err)
	}
	return now, nil
}

// IsLectureBookmarked reports whether lectureID is in the bookmarked set.
func (s *Store) IsLectureBookmarked(ctx context.Context, lectureID string) (bool, error) {
	set, _, err := store.GetJSON[store.StringSet](ctx, s.cfg.Store, s.cfg.UserID, store.KeyBookmarkedLectures)
	if err != nil {
		return false, err
	}
	return set.Has(lectureID), nil
}

// JumpToNote seeks the player to timestamp and resumes playback if it was
// not already playing.
func JumpToNote(p Player, timestamp float64) {
	p.Seek(timestamp)
	if p.Snapshot().State != playback.StatePlaying {
		p.Play()
	}
}

func (s *Store) indexLocked(id string) int {
	for i, n := range s.notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) clampLocked(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if s.duration > 0 && t > s.duration {
		return s.duration
	}
	return t
}

func sameSecond(a, b float64) bool {
	return math.Floor(a) == math.Floor(b)
}

func insertBookmark(list []Bookmark, bm Bookmark) []Bookmark {
	out := append(append([]Bookmark(nil), list...), bm)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
