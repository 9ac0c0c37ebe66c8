// Package store is the persistence port for per-user lecture state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Well-known keys inside a user namespace.
const (
	KeyBookmarkedLectures = "bookmarkedLectures"
	KeyCompletedLectures  = "completedLectures"
	prefixLectureNotes    = "lectureNotes/"
	prefixBookmarks       = "lectureBookmarks/"
	prefixProgress        = "progress/"
)

// LectureNotesKey keys the ordered note list for a lecture.
func LectureNotesKey(lectureID string) string { return prefixLectureNotes + lectureID }

// LectureBookmarksKey keys the timestamp bookmarks for a lecture.
func LectureBookmarksKey(lectureID string) string { return prefixBookmarks + lectureID }

// ProgressKey keys the locally cached progress record for a lecture.
func ProgressKey(lectureID string) string { return prefixProgress + lectureID }

// Mutator receives the current raw value (nil when absent) and returns the
// replacement. Returning a nil slice deletes the key.
type Mutator func(current []byte) ([]byte, error)

// Store is a namespaced key/value port. Namespace is the user id.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	// Update applies fn as one atomic read-modify-write.
	Update(ctx context.Context, namespace, key string, fn Mutator) error
	Delete(ctx context.Context, namespace, key string) error
	// List returns keys in namespace starting with prefix, sorted.
	List(ctx context.Context, namespace, prefix string) ([]string, error)
	Close() error
}

// GetJSON decodes the value at key into T. Missing keys yield the zero value
// and found=false.
func GetJSON[T any](ctx context.Context, s Store, namespace, key string) (T, bool, error) {
	var out T
	raw, err := s.Get(ctx, namespace, key)
	if errors.Is(err, ErrNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON[T any](ctx context.Context, s Store, namespace, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, namespace, key, raw)
}

// UpdateJSON runs fn over the decoded value and stores the result in the same
// atomic step. The returned value is what was written.
func UpdateJSON[T any](ctx context.Context, s Store, namespace, key string, fn func(current T) (T, error)) (T, error) {
	var written T
	err := s.Update(ctx, namespace, key, func(raw []byte) ([]byte, error) {
		var current T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &current); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}
		written = next
		return out, nil
	})
	return written, err
}

// StringSet is the stored shape of bookmarkedLectures and completedLectures.
type StringSet []string

// Has reports whether id is in the set.
func (s StringSet) Has(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// With returns the set with id added, keeping insertion order.
func (s StringSet) With(id string) StringSet {
	if s.Has(id) {
		return s
	}
	return append(append(StringSet(nil), s...), id)
}

// Without returns the set with id removed.
func (s StringSet) Without(id string) StringSet {
	out := make(StringSet, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
