package annotation

import "sort"

// MarkerKind distinguishes note markers from bookmark markers.
type MarkerKind int

const (
	MarkerNote MarkerKind = iota
	MarkerBookmark
)

// Marker is an addressable point on the normalized timeline.
type Marker struct {
	Kind      MarkerKind
	NoteID    string
	Label     string
	Timestamp float64
	// Position is Timestamp/duration in [0, 1].
	Position float64
}

// MarkerPosition maps timestamp onto a [0, 1] timeline. Unknown durations
// place every marker at the start.
func MarkerPosition(timestamp, duration float64) float64 {
	if duration <= 0 || timestamp <= 0 {
		return 0
	}
	if timestamp >= duration {
		return 1
	}
	return timestamp / duration
}

// Markers returns notes and bookmarks ordered by timestamp; at equal
// timestamps notes come first.
func (s *Store) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, 0, len(s.notes)+len(s.bookmarks))
	for _, n := range s.notes {
		out = append(out, Marker{
			Kind:      MarkerNote,
			NoteID:    n.ID,
			Label:     n.Content,
			Timestamp: n.Timestamp,
			Position:  MarkerPosition(n.Timestamp, s.duration),
		})
	}
	for _, b := range s.bookmarks {
		out = append(out, Marker{
			Kind:      MarkerBookmark,
			Timestamp: b.Timestamp,
			Position:  MarkerPosition(b.Timestamp, s.duration),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
