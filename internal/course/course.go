// Package course holds the course/section/lecture model and the client for
// the remote course-content provider.
package course

import (
	"sort"
	"strings"
)

// LectureKind enumerates the supported lecture types.
type LectureKind string

const (
	KindVideo      LectureKind = "video"
	KindArticle    LectureKind = "article"
	KindQuiz       LectureKind = "quiz"
	KindAssignment LectureKind = "assignment"
	KindResource   LectureKind = "resource"
)

// CompletionThreshold is the watched percentage at which a lecture counts as complete.
const CompletionThreshold = 90.0

// Course is immutable for the lifetime of a session once loaded.
type Course struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Instructor   string `json:"instructor"`
	LectureCount int    `json:"lectureCount"`
	SectionCount int    `json:"sectionCount"`
}

// Section groups lectures at an ordinal position.
type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Position int       `json:"position"`
	Lectures []Lecture `json:"lectures"`
}

// Lecture is the atomic unit of course content.
type Lecture struct {
	ID          string      `json:"id"`
	SectionID   string      `json:"sectionId,omitempty"`
	Title       string      `json:"title"`
	Kind        LectureKind `json:"type"`
	MediaURL    string      `json:"mediaUrl,omitempty"`
	Duration    float64     `json:"duration,omitempty"`
	Description string      `json:"description,omitempty"`
	Content     string      `json:"content,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Position    int         `json:"position"`
	Free        bool        `json:"isFree,omitempty"`
	Preview     bool        `json:"isPreview,omitempty"`
}

// HasMedia reports whether the lecture carries a playable media reference.
func (l Lecture) HasMedia() bool {
	return strings.TrimSpace(l.MediaURL) != ""
}

// IsPDFResource reports whether the lecture media is a PDF document.
func (l Lecture) IsPDFResource() bool {
	if l.Kind != KindResource && l.Kind != KindArticle {
		return false
	}
	url := strings.ToLower(strings.TrimSpace(l.MediaURL))
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return strings.HasSuffix(url, ".pdf")
}

// Accessible reports whether a user may open the lecture given enrollment.
func (l Lecture) Accessible(enrolled bool) bool {
	return enrolled || l.Free || l.Preview
}

// ProgressRecord is the per-lecture watch state for one user.
type ProgressRecord struct {
	LectureID    string  `json:"lectureId"`
	Percentage   float64 `json:"percentage"`
	Completed    bool    `json:"completed"`
	LastPosition float64 `json:"lastPosition"`
}

// Content is the course-content fetch response.
type Content struct {
	Course   Course           `json:"course"`
	Sections []Section        `json:"sections"`
	Progress []ProgressRecord `json:"progress"`
}

// Flatten orders lectures by section position, then lecture position, into
// one sequence for navigation across section boundaries. Ties keep the
// provider's order.
func Flatten(sections []Section) []Lecture {
	ordered := append([]Section(nil), sections...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	var out []Lecture
	for _, section := range ordered {
		lectures := append([]Lecture(nil), section.Lectures...)
		sort.SliceStable(lectures, func(i, j int) bool {
			return lectures[i].Position < lectures[j].Position
		})
		for _, lecture := range lectures {
			if lecture.SectionID == "" {
				lecture.SectionID = section.ID
			}
			out = append(out, lecture)
		}
	}
	return out
}
