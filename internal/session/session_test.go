package session

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/chat"
	"github.com/csheth/lecturepad/internal/course"
	"github.com/csheth/lecturepad/internal/llm"
	"github.com/csheth/lecturepad/internal/playback"
	"github.com/csheth/lecturepad/internal/progress"
	"github.com/csheth/lecturepad/internal/store"
)

func fixture() *course.Content {
	return &course.Content{
		Course: course.Course{ID: "c1", Title: "Concurrency in Go"},
		Sections: []course.Section{
			{ID: "s2", Position: 2, Lectures: []course.Lecture{
				{ID: "l3", Title: "Channels", Kind: course.KindVideo, MediaURL: "https://cdn.test/l3.mp4", Duration: 100, Position: 1},
			}},
			{ID: "s1", Position: 1, Lectures: []course.Lecture{
				{ID: "l2", Title: "Goroutines", Kind: course.KindVideo, MediaURL: "https://cdn.test/l2.mp4", Duration: 60, Position: 2,
					Summary: "Key Concepts:\n- goroutines are cheap\n- the scheduler multiplexes"},
				{ID: "l1", Title: "Intro", Kind: course.KindVideo, MediaURL: "https://cdn.test/l1.mp4", Duration: 60, Position: 1},
			}},
			{ID: "s3", Position: 3, Lectures: []course.Lecture{
				{ID: "l4", Title: "Reading", Kind: course.KindResource, MediaURL: "https://cdn.test/notes.pdf", Position: 1},
			}},
		},
		Progress: []course.ProgressRecord{{LectureID: "l3", Percentage: 40, LastPosition: 40}},
	}
}

var errUnavailable = errors.New("provider unavailable")

type fakeContent struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeContent) FetchContent(context.Context, string, string) (*course.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errUnavailable
	}
	return fixture(), nil
}

type fakeText struct{ text string }

func (f fakeText) Text(context.Context, string) (string, error) { return f.text, nil }

type fakeLLM struct {
	mu      sync.Mutex
	prompts [][]llm.Message
}

func (f *fakeLLM) StreamChat(_ context.Context, messages []llm.Message, onDelta func(string) error) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, messages)
	f.mu.Unlock()
	return onDelta("ok")
}

func (f *fakeLLM) Chat(context.Context, []llm.Message) (string, error) {
	return `[{"question":"Why are goroutines cheap?","category":"concept"}]`, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) lastSystemPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1][0].Content
}

type options struct {
	autoplay   bool
	resources  TextSource
	content    ContentSource
	enrollment EnrollmentChecker
}

type fakeEnrollment struct {
	mu       sync.Mutex
	enrolled bool
	calls    int
}

func (f *fakeEnrollment) CheckEnrollment(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.enrolled, nil
}

type previewContent struct{}

func (previewContent) FetchContent(context.Context, string, string) (*course.Content, error) {
	c := fixture()
	for i := range c.Sections {
		for j := range c.Sections[i].Lectures {
			if c.Sections[i].Lectures[j].ID == "l2" {
				c.Sections[i].Lectures[j].Preview = true
			}
		}
	}
	return c, nil
}

type harness struct {
	s       *Session
	media   *playback.SimulatedMedia
	player  *playback.Controller
	tracker *progress.Tracker
	notes   *annotation.Store
	chat    *chat.Engine
	llm     *fakeLLM

	mu   sync.Mutex
	fire func()
}

func newHarness(t *testing.T, opts options) *harness {
	t.Helper()
	h := &harness{llm: &fakeLLM{}}
	h.media, h.player = playback.NewSimulated(nil)
	backing := store.NewMemory()
	h.tracker = progress.New(progress.Config{
		UserID: "u1",
		Store:  backing,
		AfterFunc: func(_ time.Duration, f func()) func() bool {
			h.mu.Lock()
			h.fire = f
			h.mu.Unlock()
			return func() bool { return true }
		},
	})
	t.Cleanup(h.tracker.Close)
	h.notes = annotation.New(annotation.Config{UserID: "u1", Store: backing})
	h.chat = chat.New(chat.Config{Client: h.llm})

	content := opts.content
	if content == nil {
		content = &fakeContent{}
	}
	h.s = New(Config{
		CourseID:   "c1",
		UserID:     "u1",
		Autoplay:   opts.autoplay,
		Content:    content,
		Resources:  opts.resources,
		Enrollment: opts.enrollment,
		Player:     h.player,
		Progress:   h.tracker,
		Notes:      h.notes,
		Chat:       h.chat,
	})
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	if err := h.s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	h.s.Wait()
}

func (h *harness) waitChat(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.chat.Wait(ctx); err != nil {
		t.Fatalf("chat Wait() error = %v", err)
	}
}

func currentID(t *testing.T, s *Session) string {
	t.Helper()
	l, ok := s.Current()
	if !ok {
		t.Fatal("no current lecture")
	}
	return l.ID
}

func TestLoadFlattensAndNavigates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{})
	h.load(t)
	ctx := context.Background()

	var ids []string
	for _, l := range h.s.Lectures() {
		ids = append(ids, l.ID)
	}
	if want := []string{"l1", "l2", "l3", "l4"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("lectures = %v, want %v", ids, want)
	}
	if c, ok := h.s.Course(); !ok || c.Title != "Concurrency in Go" {
		t.Fatalf("Course() = %+v, %v", c, ok)
	}
	if currentID(t, h.s) != "l1" || h.s.CanGoPrevious() || !h.s.CanGoNext() {
		t.Fatal("expected to start at the first lecture")
	}

	for _, want := range []string{"l2", "l3", "l4"} {
		if err := h.s.Next(ctx); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got := currentID(t, h.s); got != want {
			t.Fatalf("Next() moved to %s, want %s", got, want)
		}
	}
	if err := h.s.Next(ctx); !errors.Is(err, ErrNoMoreLectures) {
		t.Fatalf("Next() at end error = %v", err)
	}
	if h.s.CanGoNext() {
		t.Fatal("CanGoNext() should be false at the last lecture")
	}
	if err := h.s.Previous(ctx); err != nil || currentID(t, h.s) != "l3" {
		t.Fatalf("Previous() error = %v", err)
	}
	if err := h.s.SelectLecture(ctx, "missing"); !errors.Is(err, ErrNoLecture) {
		t.Fatalf("SelectLecture(missing) error = %v", err)
	}
}

func TestLoadFailureKeepsErrorUntilRetry(t *testing.T) {
	t.Parallel()

	src := &fakeContent{failures: 1}
	h := newHarness(t, options{content: src})

	if err := h.s.Load(context.Background()); !errors.Is(err, errUnavailable) {
		t.Fatalf("Load() error = %v", err)
	}
	if !errors.Is(h.s.LoadError(), errUnavailable) {
		t.Fatalf("LoadError() = %v", h.s.LoadError())
	}
	if _, ok := h.s.Current(); ok {
		t.Fatal("no lecture should be selected after a failed load")
	}
	if err := h.s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if h.s.LoadError() != nil || currentID(t, h.s) != "l1" {
		t.Fatal("Retry() should clear the error and select a lecture")
	}
}

func TestPlaybackFeedsProgressAndAdvancesOnEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{autoplay: true})
	h.load(t)
	if snap := h.player.Snapshot(); snap.State != playback.StatePlaying || snap.LectureID != "l1" {
		t.Fatalf("autoplay did not start: %+v", snap)
	}

	h.media.Advance(30 * time.Second)
	if rec, _ := h.tracker.Record("l1"); rec.Percentage != 50 || rec.Completed {
		t.Fatalf("record after 30s = %+v", rec)
	}

	h.media.Advance(40 * time.Second)
	h.s.Wait()
	if got := currentID(t, h.s); got != "l2" {
		t.Fatalf("expected auto-advance to l2, at %s", got)
	}
	if rec, _ := h.tracker.Record("l1"); rec.Percentage != 100 || !rec.Completed {
		t.Fatalf("ended lecture record = %+v", rec)
	}
	if snap := h.player.Snapshot(); snap.LectureID != "l2" || snap.State != playback.StatePlaying {
		t.Fatalf("next lecture not playing: %+v", snap)
	}
}

func TestResumesFromLastPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{})
	h.load(t)
	if err := h.s.SelectLecture(context.Background(), "l3"); err != nil {
		t.Fatalf("SelectLecture() error = %v", err)
	}
	snap := h.player.Snapshot()
	if snap.Position != 40 || snap.State != playback.StateReady {
		t.Fatalf("expected resume at 40s in Ready, got %+v", snap)
	}
}

func TestBlockedAutoplayStaysPaused(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{autoplay: true})
	h.media.RejectPlay = true
	h.load(t)
	if state := h.player.Snapshot().State; state != playback.StatePaused {
		t.Fatalf("state = %v, want Paused", state)
	}
}

func TestLectureChangeReloadsNotesAndKeepsConversation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, options{})
	h.load(t)

	if _, err := h.notes.AddNote(ctx, "remember this", 10); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if _, err := h.s.Ask(ctx, "hi"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	h.waitChat(t)

	if err := h.s.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	h.s.Wait()
	if n := len(h.notes.Notes()); n != 0 {
		t.Fatalf("l2 should have no notes, got %d", n)
	}
	if n := len(h.chat.Messages()); n != 2 {
		t.Fatalf("conversation should survive the lecture change, got %d messages", n)
	}

	if _, err := h.s.Ask(ctx, "again"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	h.waitChat(t)
	if sys := h.llm.lastSystemPrompt(); !strings.Contains(sys, "Lecture title: Goroutines") {
		t.Fatalf("prompt not switched to the new lecture: %s", sys)
	}

	if err := h.s.Previous(ctx); err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if notes := h.notes.Notes(); len(notes) != 1 || notes[0].Content != "remember this" {
		t.Fatalf("notes not reloaded: %+v", notes)
	}
}

func TestSummaryAndQuickQuestions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, options{})
	h.load(t)

	if !h.s.Summary().Empty() {
		t.Fatal("lecture without summary should have an empty structured summary")
	}
	if n := len(h.s.QuickQuestions()); n != 4 {
		t.Fatalf("expected default quick questions, got %d", n)
	}

	if err := h.s.SelectLecture(ctx, "l2"); err != nil {
		t.Fatalf("SelectLecture() error = %v", err)
	}
	h.s.Wait()

	want := []string{"goroutines are cheap", "the scheduler multiplexes"}
	if got := h.s.Summary().KeyConcepts; !reflect.DeepEqual(got, want) {
		t.Fatalf("KeyConcepts = %v, want %v", got, want)
	}
	qs := h.s.QuickQuestions()
	if len(qs) != 1 || qs[0].Question != "Why are goroutines cheap?" {
		t.Fatalf("QuickQuestions() = %+v", qs)
	}

	if _, err := h.s.AskQuick(ctx, 0); err != nil {
		t.Fatalf("AskQuick() error = %v", err)
	}
	h.waitChat(t)
	if msgs := h.chat.Messages(); msgs[0].Content != "Why are goroutines cheap?" {
		t.Fatalf("quick question not sent: %+v", msgs[0])
	}
	if _, err := h.s.AskQuick(ctx, 5); err == nil {
		t.Fatal("AskQuick() out of range should fail")
	}
}

func TestResourceTextBecomesPromptContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, options{resources: fakeText{text: "Select waits on several channel operations."}})
	h.load(t)

	if err := h.s.SelectLecture(ctx, "l4"); err != nil {
		t.Fatalf("SelectLecture() error = %v", err)
	}
	h.s.Wait()
	if state := h.player.Snapshot().State; state == playback.StatePlaying {
		t.Fatal("a PDF lecture must not play")
	}

	if _, err := h.s.Ask(ctx, "what is select?"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	h.waitChat(t)
	if sys := h.llm.lastSystemPrompt(); !strings.Contains(sys, "Select waits on several channel operations.") {
		t.Fatalf("resource text missing from prompt: %s", sys)
	}
}

func TestToggleCompleteAdvances(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{})
	h.load(t)

	rec, err := h.s.ToggleComplete()
	if err != nil || !rec.Completed || rec.Percentage != 100 {
		t.Fatalf("ToggleComplete() = %+v, %v", rec, err)
	}
	h.mu.Lock()
	fire := h.fire
	h.mu.Unlock()
	if fire == nil {
		t.Fatal("advance was not scheduled")
	}
	fire()
	h.s.Wait()
	if got := currentID(t, h.s); got != "l2" {
		t.Fatalf("expected advance to l2, at %s", got)
	}
}

func TestCompletionTimerAndMediaEndAdvanceOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{autoplay: true})
	h.load(t)
	if _, err := h.s.ToggleComplete(); err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}
	h.mu.Lock()
	fire := h.fire
	h.mu.Unlock()
	if fire == nil {
		t.Fatal("advance was not scheduled")
	}

	// Both triggers land before either background switch can run.
	h.s.switchMu.Lock()
	fire()
	h.media.Advance(70 * time.Second)
	h.s.switchMu.Unlock()
	h.s.Wait()

	if got := currentID(t, h.s); got != "l2" {
		t.Fatalf("current after one lecture finished = %s, want l2", got)
	}
}

func TestMediaDurationBoundsNoteTimestamps(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{})
	h.load(t)

	// The media reports a shorter runtime than the catalog's 60s.
	src := playback.Source{LectureID: "l1", URL: "https://cdn.test/l1.mp4", Duration: 45}
	if err := h.player.Load(src, 0); err != nil {
		t.Fatalf("player Load() error = %v", err)
	}
	note, err := h.notes.AddNote(context.Background(), "past the end", 500)
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if note.Timestamp != 45 {
		t.Fatalf("note timestamp = %v, want clamp to media duration 45", note.Timestamp)
	}
}

func TestLockedLecturesNeedEnrollment(t *testing.T) {
	t.Parallel()

	enrollment := &fakeEnrollment{}
	h := newHarness(t, options{content: previewContent{}, enrollment: enrollment})
	h.load(t)

	if err := h.s.Next(context.Background()); err != nil {
		t.Fatalf("preview lecture should open without enrollment: %v", err)
	}
	if enrollment.calls != 0 {
		t.Fatalf("preview lecture triggered %d enrollment checks", enrollment.calls)
	}
	for i := 0; i < 2; i++ {
		if err := h.s.Next(context.Background()); !errors.Is(err, ErrLectureLocked) {
			t.Fatalf("Next() into locked lecture error = %v, want ErrLectureLocked", err)
		}
	}
	if enrollment.calls != 1 {
		t.Fatalf("enrollment should be checked once and cached, got %d calls", enrollment.calls)
	}
	if got := currentID(t, h.s); got != "l2" {
		t.Fatalf("locked navigation moved the session to %s", got)
	}
}

func TestEnrolledUserOpensLockedLectures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{enrollment: &fakeEnrollment{enrolled: true}})
	h.load(t)
	if err := h.s.SelectLecture(context.Background(), "l3"); err != nil {
		t.Fatalf("SelectLecture() error = %v", err)
	}
	if got := currentID(t, h.s); got != "l3" {
		t.Fatalf("current = %s, want l3", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, options{})
	h.load(t)
	h.s.Close()
	h.s.Close()
	if err := h.s.Next(context.Background()); err == nil {
		t.Fatal("navigation after Close should fail")
	}
}
