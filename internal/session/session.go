// Package session coordinates one learner's pass through a course: content
// loading, lecture navigation, and the hand-off between the player, the
// progress tracker, the annotation store and the assistant.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/csheth/lecturepad/internal/annotation"
	"github.com/csheth/lecturepad/internal/chat"
	"github.com/csheth/lecturepad/internal/course"
	"github.com/csheth/lecturepad/internal/llm"
	"github.com/csheth/lecturepad/internal/logger"
	"github.com/csheth/lecturepad/internal/playback"
	"github.com/csheth/lecturepad/internal/progress"
	"github.com/csheth/lecturepad/internal/summary"
)

var (
	ErrNoLecture      = errors.New("session: no lecture selected")
	ErrNoMoreLectures = errors.New("session: no more lectures")
	ErrNotLoaded      = errors.New("session: course not loaded")
	ErrLectureLocked  = errors.New("session: lecture requires enrollment")
)

// ContentSource fetches the course tree and the user's progress.
type ContentSource interface {
	FetchContent(ctx context.Context, courseID, userID string) (*course.Content, error)
}

// TextSource extracts plain text from a document URL.
type TextSource interface {
	Text(ctx context.Context, url string) (string, error)
}

// EnrollmentChecker confirms whether the user may open locked lectures.
type EnrollmentChecker interface {
	CheckEnrollment(ctx context.Context, courseID, userID string) (bool, error)
}

// Config wires a Session. Resources and Enrollment are optional; without an
// Enrollment checker every lecture is treated as open.
type Config struct {
	CourseID string
	UserID   string
	// StartLectureID picks the first lecture after Load. Empty means the
	// first lecture in course order.
	StartLectureID string
	Autoplay       bool

	Content    ContentSource
	Resources  TextSource
	Enrollment EnrollmentChecker
	Player    *playback.Controller
	Progress  *progress.Tracker
	Notes     *annotation.Store
	Chat      *chat.Engine
	Log       *logger.Logger
}

// Session is safe for concurrent use. Lecture switches are serialized.
type Session struct {
	cfg Config
	log *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	switchMu sync.Mutex

	mu        sync.Mutex
	content   *course.Content
	lectures  []course.Lecture
	index     int
	gen       uint64
	loadErr   error
	summary   summary.Structured
	quick     []llm.QuickQuestion
	resources map[string]string
	enrolled  *bool
	closed    bool

	listeners map[int]func()
	nextID    int
	unsub     func()
}

// New subscribes the session to player events and tracker advances. Call
// Load before anything else.
func New(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:       cfg,
		log:       log.With("component", "session", "course_id", cfg.CourseID),
		ctx:       ctx,
		cancel:    cancel,
		index:     -1,
		quick:     llm.DefaultQuickQuestions(),
		resources: map[string]string{},
		listeners: map[int]func(){},
	}
	if cfg.Player != nil {
		s.unsub = cfg.Player.Subscribe(s.handlePlayerEvent)
	}
	if cfg.Progress != nil {
		cfg.Progress.OnAdvance(s.advance)
	}
	return s
}

// Subscribe registers fn to run after every session change. Changes made on
// background goroutines also notify, so fn must be safe to call from any
// goroutine.
func (s *Session) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Load fetches course content, seeds progress and selects the first lecture.
// A failure is kept for LoadError until the next successful load.
func (s *Session) Load(ctx context.Context) error {
	if s.cfg.Content == nil {
		return ErrNotLoaded
	}
	content, err := s.cfg.Content.FetchContent(ctx, s.cfg.CourseID, s.cfg.UserID)
	if err != nil {
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
		s.log.Error("course content load failed", "error", err)
		s.notify()
		return fmt.Errorf("load course %s: %w", s.cfg.CourseID, err)
	}

	lectures := course.Flatten(content.Sections)
	s.mu.Lock()
	s.content = content
	s.lectures = lectures
	s.loadErr = nil
	s.enrolled = nil
	s.mu.Unlock()

	if s.cfg.Progress != nil {
		s.cfg.Progress.Seed(ctx, content.Progress)
	}
	s.log.Info("course loaded", "sections", len(content.Sections), "lectures", len(lectures))

	if len(lectures) == 0 {
		s.notify()
		return nil
	}
	start := 0
	if s.cfg.StartLectureID != "" {
		if i := indexOf(lectures, s.cfg.StartLectureID); i >= 0 {
			start = i
		}
	}
	return s.switchTo(ctx, start)
}

// Retry re-runs Load after a failure.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	s.loadErr = nil
	s.mu.Unlock()
	return s.Load(ctx)
}

// LoadError returns the last content load failure, if any.
func (s *Session) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Course returns the loaded course header.
func (s *Session) Course() (course.Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.content == nil {
		return course.Course{}, false
	}
	return s.content.Course, true
}

// Lectures returns the flattened lecture sequence.
func (s *Session) Lectures() []course.Lecture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]course.Lecture(nil), s.lectures...)
}

// Current returns the selected lecture.
func (s *Session) Current() (course.Lecture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 || s.index >= len(s.lectures) {
		return course.Lecture{}, false
	}
	return s.lectures[s.index], true
}

func (s *Session) CanGoNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index >= 0 && s.index+1 < len(s.lectures)
}

func (s *Session) CanGoPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index > 0
}

// SelectLecture switches to lectureID.
func (s *Session) SelectLecture(ctx context.Context, lectureID string) error {
	s.mu.Lock()
	i := indexOf(s.lectures, lectureID)
	s.mu.Unlock()
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoLecture, lectureID)
	}
	if err := s.checkAccess(ctx, i); err != nil {
		return err
	}
	return s.switchTo(ctx, i)
}

// Next moves to the following lecture, crossing section boundaries.
func (s *Session) Next(ctx context.Context) error {
	return s.step(ctx, 1)
}

// Previous moves to the preceding lecture.
func (s *Session) Previous(ctx context.Context) error {
	return s.step(ctx, -1)
}

func (s *Session) step(ctx context.Context, delta int) error {
	s.mu.Lock()
	if s.index < 0 {
		s.mu.Unlock()
		return ErrNoLecture
	}
	target := s.index + delta
	if target < 0 || target >= len(s.lectures) {
		s.mu.Unlock()
		return ErrNoMoreLectures
	}
	s.mu.Unlock()
	if err := s.checkAccess(ctx, target); err != nil {
		return err
	}
	return s.switchTo(ctx, target)
}

// checkAccess returns ErrLectureLocked when the lecture at index is neither
// free nor a preview and the user is not enrolled. The enrollment answer is
// cached until the next Load.
func (s *Session) checkAccess(ctx context.Context, index int) error {
	s.mu.Lock()
	lecture := s.lectures[index]
	enrolled := s.enrolled
	s.mu.Unlock()
	if s.cfg.Enrollment == nil || lecture.Accessible(false) {
		return nil
	}
	if enrolled == nil {
		ok, err := s.cfg.Enrollment.CheckEnrollment(ctx, s.cfg.CourseID, s.cfg.UserID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		s.mu.Lock()
		s.enrolled = &ok
		s.mu.Unlock()
		enrolled = &ok
	}
	if !lecture.Accessible(*enrolled) {
		return fmt.Errorf("%w: %s", ErrLectureLocked, lecture.ID)
	}
	return nil
}

// Summary returns the structured summary of the current lecture. It is the
// zero value when the lecture has no summary.
func (s *Session) Summary() summary.Structured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// QuickQuestions returns the preset questions for the current lecture.
func (s *Session) QuickQuestions() []llm.QuickQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.QuickQuestion(nil), s.quick...)
}

// AskQuick sends the i-th quick question to the assistant.
func (s *Session) AskQuick(ctx context.Context, i int) (chat.Message, error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.quick) {
		n := len(s.quick)
		s.mu.Unlock()
		return chat.Message{}, fmt.Errorf("session: quick question %d out of range [0,%d)", i, n)
	}
	q := s.quick[i]
	s.mu.Unlock()
	return s.Ask(ctx, q.Question)
}

// Ask sends a free-form question about the current lecture.
func (s *Session) Ask(ctx context.Context, text string) (chat.Message, error) {
	if s.cfg.Chat == nil {
		return chat.Message{}, errors.New("session: assistant not configured")
	}
	return s.cfg.Chat.Send(ctx, text)
}

// ToggleComplete flips the manual completion flag of the current lecture.
// Completing schedules an advance to the next lecture.
func (s *Session) ToggleComplete() (course.ProgressRecord, error) {
	lecture, ok := s.Current()
	if !ok {
		return course.ProgressRecord{}, ErrNoLecture
	}
	if s.cfg.Progress == nil {
		return course.ProgressRecord{}, errors.New("session: progress not configured")
	}
	rec := s.cfg.Progress.ToggleComplete(lecture.ID, lecture.Duration)
	s.notify()
	return rec, nil
}

// Wait blocks until background work (quick questions, resource text,
// automatic advances) has finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Close flushes the current lecture's progress and stops the assistant. The
// tracker and the store are owned by the caller.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.mu.Unlock()

	s.cancel()
	if unsub != nil {
		unsub()
	}
	if s.cfg.Chat != nil {
		s.cfg.Chat.Cancel()
	}
	s.bg.Wait()
	if id := s.currentID(); id != "" && s.cfg.Progress != nil {
		s.cfg.Progress.Flush(id)
	}
}

// switchTo runs the lecture-change sequence: flush the previous record,
// reload annotations, swap the assistant context, rebuild the summary, load
// the player at the resume point, then kick off quick questions and resource
// text in the background.
func (s *Session) switchTo(ctx context.Context, index int) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	return s.switchLocked(ctx, index)
}

// switchLocked requires switchMu.
func (s *Session) switchLocked(ctx context.Context, index int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNoLecture
	}
	prevID := ""
	if s.index >= 0 && s.index < len(s.lectures) {
		prevID = s.lectures[s.index].ID
	}
	lecture := s.lectures[index]
	s.index = index
	s.gen++
	gen := s.gen
	s.summary = summary.Structured{}
	if strings.TrimSpace(lecture.Summary) != "" {
		s.summary = summary.Format(lecture.Summary)
	}
	s.quick = llm.DefaultQuickQuestions()
	resourceText := s.resources[lecture.ID]
	s.mu.Unlock()

	log := s.log.With("lecture_id", lecture.ID)
	if prevID != "" && prevID != lecture.ID && s.cfg.Progress != nil {
		s.cfg.Progress.Flush(prevID)
	}
	if s.cfg.Notes != nil {
		if err := s.cfg.Notes.Load(ctx, lecture.ID, lecture.Duration); err != nil {
			log.Warn("annotations unavailable", "error", err)
		}
	}
	if s.cfg.Chat != nil {
		s.cfg.Chat.SetLecture(lectureContext(lecture, resourceText))
	}
	s.loadPlayer(lecture, log)
	log.Info("lecture selected", "title", lecture.Title, "kind", string(lecture.Kind))

	if strings.TrimSpace(lecture.Summary) != "" && s.cfg.Chat != nil {
		s.background(func() { s.refreshQuickQuestions(gen, lecture) })
	}
	if resourceText == "" && lecture.IsPDFResource() && s.cfg.Resources != nil {
		s.background(func() { s.loadResource(gen, lecture) })
	}
	s.notify()
	return nil
}

func (s *Session) loadPlayer(lecture course.Lecture, log *logger.Logger) {
	p := s.cfg.Player
	if p == nil {
		return
	}
	if !lecture.HasMedia() || lecture.IsPDFResource() {
		p.Pause()
		return
	}
	resume := 0.0
	if s.cfg.Progress != nil {
		if rec, ok := s.cfg.Progress.Record(lecture.ID); ok && !rec.Completed {
			resume = rec.LastPosition
		}
	}
	src := playback.Source{LectureID: lecture.ID, URL: lecture.MediaURL, Duration: lecture.Duration}
	if err := p.Load(src, resume); err != nil {
		log.Warn("player load failed", "error", err)
		return
	}
	if s.cfg.Autoplay && !p.Play() {
		log.Debug("autoplay blocked, staying paused")
	}
}

func (s *Session) refreshQuickQuestions(gen uint64, lecture course.Lecture) {
	questions := s.cfg.Chat.QuickQuestions(s.ctx, lecture.Title, lecture.Summary)
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.quick = questions
	s.mu.Unlock()
	s.notify()
}

func (s *Session) loadResource(gen uint64, lecture course.Lecture) {
	text, err := s.cfg.Resources.Text(s.ctx, lecture.MediaURL)
	if err != nil {
		s.log.Warn("lecture resource text unavailable", "lecture_id", lecture.ID, "error", err)
		return
	}
	s.mu.Lock()
	s.resources[lecture.ID] = text
	current := s.gen == gen
	s.mu.Unlock()
	if current && s.cfg.Chat != nil {
		s.cfg.Chat.SetContext(lectureContext(lecture, text))
	}
	s.notify()
}

// handlePlayerEvent feeds timeline events into the tracker and the annotation
// store. Events for a lecture that is no longer current are ignored.
func (s *Session) handlePlayerEvent(ev playback.Event) {
	if ev.LectureID == "" || ev.LectureID != s.currentID() {
		return
	}
	if ev.Kind == playback.EventStateChanged && ev.State == playback.StateReady && s.cfg.Notes != nil {
		s.cfg.Notes.SetDuration(ev.LectureID, ev.Duration)
	}
	if s.cfg.Progress == nil {
		return
	}
	switch ev.Kind {
	case playback.EventTimeUpdate:
		s.cfg.Progress.Observe(ev.LectureID, ev.Position, ev.Duration)
	case playback.EventSeeked:
		s.cfg.Progress.Seek(ev.LectureID, ev.Position)
	case playback.EventEnded:
		s.cfg.Progress.MarkEnded(ev.LectureID, ev.Duration)
		s.advance(ev.LectureID)
	}
	s.notify()
}

// advance moves from fromID to the lecture after it, off the caller's
// goroutine, since it can be triggered from inside player callbacks and
// timers. It does nothing if fromID is no longer current by the time the
// switch lock is held, so two triggers for one lecture move only once.
func (s *Session) advance(fromID string) {
	s.background(func() {
		s.switchMu.Lock()
		defer s.switchMu.Unlock()

		s.mu.Lock()
		current := s.index >= 0 && s.index < len(s.lectures) && s.lectures[s.index].ID == fromID
		target := s.index + 1
		last := target >= len(s.lectures)
		s.mu.Unlock()
		if !current || last {
			return
		}
		if err := s.checkAccess(s.ctx, target); err != nil {
			s.log.Info("auto-advance stopped", "from", fromID, "error", err)
			return
		}
		if err := s.switchLocked(s.ctx, target); err != nil {
			s.log.Warn("auto-advance failed", "from", fromID, "error", err)
		}
	})
}

func (s *Session) background(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.bg.Done()
		fn()
	}()
}

func (s *Session) currentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 || s.index >= len(s.lectures) {
		return ""
	}
	return s.lectures[s.index].ID
}

func (s *Session) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func lectureContext(l course.Lecture, resourceText string) llm.LectureContext {
	content := l.Content
	if strings.TrimSpace(content) == "" {
		content = resourceText
	}
	return llm.LectureContext{
		Title:       l.Title,
		Description: l.Description,
		Summary:     l.Summary,
		Content:     content,
	}
}

func indexOf(lectures []course.Lecture, id string) int {
	for i, l := range lectures {
		if l.ID == id {
			return i
		}
	}
	return -1
}
