// Package playback owns the media timeline of the active lecture.
package playback

import (
	"sync"

	"github.com/csheth/lecturepad/internal/logger"
)

// State is the controller lifecycle state. Buffering is tracked separately.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Setter bounds.
const (
	MinVolume = 0.0
	MaxVolume = 1.0
	MinRate   = 0.25
	MaxRate   = 2.0
)

// Source describes what to load. Duration is the catalog value and may be 0.
type Source struct {
	LectureID string
	URL       string
	Duration  float64
}

// Media is the underlying player surface. Play may fail (autoplay policy);
// the controller treats that as staying paused. Implementations report
// metadata and end-of-media back through MetadataReady and MediaEnded.
type Media interface {
	Load(src Source) error
	Play() error
	Pause() error
	Seek(t float64) error
	SetVolume(v float64)
	SetMuted(muted bool)
	SetRate(r float64)
}

// EventKind enumerates the timeline events.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventTimeUpdate
	EventSeeked
	EventEnded
)

// Event is delivered synchronously to subscribers, outside the controller lock.
type Event struct {
	Kind      EventKind
	LectureID string
	State     State
	Position  float64
	Duration  float64
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	LectureID string
	State     State
	Buffering bool
	Position  float64
	Duration  float64
	Volume    float64
	Muted     bool
	Rate      float64
}

// Controller is the playback state machine:
// Idle → Loading → Ready ⇄ {Playing, Paused} → Ended.
type Controller struct {
	mu    sync.Mutex
	media Media
	log   *logger.Logger

	lectureID string
	state     State
	buffering bool
	position  float64
	duration  float64
	volume    float64
	muted     bool
	rate      float64

	resumeAt float64
	wantPlay bool

	nextListener int
	listeners    map[int]func(Event)
}

// New wires a controller to media.
func New(media Media, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		media:     media,
		log:       log.With("component", "playback"),
		volume:    MaxVolume,
		rate:      1,
		listeners: map[int]func(Event){},
	}
}

// Subscribe registers fn for every event and returns an unsubscribe func.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		LectureID: c.lectureID,
		State:     c.state,
		Buffering: c.buffering,
		Position:  c.position,
		Duration:  c.duration,
		Volume:    c.volume,
		Muted:     c.muted,
		Rate:      c.rate,
	}
}

// Position returns the current timeline position in seconds.
func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Load starts loading src. resumeAt > 0 is applied on metadata-ready.
func (c *Controller) Load(src Source, resumeAt float64) error {
	c.mu.Lock()
	c.lectureID = src.LectureID
	c.state = StateLoading
	c.buffering = false
	c.position = 0
	c.duration = 0
	c.resumeAt = resumeAt
	c.wantPlay = false
	ev := c.eventLocked(EventStateChanged)
	c.mu.Unlock()
	c.emit(ev)

	if err := c.media.Load(src); err != nil {
		c.mu.Lock()
		if c.lectureID == src.LectureID && c.state == StateLoading {
			c.state = StateIdle
		}
		ev := c.eventLocked(EventStateChanged)
		c.mu.Unlock()
		c.emit(ev)
		c.log.Warn("media load failed", "lecture_id", src.LectureID, "error", err)
		return err
	}
	return nil
}

// MetadataReady records the media duration, seeks to the resume position if
// one was given, and moves to Ready. A pending play request runs afterwards.
func (c *Controller) MetadataReady(duration float64) {
	c.mu.Lock()
	if c.state != StateLoading {
		c.mu.Unlock()
		return
	}
	if duration < 0 {
		duration = 0
	}
	c.duration = duration
	resume := clamp(c.resumeAt, 0, duration)
	c.resumeAt = 0
	var events []Event
	if resume > 0 {
		c.position = resume
		events = append(events, c.eventLocked(EventSeeked))
	}
	c.state = StateReady
	events = append(events, c.eventLocked(EventStateChanged))
	wantPlay := c.wantPlay
	c.wantPlay = false
	c.mu.Unlock()

	if resume > 0 {
		if err := c.media.Seek(resume); err != nil {
			c.log.Warn("resume seek failed", "position", resume, "error", err)
		}
	}
	c.emit(events...)
	if wantPlay {
		c.Play()
	}
}

// Play starts playback and reports whether the media is now playing. A
// rejected play leaves the controller Paused without surfacing an error.
func (c *Controller) Play() bool {
	c.mu.Lock()
	switch c.state {
	case StatePlaying:
		c.mu.Unlock()
		return true
	case StateLoading:
		c.wantPlay = true
		c.mu.Unlock()
		return false
	case StateIdle:
		c.mu.Unlock()
		return false
	}
	restart := c.state == StateEnded
	if restart {
		c.position = 0
	}
	c.mu.Unlock()

	if restart {
		_ = c.media.Seek(0)
	}
	err := c.media.Play()

	c.mu.Lock()
	if err != nil {
		c.state = StatePaused
		c.log.Debug("playback rejected by media", "lecture_id", c.lectureID, "error", err)
	} else {
		c.state = StatePlaying
	}
	ev := c.eventLocked(EventStateChanged)
	c.mu.Unlock()
	c.emit(ev)
	return err == nil
}

// Pause stops playback. It is a no-op unless Playing; during Loading it
// cancels a pending play request.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state == StateLoading {
		c.wantPlay = false
	}
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.state = StatePaused
	ev := c.eventLocked(EventStateChanged)
	c.mu.Unlock()

	if err := c.media.Pause(); err != nil {
		c.log.Warn("media pause failed", "error", err)
	}
	c.emit(ev)
}

// Toggle flips between Playing and Paused.
func (c *Controller) Toggle() {
	if c.Snapshot().State == StatePlaying {
		c.Pause()
		return
	}
	c.Play()
}

// Seek clamps t to [0, duration] and moves the position immediately. The
// play/pause state is kept; seeking back from Ended lands in Paused.
func (c *Controller) Seek(t float64) float64 {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateLoading {
		c.mu.Unlock()
		return 0
	}
	t = clamp(t, 0, c.duration)
	c.position = t
	events := []Event{c.eventLocked(EventSeeked)}
	if c.state == StateEnded && t < c.duration {
		c.state = StatePaused
		events = append(events, c.eventLocked(EventStateChanged))
	}
	c.mu.Unlock()

	if err := c.media.Seek(t); err != nil {
		c.log.Warn("media seek failed", "position", t, "error", err)
	}
	c.emit(events...)
	return t
}

// SeekBy moves the position by delta seconds.
func (c *Controller) SeekBy(delta float64) float64 {
	return c.Seek(c.Position() + delta)
}

// SetVolume clamps v to [MinVolume, MaxVolume].
func (c *Controller) SetVolume(v float64) float64 {
	v = clamp(v, MinVolume, MaxVolume)
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
	c.media.SetVolume(v)
	return v
}

func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	c.media.SetMuted(muted)
}

// SetRate clamps r to [MinRate, MaxRate].
func (c *Controller) SetRate(r float64) float64 {
	r = clamp(r, MinRate, MaxRate)
	c.mu.Lock()
	c.rate = r
	c.mu.Unlock()
	c.media.SetRate(r)
	return r
}

// SetBuffering sets the orthogonal buffering flag. It only holds while
// Playing or Paused.
func (c *Controller) SetBuffering(buffering bool) {
	c.mu.Lock()
	if c.state != StatePlaying && c.state != StatePaused {
		buffering = false
	}
	if c.buffering == buffering {
		c.mu.Unlock()
		return
	}
	c.buffering = buffering
	ev := c.eventLocked(EventStateChanged)
	c.mu.Unlock()
	c.emit(ev)
}

// Tick reports the media's current position.
func (c *Controller) Tick(current float64) {
	c.mu.Lock()
	if c.state != StatePlaying && c.state != StatePaused {
		c.mu.Unlock()
		return
	}
	c.position = clamp(current, 0, c.duration)
	ev := c.eventLocked(EventTimeUpdate)
	c.mu.Unlock()
	c.emit(ev)
}

// MediaEnded moves to Ended with the position pinned to the duration.
func (c *Controller) MediaEnded() {
	c.mu.Lock()
	if c.state != StatePlaying && c.state != StatePaused && c.state != StateReady {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	c.buffering = false
	c.position = c.duration
	ev := c.eventLocked(EventEnded)
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Controller) eventLocked(kind EventKind) Event {
	return Event{
		Kind:      kind,
		LectureID: c.lectureID,
		State:     c.state,
		Position:  c.position,
		Duration:  c.duration,
	}
}

func (c *Controller) emit(events ...Event) {
	c.mu.Lock()
	listeners := make([]func(Event), 0, len(c.listeners))
	for id := 0; id < c.nextListener; id++ {
		if fn, ok := c.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	c.mu.Unlock()
	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
