// Package progress derives watch progress from timeline events and persists it.
package progress

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/csheth/lecturepad/internal/course"
	"github.com/csheth/lecturepad/internal/logger"
	"github.com/csheth/lecturepad/internal/store"
)

const (
	defaultInterval     = 10 * time.Second
	defaultDelta        = 5.0
	defaultAdvanceDelay = 1500 * time.Millisecond
	defaultSaveTimeout  = 10 * time.Second
)

// Saver is the remote progress endpoint.
type Saver interface {
	SaveProgress(ctx context.Context, update course.ProgressUpdate) error
}

// Config wires a Tracker. Store and Remote are both optional.
type Config struct {
	UserID       string
	Store        store.Store
	Remote       Saver
	Interval     time.Duration
	Delta        float64
	AdvanceDelay time.Duration
	SaveTimeout  time.Duration
	Log          *logger.Logger

	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

type job struct {
	update       course.ProgressUpdate
	record       course.ProgressRecord
	syncComplete bool
}

type sentState struct {
	percentage float64
	completed  bool
}

// Tracker keeps one ProgressRecord per lecture. Percentage is a high-water
// mark, LastPosition follows the latest event or seek. Remote writes are
// throttled and run on a single background worker in submission order.
type Tracker struct {
	cfg     Config
	log     *logger.Logger
	limiter *rate.Limiter

	mu          sync.Mutex
	records     map[string]course.ProgressRecord
	sent        map[string]sentState
	dirty       map[string]bool
	queue       []job
	onAdvance   func(lectureID string)
	stopAdvance func() bool
	closed      bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New starts the persistence worker.
func New(cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Delta <= 0 {
		cfg.Delta = defaultDelta
	}
	if cfg.AdvanceDelay <= 0 {
		cfg.AdvanceDelay = defaultAdvanceDelay
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	t := &Tracker{
		cfg:     cfg,
		log:     log.With("component", "progress"),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		records: map[string]course.ProgressRecord{},
		sent:    map[string]sentState{},
		dirty:   map[string]bool{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.worker()
	return t
}

// OnAdvance registers the callback fired after a manual completion.
func (t *Tracker) OnAdvance(fn func(lectureID string)) {
	t.mu.Lock()
	t.onAdvance = fn
	t.mu.Unlock()
}

// Seed installs the provider's records, then fills gaps from the local cache.
// Seeded records count as already persisted.
func (t *Tracker) Seed(ctx context.Context, records []course.ProgressRecord) {
	local := t.loadLocal(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		rec = normalize(rec)
		t.records[rec.LectureID] = rec
		t.sent[rec.LectureID] = sentState{percentage: rec.Percentage, completed: rec.Completed}
	}
	for _, rec := range local {
		if _, ok := t.records[rec.LectureID]; ok {
			continue
		}
		t.records[rec.LectureID] = normalize(rec)
	}
}

func (t *Tracker) loadLocal(ctx context.Context) []course.ProgressRecord {
	if t.cfg.Store == nil {
		return nil
	}
	keys, err := t.cfg.Store.List(ctx, t.cfg.UserID, store.ProgressKey(""))
	if err != nil {
		t.log.Warn("list cached progress failed", "error", err)
		return nil
	}
	var out []course.ProgressRecord
	for _, key := range keys {
		rec, ok, err := store.GetJSON[course.ProgressRecord](ctx, t.cfg.Store, t.cfg.UserID, key)
		if err != nil {
			t.log.Warn("read cached progress failed", "key", key, "error", err)
			continue
		}
		if ok {
			if rec.LectureID == "" {
				rec.LectureID = strings.TrimPrefix(key, store.ProgressKey(""))
			}
			out = append(out, rec)
		}
	}
	return out
}

// Record returns the current record for lectureID.
func (t *Tracker) Record(lectureID string) (course.ProgressRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[lectureID]
	return rec, ok
}

// Observe handles one timeline update. total <= 0 is ignored.
func (t *Tracker) Observe(lectureID string, current, total float64) course.ProgressRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.records[lectureID]
	if total <= 0 {
		return prev
	}
	pct := clampPct(current / total * 100)
	rec := prev
	rec.LectureID = lectureID
	if !seen || pct > rec.Percentage {
		rec.Percentage = pct
	}
	rec.Completed = rec.Percentage >= course.CompletionThreshold
	rec.LastPosition = clampRange(current, 0, total)
	t.records[lectureID] = rec

	if t.shouldPersistLocked(rec) {
		t.enqueueLocked(rec, rec.LastPosition)
	} else {
		t.dirty[lectureID] = true
	}
	return rec
}

func (t *Tracker) shouldPersistLocked(rec course.ProgressRecord) bool {
	last, ok := t.sent[rec.LectureID]
	switch {
	case !ok:
		return true
	case last.completed != rec.Completed:
		return true
	case rec.Percentage-last.percentage >= t.cfg.Delta:
		return true
	}
	return t.limiter.AllowN(t.cfg.Now(), 1)
}

// Seek moves LastPosition to the seek target without touching the percentage.
func (t *Tracker) Seek(lectureID string, position float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.records[lectureID]
	rec.LectureID = lectureID
	if position < 0 {
		position = 0
	}
	rec.LastPosition = position
	t.records[lectureID] = rec
	t.dirty[lectureID] = true
}

// MarkEnded records a full watch and persists it right away. A pending
// advance from a manual completion is cancelled; the caller advances instead.
func (t *Tracker) MarkEnded(lectureID string, total float64) course.ProgressRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopAdvance != nil {
		t.stopAdvance()
		t.stopAdvance = nil
	}
	rec := course.ProgressRecord{LectureID: lectureID, Percentage: 100, Completed: true, LastPosition: total}
	t.records[lectureID] = rec
	t.enqueueLocked(rec, total)
	return rec
}

// ToggleComplete flips completion. Completing sets 100% and schedules the
// advance callback; un-completing resets the record to 0%.
func (t *Tracker) ToggleComplete(lectureID string, duration float64) course.ProgressRecord {
	t.mu.Lock()
	rec := t.records[lectureID]
	rec.LectureID = lectureID
	watched := 0.0
	if rec.Completed {
		rec.Percentage = 0
		rec.Completed = false
	} else {
		rec.Percentage = 100
		rec.Completed = true
		watched = duration
	}
	t.records[lectureID] = rec
	t.enqueueLocked(rec, watched)

	if t.stopAdvance != nil {
		t.stopAdvance()
		t.stopAdvance = nil
	}
	if rec.Completed && !t.closed {
		t.stopAdvance = t.cfg.AfterFunc(t.cfg.AdvanceDelay, func() {
			t.mu.Lock()
			fn := t.onAdvance
			t.stopAdvance = nil
			t.mu.Unlock()
			if fn != nil {
				fn(lectureID)
			}
		})
	}
	t.mu.Unlock()
	return rec
}

// Flush persists the latest record for lectureID if a throttled update was
// skipped since the last write.
func (t *Tracker) Flush(lectureID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked(lectureID)
}

func (t *Tracker) flushLocked(lectureID string) {
	if !t.dirty[lectureID] {
		return
	}
	rec := t.records[lectureID]
	t.enqueueLocked(rec, rec.LastPosition)
}

// Close flushes every lecture, cancels a pending advance and waits for the
// worker to drain.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	for id := range t.dirty {
		t.flushLocked(id)
	}
	if t.stopAdvance != nil {
		t.stopAdvance()
		t.stopAdvance = nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	t.wg.Wait()
}

func (t *Tracker) enqueueLocked(rec course.ProgressRecord, watched float64) {
	last, seen := t.sent[rec.LectureID]
	t.sent[rec.LectureID] = sentState{percentage: rec.Percentage, completed: rec.Completed}
	delete(t.dirty, rec.LectureID)
	if t.closed {
		return
	}
	t.queue = append(t.queue, job{
		update: course.ProgressUpdate{
			UserID:           t.cfg.UserID,
			LectureID:        rec.LectureID,
			WatchTimeSeconds: watched,
			Completed:        rec.Completed,
		},
		record:       rec,
		syncComplete: !seen || last.completed != rec.Completed,
	})
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tracker) worker() {
	defer t.wg.Done()
	for {
		select {
		case <-t.wake:
			t.drain()
		case <-t.done:
			t.drain()
			return
		}
	}
}

func (t *Tracker) drain() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return
		}
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()
		t.persist(next)
	}
}

func (t *Tracker) persist(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.SaveTimeout)
	defer cancel()

	if t.cfg.Store != nil {
		if err := store.SetJSON(ctx, t.cfg.Store, t.cfg.UserID, store.ProgressKey(j.record.LectureID), j.record); err != nil {
			t.log.Warn("cache progress failed", "lecture_id", j.record.LectureID, "error", err)
		}
		if j.syncComplete {
			_, err := store.UpdateJSON(ctx, t.cfg.Store, t.cfg.UserID, store.KeyCompletedLectures, func(set store.StringSet) (store.StringSet, error) {
				if j.record.Completed {
					return set.With(j.record.LectureID), nil
				}
				return set.Without(j.record.LectureID), nil
			})
			if err != nil {
				t.log.Warn("update completed lectures failed", "lecture_id", j.record.LectureID, "error", err)
			}
		}
	}
	if t.cfg.Remote != nil {
		if err := t.cfg.Remote.SaveProgress(ctx, j.update); err != nil {
			t.log.Warn("save progress failed", "lecture_id", j.update.LectureID, "completed", j.update.Completed, "error", err)
		}
	}
}

func normalize(rec course.ProgressRecord) course.ProgressRecord {
	rec.Percentage = clampPct(rec.Percentage)
	rec.Completed = rec.Percentage >= course.CompletionThreshold
	if rec.LastPosition < 0 {
		rec.LastPosition = 0
	}
	return rec
}

func clampPct(p float64) float64 {
	return clampRange(p, 0, 100)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
