package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/csheth/lecturepad/internal/course"
	"github.com/csheth/lecturepad/internal/store"
)

type fakeSaver struct {
	mu      sync.Mutex
	updates []course.ProgressUpdate
	err     error
}

func (f *fakeSaver) SaveProgress(_ context.Context, u course.ProgressUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return f.err
}

func (f *fakeSaver) snapshot() []course.ProgressUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]course.ProgressUpdate(nil), f.updates...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTracker(t *testing.T, saver Saver, st store.Store) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tr := New(Config{UserID: "u1", Remote: saver, Store: st, Now: clock.Now})
	t.Cleanup(tr.Close)
	return tr, clock
}

func TestObserveCompletesAtNinetyPercent(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, nil, nil)
	rec := tr.Observe("l1", 540, 600)
	if rec.Percentage != 90 || !rec.Completed {
		t.Fatalf("expected 90%% completed, got %+v", rec)
	}
	rec = tr.Observe("l2", 539, 600)
	if rec.Completed {
		t.Fatalf("89.8%% should not be complete: %+v", rec)
	}
}

func TestObserveBoundsAndGuards(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, nil, nil)
	if rec := tr.Observe("l1", 900, 600); rec.Percentage != 100 || rec.LastPosition != 600 {
		t.Fatalf("expected clamp to 100%%, got %+v", rec)
	}
	if _, ok := tr.Record("l2"); ok {
		t.Fatal("unexpected record")
	}
	tr.Observe("l2", 10, 0)
	if _, ok := tr.Record("l2"); ok {
		t.Fatal("zero total must not create a record")
	}
}

func TestPercentageIsHighWaterMark(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, nil, nil)
	tr.Observe("l1", 300, 600)
	tr.Seek("l1", 60)
	rec := tr.Observe("l1", 61, 600)
	if rec.Percentage != 50 {
		t.Fatalf("percentage should not regress after a seek, got %v", rec.Percentage)
	}
	if rec.LastPosition != 61 {
		t.Fatalf("last position should follow playback, got %v", rec.LastPosition)
	}
}

func TestSeekUpdatesLastPositionImmediately(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, nil, nil)
	tr.Observe("l1", 300, 600)
	tr.Seek("l1", 42)
	rec, _ := tr.Record("l1")
	if rec.LastPosition != 42 || rec.Percentage != 50 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestPersistenceIsThrottled(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	tr, clock := newTracker(t, saver, nil)

	tr.Observe("l1", 10, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 20, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 25, 600)
	clock.Advance(10 * time.Second)
	tr.Observe("l1", 30, 600)
	tr.Close()

	got := saver.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 remote writes, got %d: %+v", len(got), got)
	}
	if got[0].WatchTimeSeconds != 10 || got[1].WatchTimeSeconds != 20 || got[2].WatchTimeSeconds != 30 {
		t.Fatalf("unexpected writes %+v", got)
	}
	if got[0].UserID != "u1" {
		t.Fatalf("user id missing from update: %+v", got[0])
	}
}

func TestForcedWritesDoNotSpendThrottleToken(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	tr, clock := newTracker(t, saver, nil)

	tr.Observe("l1", 1, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 60, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 65, 600)
	tr.Close()

	got := saver.snapshot()
	if len(got) != 3 || got[2].WatchTimeSeconds != 65 {
		t.Fatalf("first and delta writes should leave the interval token unspent, got %+v", got)
	}
}

func TestLargeDeltaBypassesThrottle(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	tr, clock := newTracker(t, saver, nil)
	tr.Observe("l1", 10, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 60, 600)
	tr.Close()

	if got := saver.snapshot(); len(got) != 2 {
		t.Fatalf("expected delta to force a write, got %d", len(got))
	}
}

func TestFlushWritesSkippedUpdate(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	tr, clock := newTracker(t, saver, nil)
	tr.Observe("l1", 10, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 20, 600)
	clock.Advance(time.Second)
	tr.Observe("l1", 25, 600)
	tr.Flush("l1")
	tr.Flush("l1")
	tr.Close()

	got := saver.snapshot()
	if len(got) != 3 || got[2].WatchTimeSeconds != 25 {
		t.Fatalf("expected flushed write at 25s, got %+v", got)
	}
}

func TestRemoteFailureIsNotSurfaced(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{err: errors.New("offline")}
	tr, _ := newTracker(t, saver, nil)
	rec := tr.Observe("l1", 540, 600)
	tr.Close()
	if !rec.Completed {
		t.Fatal("local record should still be completed")
	}
	if len(saver.snapshot()) != 1 {
		t.Fatal("expected one attempted write")
	}
}

func TestToggleCompleteSchedulesAdvance(t *testing.T) {
	t.Parallel()

	var scheduled []func()
	var stops int
	tr := New(Config{
		UserID: "u1",
		AfterFunc: func(d time.Duration, f func()) func() bool {
			if d != defaultAdvanceDelay {
				t.Errorf("unexpected delay %s", d)
			}
			scheduled = append(scheduled, f)
			return func() bool { stops++; return true }
		},
	})
	t.Cleanup(tr.Close)

	var advanced string
	tr.OnAdvance(func(id string) { advanced = id })

	rec := tr.ToggleComplete("l1", 600)
	if rec.Percentage != 100 || !rec.Completed {
		t.Fatalf("expected completed record, got %+v", rec)
	}
	if len(scheduled) != 1 {
		t.Fatalf("expected one scheduled advance, got %d", len(scheduled))
	}

	rec = tr.ToggleComplete("l1", 600)
	if rec.Percentage != 0 || rec.Completed {
		t.Fatalf("expected reset record, got %+v", rec)
	}
	if stops != 1 || len(scheduled) != 1 {
		t.Fatalf("un-completing should cancel without rescheduling (stops=%d scheduled=%d)", stops, len(scheduled))
	}

	tr.ToggleComplete("l1", 600)
	scheduled[1]()
	if advanced != "l1" {
		t.Fatalf("advance callback not fired, got %q", advanced)
	}
}

func TestMarkEndedCancelsPendingAdvance(t *testing.T) {
	t.Parallel()

	var stops int
	tr := New(Config{
		UserID: "u1",
		AfterFunc: func(time.Duration, func()) func() bool {
			return func() bool { stops++; return true }
		},
	})
	t.Cleanup(tr.Close)

	tr.ToggleComplete("l1", 600)
	tr.MarkEnded("l1", 600)
	if stops != 1 {
		t.Fatalf("expected the completion timer to be stopped once, got %d", stops)
	}
}

func TestMarkEndedPersistsFullWatch(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	tr, _ := newTracker(t, saver, nil)
	rec := tr.MarkEnded("l1", 600)
	tr.Close()
	if rec.Percentage != 100 || !rec.Completed || rec.LastPosition != 600 {
		t.Fatalf("unexpected record %+v", rec)
	}
	got := saver.snapshot()
	if len(got) != 1 || !got[0].Completed || got[0].WatchTimeSeconds != 600 {
		t.Fatalf("unexpected writes %+v", got)
	}
}

func TestLocalCacheAndCompletedSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	tr, _ := newTracker(t, nil, st)
	tr.Observe("l1", 540, 600)
	tr.Close()

	cached, ok, err := store.GetJSON[course.ProgressRecord](ctx, st, "u1", store.ProgressKey("l1"))
	if err != nil || !ok {
		t.Fatalf("GetJSON() = %v, %v", ok, err)
	}
	if cached.Percentage != 90 || !cached.Completed {
		t.Fatalf("unexpected cached record %+v", cached)
	}
	set, _, err := store.GetJSON[store.StringSet](ctx, st, "u1", store.KeyCompletedLectures)
	if err != nil || !set.Has("l1") {
		t.Fatalf("completed set missing l1: %v %v", set, err)
	}
}

func TestSeedPrefersRemoteAndFillsFromCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	if err := store.SetJSON(ctx, st, "u1", store.ProgressKey("l1"), course.ProgressRecord{LectureID: "l1", Percentage: 10}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	if err := store.SetJSON(ctx, st, "u1", store.ProgressKey("l2"), course.ProgressRecord{Percentage: 95, LastPosition: 570}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	tr, _ := newTracker(t, nil, st)
	tr.Seed(ctx, []course.ProgressRecord{{LectureID: "l1", Percentage: 40, LastPosition: 240}})

	if rec, _ := tr.Record("l1"); rec.Percentage != 40 || rec.LastPosition != 240 {
		t.Fatalf("remote record should win, got %+v", rec)
	}
	rec, ok := tr.Record("l2")
	if !ok || rec.LectureID != "l2" || !rec.Completed {
		t.Fatalf("cached record should fill the gap, got %+v", rec)
	}
}
