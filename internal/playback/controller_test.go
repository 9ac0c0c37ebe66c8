package playback

import (
	"testing"
	"time"
)

func loaded(t *testing.T, duration float64) (*SimulatedMedia, *Controller) {
	t.Helper()
	media, ctrl := NewSimulated(nil)
	if err := ctrl.Load(Source{LectureID: "l1", URL: "x.mp4", Duration: duration}, 0); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return media, ctrl
}

func TestLoadReachesReadyOnMetadata(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 600)
	snap := ctrl.Snapshot()
	if snap.State != StateReady || snap.Duration != 600 || snap.Position != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestResumePositionAppliedOnMetadata(t *testing.T) {
	t.Parallel()

	_, ctrl := NewSimulated(nil)
	var seeked float64
	ctrl.Subscribe(func(ev Event) {
		if ev.Kind == EventSeeked {
			seeked = ev.Position
		}
	})
	if err := ctrl.Load(Source{LectureID: "l1", Duration: 100}, 250); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := ctrl.Position(); got != 100 {
		t.Fatalf("resume should clamp to duration, got %v", got)
	}
	if seeked != 100 {
		t.Fatalf("expected seeked event at 100, got %v", seeked)
	}
}

func TestPlayWhileLoadingDefersUntilReady(t *testing.T) {
	t.Parallel()

	media := &SimulatedMedia{rate: 1}
	ctrl := New(media, nil)
	if err := ctrl.Load(Source{LectureID: "l1", Duration: 60}, 0); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ctrl.Play() {
		t.Fatal("play should be deferred while loading")
	}
	media.Attach(ctrl)
	ctrl.MetadataReady(60)
	if got := ctrl.Snapshot().State; got != StatePlaying {
		t.Fatalf("expected deferred play to start, got %s", got)
	}
}

func TestRejectedPlayStaysPaused(t *testing.T) {
	t.Parallel()

	media, ctrl := loaded(t, 60)
	media.RejectPlay = true
	if ctrl.Play() {
		t.Fatal("Play() should report failure")
	}
	if got := ctrl.Snapshot().State; got != StatePaused {
		t.Fatalf("expected paused after rejected play, got %s", got)
	}
}

func TestSeekClampsAndKeepsPlayState(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 100)
	ctrl.Play()
	if got := ctrl.Seek(-5); got != 0 {
		t.Fatalf("Seek(-5) = %v, want 0", got)
	}
	if got := ctrl.Seek(1000); got != 100 {
		t.Fatalf("Seek(1000) = %v, want 100", got)
	}
	if got := ctrl.Snapshot().State; got != StatePlaying {
		t.Fatalf("seek should keep playing, got %s", got)
	}
}

func TestSeekFromEndedLandsPaused(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 100)
	ctrl.Play()
	ctrl.MediaEnded()
	if ctrl.Snapshot().Position != 100 {
		t.Fatal("ended should pin position to duration")
	}
	ctrl.Seek(30)
	if snap := ctrl.Snapshot(); snap.State != StatePaused || snap.Position != 30 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSettersClamp(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 10)
	tests := []struct {
		name string
		set  func() float64
		want float64
	}{
		{"volume high", func() float64 { return ctrl.SetVolume(1.5) }, 1},
		{"volume low", func() float64 { return ctrl.SetVolume(-1) }, 0},
		{"rate high", func() float64 { return ctrl.SetRate(9) }, 2},
		{"rate low", func() float64 { return ctrl.SetRate(0.1) }, 0.25},
		{"rate ok", func() float64 { return ctrl.SetRate(1.5) }, 1.5},
	}
	for _, tt := range tests {
		if got := tt.set(); got != tt.want {
			t.Fatalf("%s: got %v want %v", tt.name, got, tt.want)
		}
	}
}

func TestBufferingOnlyWhilePlayingOrPaused(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 10)
	ctrl.SetBuffering(true)
	if ctrl.Snapshot().Buffering {
		t.Fatal("ready state should not buffer")
	}
	ctrl.Play()
	ctrl.SetBuffering(true)
	if snap := ctrl.Snapshot(); !snap.Buffering || snap.State != StatePlaying {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	ctrl.MediaEnded()
	if ctrl.Snapshot().Buffering {
		t.Fatal("ended should clear buffering")
	}
}

func TestSimulatedClockEmitsTimeUpdatesAndEnd(t *testing.T) {
	t.Parallel()

	media, ctrl := loaded(t, 3)
	var updates, ended int
	unsubscribe := ctrl.Subscribe(func(ev Event) {
		switch ev.Kind {
		case EventTimeUpdate:
			updates++
		case EventEnded:
			ended++
		}
	})
	defer unsubscribe()

	ctrl.SetRate(2)
	ctrl.Play()
	media.Advance(time.Second)
	if got := ctrl.Position(); got != 2 {
		t.Fatalf("expected position 2 at 2x, got %v", got)
	}
	media.Advance(time.Second)
	if ended != 1 || ctrl.Snapshot().State != StateEnded {
		t.Fatalf("expected one end event, got %d (%s)", ended, ctrl.Snapshot().State)
	}
	if updates != 2 {
		t.Fatalf("expected 2 time updates, got %d", updates)
	}
}

func TestPlayAfterEndedRestarts(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 10)
	ctrl.Play()
	ctrl.MediaEnded()
	ctrl.Play()
	if snap := ctrl.Snapshot(); snap.State != StatePlaying || snap.Position != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	_, ctrl := loaded(t, 10)
	var calls int
	unsubscribe := ctrl.Subscribe(func(Event) { calls++ })
	ctrl.Play()
	unsubscribe()
	ctrl.Pause()
	if calls != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", calls)
	}
}
