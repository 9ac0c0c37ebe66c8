package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/csheth/lecturepad/internal/logger"
)

// ErrPlayRejected mirrors a browser refusing unmuted autoplay.
var ErrPlayRejected = errors.New("playback: play rejected")

// SimulatedMedia drives a Controller from a wall-clock instead of a decoder.
// The terminal host feeds it with Advance on every tick.
type SimulatedMedia struct {
	mu       sync.Mutex
	ctrl     *Controller
	playing  bool
	position float64
	duration float64
	rate     float64

	// RejectPlay makes every Play call fail.
	RejectPlay bool
}

// NewSimulated returns a media clock and a controller bound to it.
func NewSimulated(log *logger.Logger) (*SimulatedMedia, *Controller) {
	media := &SimulatedMedia{rate: 1}
	ctrl := New(media, log)
	media.ctrl = ctrl
	return media, ctrl
}

// Attach binds media to ctrl for metadata and end-of-media callbacks.
func (m *SimulatedMedia) Attach(ctrl *Controller) {
	m.mu.Lock()
	m.ctrl = ctrl
	m.mu.Unlock()
}

func (m *SimulatedMedia) Load(src Source) error {
	m.mu.Lock()
	m.playing = false
	m.position = 0
	m.duration = src.Duration
	ctrl := m.ctrl
	m.mu.Unlock()
	if ctrl != nil {
		ctrl.MetadataReady(src.Duration)
	}
	return nil
}

func (m *SimulatedMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectPlay {
		return ErrPlayRejected
	}
	m.playing = true
	return nil
}

func (m *SimulatedMedia) Pause() error {
	m.mu.Lock()
	m.playing = false
	m.mu.Unlock()
	return nil
}

func (m *SimulatedMedia) Seek(t float64) error {
	m.mu.Lock()
	m.position = t
	m.mu.Unlock()
	return nil
}

func (m *SimulatedMedia) SetVolume(float64) {}

func (m *SimulatedMedia) SetMuted(bool) {}

func (m *SimulatedMedia) SetRate(r float64) {
	m.mu.Lock()
	m.rate = r
	m.mu.Unlock()
}

// Advance moves the clock by dt at the current rate and reports the new
// position to the controller, signalling the end when the duration is hit.
func (m *SimulatedMedia) Advance(dt time.Duration) {
	m.mu.Lock()
	if !m.playing || m.ctrl == nil {
		m.mu.Unlock()
		return
	}
	m.position += dt.Seconds() * m.rate
	ended := m.duration > 0 && m.position >= m.duration
	if ended {
		m.position = m.duration
		m.playing = false
	}
	pos, ctrl := m.position, m.ctrl
	m.mu.Unlock()

	ctrl.Tick(pos)
	if ended {
		ctrl.MediaEnded()
	}
}
