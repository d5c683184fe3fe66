package noteroll

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/noteroll/render"
)

// TrackState controls how the notes of one track are drawn.
type TrackState struct {
	// Visible hides the whole track when false.
	Visible bool

	// Opacity in [0, 1] scales the alpha of fill and border.
	Opacity float64

	// Tint is mixed into the fill color. Its alpha is the tint strength;
	// a transparent tint leaves the fill unchanged.
	Tint render.Color
}

// DefaultTrackState returns the state of tracks that were never set:
// visible, opaque, untinted.
func DefaultTrackState() TrackState {
	return TrackState{Visible: true, Opacity: 1}
}

func (s TrackState) normalized() TrackState {
	switch {
	case math.IsNaN(s.Opacity) || s.Opacity < 0:
		s.Opacity = 0
	case s.Opacity > 1:
		s.Opacity = 1
	}
	return s
}

// hidden reports whether nothing of the track is drawn.
func (s TrackState) hidden() bool { return !s.Visible || s.Opacity == 0 }

// trackTable holds per-track states. Every change bumps the epoch so
// cached styles derived from an older state are not used again.
type trackTable struct {
	mu     sync.RWMutex
	states map[int]TrackState
	epoch  atomic.Uint64
}

func newTrackTable() *trackTable {
	return &trackTable{states: make(map[int]TrackState)}
}

func (t *trackTable) get(track int) TrackState {
	t.mu.RLock()
	s, ok := t.states[track]
	t.mu.RUnlock()
	if !ok {
		return DefaultTrackState()
	}
	return s
}

func (t *trackTable) set(track int, s TrackState) {
	s = s.normalized()
	t.mu.Lock()
	if old, ok := t.states[track]; ok && old == s {
		t.mu.Unlock()
		return
	}
	t.states[track] = s
	t.mu.Unlock()
	t.epoch.Add(1)
}

func (t *trackTable) reset(track int) {
	t.mu.Lock()
	_, ok := t.states[track]
	delete(t.states, track)
	t.mu.Unlock()
	if ok {
		t.epoch.Add(1)
	}
}

func (t *trackTable) currentEpoch() uint64 { return t.epoch.Load() }
