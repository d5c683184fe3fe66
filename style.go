package noteroll

import (
	"sync/atomic"

	"github.com/gogpu/noteroll/internal/cache"
	"github.com/gogpu/noteroll/render"
	"github.com/gogpu/noteroll/spatial"
)

// Note geometry in device pixels.
const (
	CornerRadius = 3.0
	MinNoteWidth = 4.0

	// ShadowOffset is how far the shadow is shifted right and down.
	ShadowOffset = 2.0

	// Labels are drawn inside notes at least this large.
	labelMinWidth  = 30.0
	labelMinHeight = 15.0
	labelMaxSize   = 12.0

	// velocityLevels quantizes velocity so that notes differing only
	// slightly in velocity still share a batch.
	velocityLevels = 8

	densityAlpha = 0.6

	// styleCacheCapacity is the initial per-shard capacity. The cache
	// grows as higher track numbers appear.
	styleCacheCapacity = 64
)

// styleCacheSize returns the per-shard capacity that holds every style of
// tracks tracks: each velocity level, selected or not, with headroom for
// uneven shard hashing and the previous epoch.
func styleCacheSize(tracks int) int {
	keys := tracks * velocityLevels * 2
	return max(styleCacheCapacity, 4*keys/cache.ShardCount)
}

// noteStyle is the resolved drawing state of one note.
type noteStyle struct {
	brush  render.Brush
	pen    render.Pen
	hidden bool
}

type styleKey struct {
	track    int
	level    uint8
	selected bool
	epoch    uint64
}

func hashStyleKey(k styleKey) uint64 {
	h := uint64(k.track)<<8 | uint64(k.level)<<1
	if k.selected {
		h |= 1
	}
	return cache.Mix64(h ^ k.epoch<<40)
}

// velocityLevel maps 0–127 to 0–(velocityLevels-1).
func velocityLevel(v int) uint8 {
	v = min(max(v, 0), MaxVelocity)
	return uint8(v * (velocityLevels - 1) / MaxVelocity)
}

// styler derives note styles from the palette and track states. It is
// safe for concurrent use.
type styler struct {
	palette Palette
	tracks  *trackTable
	cache   *cache.Cache[styleKey, noteStyle]

	// sized is the track count the cache is sized for.
	sized atomic.Int64
}

func newStyler(p Palette, tracks *trackTable) *styler {
	return &styler{
		palette: p,
		tracks:  tracks,
		cache:   cache.New[styleKey, noteStyle](styleCacheCapacity, hashStyleKey),
	}
}

// style returns the style of n.
func (s *styler) style(n Note, selected bool) noteStyle {
	if int64(n.Track) >= s.sized.Load() {
		s.fit(n.Track + 1)
	}
	k := styleKey{
		track:    n.Track,
		level:    velocityLevel(n.Velocity),
		selected: selected,
		epoch:    s.tracks.currentEpoch(),
	}
	return s.cache.GetOrCreate(k, func() noteStyle { return s.derive(k) })
}

// fit grows the cache to hold the styles of tracks tracks.
func (s *styler) fit(tracks int) {
	for {
		cur := s.sized.Load()
		if int64(tracks) <= cur {
			return
		}
		if s.sized.CompareAndSwap(cur, int64(tracks)) {
			s.cache.Grow(styleCacheSize(tracks))
			return
		}
	}
}

func (s *styler) derive(k styleKey) noteStyle {
	ts := s.tracks.get(k.track)
	if ts.hidden() {
		return noteStyle{hidden: true}
	}

	var fill, border render.Color
	width := 1.0
	if k.selected {
		fill = s.palette.SelectedFill
		border = s.palette.SelectedBorder
		width = 2
	} else {
		fill = s.palette.NoteFill.Brightness(0.5 + 0.5*float64(k.level)/(velocityLevels-1))
		border = s.palette.NoteBorder
	}
	if ts.Tint.A > 0 {
		tint := ts.Tint
		tint.A = fill.A
		fill = fill.Lerp(tint, float64(ts.Tint.A)/255)
	}
	return noteStyle{
		brush: render.Solid(fill.WithAlpha(ts.Opacity)),
		pen:   render.Pen{Color: border.WithAlpha(ts.Opacity), Width: width},
	}
}

func (s *styler) shadow() noteStyle {
	return noteStyle{brush: render.Solid(s.palette.Shadow)}
}

func (s *styler) preview(c render.Color) noteStyle {
	return noteStyle{
		brush: render.Solid(c),
		pen:   render.Pen{Color: s.palette.SelectedBorder, Width: 1},
	}
}

func (s *styler) density() noteStyle {
	return noteStyle{brush: render.Solid(s.palette.Density.WithAlpha(densityAlpha))}
}

func (s *styler) stats() cache.Stats { return s.cache.Stats() }

// noteRect returns the rounded rectangle of a note in content space:
// viewport pixels before scrolling. Short notes are widened to
// MinNoteWidth.
func noteRect(b spatial.Box, zoomX, zoomY float64) render.RoundedRect {
	x := b.MinX * zoomX
	w := max((b.MaxX-b.MinX)*zoomX, MinNoteWidth)
	y := (PitchRows - b.MaxY) * zoomY
	h := (b.MaxY - b.MinY) * zoomY
	return render.RRect(x, y, w, h, CornerRadius)
}

// labelFits reports whether a pitch label fits inside r.
func labelFits(r render.Rect) bool { return r.W > labelMinWidth && r.H > labelMinHeight }
