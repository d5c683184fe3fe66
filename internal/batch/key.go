package batch

import (
	"cmp"
	"math"

	"github.com/gogpu/noteroll/render"
)

// State is the drawing state a primitive is submitted with.
// The zero Transform is treated as identity.
type State struct {
	Brush     render.Brush
	Pen       render.Pen
	Transform render.Matrix
	// Clip is in device pixels. The zero Rect means no clip.
	Clip  render.Rect
	Blend render.BlendMode
}

// Key identifies primitives that can share one submission. It is a plain
// value type and compares by value, so it is used directly as a map key.
type Key struct {
	Brush     render.Brush
	Pen       render.Pen
	RX, RY    float64
	Transform render.Matrix
	Clip      render.Rect
	Blend     render.BlendMode
}

func keyOf(rr render.RoundedRect, st State) Key {
	return Key{
		Brush:     st.Brush,
		Pen:       st.Pen,
		RX:        rr.RX,
		RY:        rr.RY,
		Transform: st.Transform,
		Clip:      st.Clip,
		Blend:     st.Blend,
	}
}

// HasClip reports whether the key carries a clip rectangle.
func (k Key) HasClip() bool { return k.Clip != (render.Rect{}) }

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func hashWords(words ...uint64) uint64 {
	hash := uint64(fnvOffset)
	for _, w := range words {
		hash ^= w
		hash *= fnvPrime
	}
	return hash
}

func hashTransform(m render.Matrix) uint64 {
	return hashWords(
		math.Float64bits(m.A), math.Float64bits(m.B), math.Float64bits(m.C),
		math.Float64bits(m.D), math.Float64bits(m.E), math.Float64bits(m.F),
	)
}

func hashColor(c render.Color) uint64 {
	return hashWords(uint64(c.R)<<24 | uint64(c.G)<<16 | uint64(c.B)<<8 | uint64(c.A))
}

func hashPen(p render.Pen) uint64 {
	return hashWords(hashColor(p.Color), math.Float64bits(p.Width))
}

// sortKey caches the hashes used to order batches at flush time.
type sortKey struct {
	transform uint64
	brush     uint64
	pen       uint64
}

func newSortKey(k Key) sortKey {
	return sortKey{
		transform: hashTransform(k.Transform),
		brush:     hashColor(k.Brush.Color),
		pen:       hashPen(k.Pen),
	}
}

// compareBatches orders by transform, blend mode, brush, pen, corner radii
// and finally clip, so backends see the fewest state changes.
func compareBatches(a, b *Data) int {
	if c := cmp.Compare(a.sort.transform, b.sort.transform); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.Blend, b.Key.Blend); c != 0 {
		return c
	}
	if c := cmp.Compare(a.sort.brush, b.sort.brush); c != 0 {
		return c
	}
	if c := cmp.Compare(a.sort.pen, b.sort.pen); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.RX, b.Key.RX); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.RY, b.Key.RY); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.Clip.X, b.Key.Clip.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.Clip.Y, b.Key.Clip.Y); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.Clip.W, b.Key.Clip.W); c != 0 {
		return c
	}
	return cmp.Compare(a.Key.Clip.H, b.Key.Clip.H)
}
