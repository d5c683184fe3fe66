package spatial

import (
	"fmt"
	"math"
)

// Box is an axis-aligned rectangle in index space.
// X is time and Y is pitch for note data.
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// NewBox returns the box covering [x, x+w) × [y, y+h).
func NewBox(x, y, w, h float64) Box {
	return Box{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}

// Width returns the extent along X.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the extent along Y.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Area returns Width × Height.
func (b Box) Area() float64 { return b.Width() * b.Height() }

// Empty reports whether the box has no area.
// A box containing NaN is empty.
func (b Box) Empty() bool {
	return !(b.MinX < b.MaxX) || !(b.MinY < b.MaxY)
}

// Valid reports whether the box has positive finite extent on both axes.
func (b Box) Valid() bool {
	for _, v := range [...]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !b.Empty()
}

// Intersects reports whether b and o overlap with positive area.
// Touching edges do not intersect.
func (b Box) Intersects(o Box) bool {
	return b.MinX < o.MaxX && o.MinX < b.MaxX &&
		b.MinY < o.MaxY && o.MinY < b.MaxY
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return o.MinX >= b.MinX && o.MaxX <= b.MaxX &&
		o.MinY >= b.MinY && o.MaxY <= b.MaxY
}

// Expand returns b grown by dx on both X sides and dy on both Y sides.
func (b Box) Expand(dx, dy float64) Box {
	return Box{MinX: b.MinX - dx, MinY: b.MinY - dy, MaxX: b.MaxX + dx, MaxY: b.MaxY + dy}
}

// String returns a human readable representation.
func (b Box) String() string {
	return fmt.Sprintf("[%g,%g)x[%g,%g)", b.MinX, b.MaxX, b.MinY, b.MaxY)
}
