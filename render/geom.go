// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"
	"math"
)

// Point is a 2D point in pixels.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X, Y, W, H float64
}

// Empty reports whether r has no area. NaN sizes are empty.
func (r Rect) Empty() bool { return !(r.W > 0) || !(r.H > 0) }

// Valid reports whether r has positive finite size and finite origin.
func (r Rect) Valid() bool {
	for _, v := range [...]float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !r.Empty()
}

// Area returns W × H.
func (r Rect) Area() float64 { return r.W * r.H }

// Right returns X + W.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns Y + H.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Intersects reports whether r and o overlap with positive area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Intersect returns the overlap of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Inset shrinks r by d on every side.
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, W: r.W - 2*d, H: r.H - 2*d}
}

// Pixels returns the integer rectangle covering r.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())), int(math.Ceil(r.Bottom())),
	)
}

// RoundedRect is a rectangle with elliptical corners.
type RoundedRect struct {
	Rect
	RX, RY float64
}

// RRect is shorthand for a rounded rectangle with equal corner radii.
func RRect(x, y, w, h, radius float64) RoundedRect {
	return RoundedRect{Rect: Rect{X: x, Y: y, W: w, H: h}, RX: radius, RY: radius}
}

// ClampedRadii returns the corner radii limited to half the size.
func (rr RoundedRect) ClampedRadii() (rx, ry float64) {
	rx = math.Max(0, math.Min(rr.RX, rr.W/2))
	ry = math.Max(0, math.Min(rr.RY, rr.H/2))
	return rx, ry
}

// Matrix is a 2D affine transform:
//
//	| A C E |
//	| B D F |
//	| 0 0 1 |
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{A: 1, D: 1} }

// Translate returns a translation.
func Translate(x, y float64) Matrix { return Matrix{A: 1, D: 1, E: x, F: y} }

// Scale returns a scale about the origin.
func Scale(sx, sy float64) Matrix { return Matrix{A: sx, D: sy} }

// IsIdentity reports whether m is the identity transform.
func (m Matrix) IsIdentity() bool { return m == Identity() }

// Multiply returns m followed by n applied to the result, i.e. n × m.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		A: n.A*m.A + n.C*m.B,
		B: n.B*m.A + n.D*m.B,
		C: n.A*m.C + n.C*m.D,
		D: n.B*m.C + n.D*m.D,
		E: n.A*m.E + n.C*m.F + n.E,
		F: n.B*m.E + n.D*m.F + n.F,
	}
}

// Apply transforms p.
func (m Matrix) Apply(p Point) Point {
	return Point{X: m.A*p.X + m.C*p.Y + m.E, Y: m.B*p.X + m.D*p.Y + m.F}
}

// ApplyRect returns the bounding box of r after transformation.
func (m Matrix) ApplyRect(r Rect) Rect {
	if m.B == 0 && m.C == 0 {
		x0, x1 := m.A*r.X+m.E, m.A*r.Right()+m.E
		y0, y1 := m.D*r.Y+m.F, m.D*r.Bottom()+m.F
		return Rect{X: math.Min(x0, x1), Y: math.Min(y0, y1), W: math.Abs(x1 - x0), H: math.Abs(y1 - y0)}
	}
	pts := [4]Point{
		m.Apply(Pt(r.X, r.Y)), m.Apply(Pt(r.Right(), r.Y)),
		m.Apply(Pt(r.X, r.Bottom())), m.Apply(Pt(r.Right(), r.Bottom())),
	}
	minX, minY, maxX, maxY := pts[0].X, pts[0].Y, pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// ScaleFactors returns the lengths of the transformed unit vectors.
func (m Matrix) ScaleFactors() (sx, sy float64) {
	return math.Hypot(m.A, m.B), math.Hypot(m.C, m.D)
}
