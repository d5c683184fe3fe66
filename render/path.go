// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import "math"

// kappa is the control point distance for a quarter circle approximated by
// a cubic Bézier curve.
const kappa = 0.5522847498307936

type segKind uint8

const (
	segLine segKind = iota
	segCubic
)

type segment struct {
	kind   segKind
	c1, c2 Point
	to     Point
}

// outline is a single closed contour of lines and cubic curves.
type outline struct {
	start Point
	segs  []segment
}

func (o *outline) reset(start Point) {
	o.start = start
	o.segs = o.segs[:0]
}

func (o *outline) lineTo(p Point) {
	o.segs = append(o.segs, segment{kind: segLine, to: p})
}

func (o *outline) cubeTo(c1, c2, p Point) {
	o.segs = append(o.segs, segment{kind: segCubic, c1: c1, c2: c2, to: p})
}

// roundedRect builds the contour of rr clockwise in user space.
func (o *outline) roundedRect(r Rect, rx, ry float64) {
	x0, y0, x1, y1 := r.X, r.Y, r.Right(), r.Bottom()
	if rx <= 0 || ry <= 0 {
		o.reset(Pt(x0, y0))
		o.lineTo(Pt(x1, y0))
		o.lineTo(Pt(x1, y1))
		o.lineTo(Pt(x0, y1))
		return
	}
	kx, ky := rx*kappa, ry*kappa
	o.reset(Pt(x0+rx, y0))
	o.lineTo(Pt(x1-rx, y0))
	o.cubeTo(Pt(x1-rx+kx, y0), Pt(x1, y0+ry-ky), Pt(x1, y0+ry))
	o.lineTo(Pt(x1, y1-ry))
	o.cubeTo(Pt(x1, y1-ry+ky), Pt(x1-rx+kx, y1), Pt(x1-rx, y1))
	o.lineTo(Pt(x0+rx, y1))
	o.cubeTo(Pt(x0+rx-kx, y1), Pt(x0, y1-ry+ky), Pt(x0, y1-ry))
	o.lineTo(Pt(x0, y0+ry))
	o.cubeTo(Pt(x0, y0+ry-ky), Pt(x0+rx-kx, y0), Pt(x0+rx, y0))
}

// segmentQuad builds the rectangle around p0→p1 with the given width.
// It reports false for zero-length segments.
func (o *outline) segmentQuad(p0, p1 Point, width float64) bool {
	dx, dy := p1.X-p0.X, p1.Y-p0.Y
	l := math.Hypot(dx, dy)
	if l == 0 || width <= 0 {
		return false
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	o.reset(Pt(p0.X+nx, p0.Y+ny))
	o.lineTo(Pt(p1.X+nx, p1.Y+ny))
	o.lineTo(Pt(p1.X-nx, p1.Y-ny))
	o.lineTo(Pt(p0.X-nx, p0.Y-ny))
	return true
}

// pathSink receives device-space path commands.
type pathSink interface {
	MoveTo(x, y float32)
	LineTo(x, y float32)
	CubeTo(bx, by, cx, cy, dx, dy float32)
	ClosePath()
}

// emit sends the contour to s after applying m and subtracting origin.
// With reverse set the contour is traversed backwards, which flips its
// winding so it cuts a hole when emitted after an enclosing contour.
func (o *outline) emit(s pathSink, m Matrix, origin Point, reverse bool) {
	tr := func(p Point) (float32, float32) {
		q := m.Apply(p)
		return float32(q.X - origin.X), float32(q.Y - origin.Y)
	}

	if !reverse {
		s.MoveTo(tr(o.start))
		for _, sg := range o.segs {
			switch sg.kind {
			case segLine:
				s.LineTo(tr(sg.to))
			case segCubic:
				bx, by := tr(sg.c1)
				cx, cy := tr(sg.c2)
				dx, dy := tr(sg.to)
				s.CubeTo(bx, by, cx, cy, dx, dy)
			}
		}
		s.ClosePath()
		return
	}

	// Walking backwards: each segment ends at the previous segment's end
	// point, or at start for the first one.
	n := len(o.segs)
	if n == 0 {
		return
	}
	s.MoveTo(tr(o.segs[n-1].to))
	for i := n - 1; i >= 0; i-- {
		from := o.start
		if i > 0 {
			from = o.segs[i-1].to
		}
		sg := o.segs[i]
		switch sg.kind {
		case segLine:
			s.LineTo(tr(from))
		case segCubic:
			bx, by := tr(sg.c2)
			cx, cy := tr(sg.c1)
			dx, dy := tr(from)
			s.CubeTo(bx, by, cx, cy, dx, dy)
		}
	}
	s.ClosePath()
}
