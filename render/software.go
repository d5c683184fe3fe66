// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// RasterBackend is the CPU fallback backend.
//
// Shapes are scan converted with golang.org/x/image/vector and composited
// into a double-buffered *image.RGBA. Text uses the Go Regular face.
// Rendering is anti-aliased and honors every BlendMode.
//
// RasterBackend never fails a draw call for valid input, which makes it the
// backend of last resort for the pipeline.
type RasterBackend struct {
	fb         *FrameBuffer
	background Color

	z       vector.Rasterizer
	scratch *image.Alpha
	path    outline
	hole    outline

	clips  []image.Rectangle
	xforms []Matrix
	blend  BlendMode

	font  *opentype.Font
	faces map[float64]font.Face

	inFrame bool
	closed  bool
	stats   Stats
	log     *slog.Logger
}

// RasterOption configures a RasterBackend.
type RasterOption func(*RasterBackend)

// WithBackground sets the color frames are cleared to.
func WithBackground(c Color) RasterOption {
	return func(r *RasterBackend) {
		r.background = c
	}
}

// NewRasterBackend creates a CPU backend.
func NewRasterBackend(opts ...RasterOption) *RasterBackend {
	r := &RasterBackend{
		fb:         NewFrameBuffer(),
		background: RGB(0x1E, 0x1E, 0x1E),
		faces:      make(map[float64]font.Face),
		log:        discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns "raster".
func (r *RasterBackend) Name() string { return "raster" }

// Kind returns KindRaster.
func (r *RasterBackend) Kind() Kind { return KindRaster }

// Capabilities reports full blend mode and text support.
func (r *RasterBackend) Capabilities() Capabilities {
	return Capabilities{
		SupportsAntialiasing: true,
		SupportsBlendModes:   true,
		SupportsText:         true,
	}
}

// SetLogger sets the logger for diagnostics.
func (r *RasterBackend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = discardLogger()
	}
	r.log = l
}

// BeginFrame starts drawing into a cleared back buffer.
func (r *RasterBackend) BeginFrame(width, height int) error {
	if r.closed {
		return ErrBackendClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	dst := r.fb.Begin(width, height, r.background)
	r.clips = append(r.clips[:0], dst.Bounds())
	r.xforms = append(r.xforms[:0], Identity())
	r.blend = BlendSrcOver
	r.inFrame = true
	return nil
}

// FillRoundedRect fills rr with brush and strokes its inside edge with pen.
func (r *RasterBackend) FillRoundedRect(rr RoundedRect, brush Brush, pen Pen) error {
	if err := r.check(); err != nil {
		return err
	}
	r.fillRoundedRect(rr, brush, pen)
	r.stats.DrawCalls++
	r.stats.Primitives++
	return nil
}

// DrawRoundedRectsInstanced draws every rect with the shared style.
func (r *RasterBackend) DrawRoundedRectsInstanced(rects []RoundedRect, brush Brush, pen Pen) error {
	if err := r.check(); err != nil {
		return err
	}
	for _, rr := range rects {
		r.fillRoundedRect(rr, brush, pen)
	}
	r.stats.InstancedCalls++
	r.stats.Primitives += uint64(len(rects))
	return nil
}

// DrawLine strokes p0→p1 with butt caps.
func (r *RasterBackend) DrawLine(p0, p1 Point, pen Pen) error {
	if err := r.check(); err != nil {
		return err
	}
	if pen.None() {
		return nil
	}
	r.stats.DrawCalls++
	if !r.path.segmentQuad(p0, p1, pen.Width) {
		return nil
	}
	m := r.transform()
	a, b := m.Apply(p0), m.Apply(p1)
	sx, sy := m.ScaleFactors()
	pad := pen.Width * math.Max(sx, sy)
	bounds := Rect{
		X: math.Min(a.X, b.X) - pad, Y: math.Min(a.Y, b.Y) - pad,
		W: math.Abs(a.X-b.X) + 2*pad, H: math.Abs(a.Y-b.Y) + 2*pad,
	}
	r.fill(bounds, pen.Color, false)
	return nil
}

// DrawText draws text with its baseline origin at p.
// Only the translation part of the current transform applies.
func (r *RasterBackend) DrawText(text string, p Point, size float64, c Color) error {
	if err := r.check(); err != nil {
		return err
	}
	if text == "" || c.Transparent() || size <= 0 {
		return nil
	}
	face, err := r.face(size)
	if err != nil {
		return fmt.Errorf("render: text face: %w", err)
	}
	dst, ok := r.fb.Back().SubImage(r.clip()).(*image.RGBA)
	if !ok || dst.Bounds().Empty() {
		return nil
	}
	q := r.transform().Apply(p)
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c.NRGBA()),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(q.X * 64), Y: fixed.Int26_6(q.Y * 64)},
	}
	d.DrawString(text)
	r.stats.TextRuns++
	return nil
}

// PushClip intersects the current clip with r.
func (r *RasterBackend) PushClip(rc Rect) {
	if !r.inFrame {
		return
	}
	px := r.transform().ApplyRect(rc).Pixels().Intersect(r.clip())
	r.clips = append(r.clips, px)
}

// PopClip restores the previous clip. The frame clip is never popped.
func (r *RasterBackend) PopClip() {
	if len(r.clips) > 1 {
		r.clips = r.clips[:len(r.clips)-1]
	}
}

// PushTransform premultiplies the current transform with m.
func (r *RasterBackend) PushTransform(m Matrix) {
	if !r.inFrame {
		return
	}
	r.xforms = append(r.xforms, m.Multiply(r.transform()))
}

// PopTransform restores the previous transform.
func (r *RasterBackend) PopTransform() {
	if len(r.xforms) > 1 {
		r.xforms = r.xforms[:len(r.xforms)-1]
	}
}

// SetBlendMode sets the blend mode for subsequent draws.
func (r *RasterBackend) SetBlendMode(mode BlendMode) { r.blend = mode }

// EndFrame presents the back buffer.
func (r *RasterBackend) EndFrame() error {
	if err := r.check(); err != nil {
		return err
	}
	r.fb.Present()
	r.inFrame = false
	r.stats.Frames++
	return nil
}

// AbortFrame discards the back buffer; the last presented frame stays.
func (r *RasterBackend) AbortFrame() {
	if !r.inFrame {
		return
	}
	r.fb.Discard()
	r.inFrame = false
	r.stats.AbortedFrames++
}

// Image returns a copy of the last presented frame, or nil.
// Safe to call from any goroutine.
func (r *RasterBackend) Image() *image.RGBA { return r.fb.Snapshot() }

// Stats returns cumulative counters.
func (r *RasterBackend) Stats() Stats { return r.stats }

// Close releases cached font faces.
func (r *RasterBackend) Close() error {
	if r.closed {
		return nil
	}
	r.AbortFrame()
	for size, f := range r.faces {
		_ = f.Close()
		delete(r.faces, size)
	}
	r.closed = true
	return nil
}

func (r *RasterBackend) check() error {
	if r.closed {
		return ErrBackendClosed
	}
	if !r.inFrame {
		return ErrFrameNotStarted
	}
	return nil
}

func (r *RasterBackend) transform() Matrix { return r.xforms[len(r.xforms)-1] }

func (r *RasterBackend) clip() image.Rectangle { return r.clips[len(r.clips)-1] }

func (r *RasterBackend) fillRoundedRect(rr RoundedRect, brush Brush, pen Pen) {
	if !rr.Valid() {
		return
	}
	rx, ry := rr.ClampedRadii()
	bounds := r.transform().ApplyRect(rr.Rect)

	if !brush.None() {
		r.path.roundedRect(rr.Rect, rx, ry)
		r.fill(bounds, brush.Color, false)
	}
	if pen.None() {
		return
	}

	r.path.roundedRect(rr.Rect, rx, ry)
	inner := rr.Rect.Inset(pen.Width)
	hasHole := !inner.Empty()
	if hasHole {
		r.hole.roundedRect(inner, math.Max(0, rx-pen.Width), math.Max(0, ry-pen.Width))
	}
	r.fill(bounds, pen.Color, hasHole)
}

// fill rasterizes r.path (minus r.hole when set) inside the device-space
// bounds and composites c with the current blend mode.
func (r *RasterBackend) fill(bounds Rect, c Color, withHole bool) {
	area := bounds.Pixels().Intersect(r.clip())
	if area.Empty() || c.Transparent() {
		return
	}
	origin := Pt(float64(area.Min.X), float64(area.Min.Y))
	w, h := area.Dx(), area.Dy()

	r.z.Reset(w, h)
	m := r.transform()
	r.path.emit(&r.z, m, origin, false)
	if withHole {
		r.hole.emit(&r.z, m, origin, true)
	}

	dst := r.fb.Back()
	switch r.blend {
	case BlendSrcOver, BlendSrc:
		if r.blend == BlendSrc {
			r.z.DrawOp = draw.Src
		}
		r.z.Draw(dst, area, image.NewUniform(c.NRGBA()), image.Point{})
	default:
		mask := r.mask(w, h)
		r.z.DrawOp = draw.Src
		r.z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
		compositeMask(dst, area, mask, c, r.blend)
	}
}

// mask returns a scratch alpha image of at least w×h, resized to exactly
// w×h bounds.
func (r *RasterBackend) mask(w, h int) *image.Alpha {
	if r.scratch == nil || cap(r.scratch.Pix) < w*h {
		r.scratch = image.NewAlpha(image.Rect(0, 0, w, h))
		return r.scratch
	}
	r.scratch.Pix = r.scratch.Pix[:w*h]
	r.scratch.Stride = w
	r.scratch.Rect = image.Rect(0, 0, w, h)
	return r.scratch
}

func (r *RasterBackend) face(size float64) (font.Face, error) {
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	if r.font == nil {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return nil, err
		}
		r.font = f
	}
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	r.faces[size] = face
	return face, nil
}

// compositeMask blends c through mask into dst over area using the
// separable Multiply or Screen formulas on premultiplied values.
func compositeMask(dst *image.RGBA, area image.Rectangle, mask *image.Alpha, c Color, mode BlendMode) {
	sc := c.Premultiplied()
	for y := 0; y < area.Dy(); y++ {
		row := dst.PixOffset(area.Min.X, area.Min.Y+y)
		for x := 0; x < area.Dx(); x++ {
			cov := float32(mask.Pix[y*mask.Stride+x]) / 255
			if cov == 0 {
				continue
			}
			sa := sc[3] * cov
			i := row + 4*x
			da := float32(dst.Pix[i+3]) / 255
			for ch := range 3 {
				s := sc[ch] * cov
				d := float32(dst.Pix[i+ch]) / 255
				var out float32
				switch mode {
				case BlendMultiply:
					out = s*d + s*(1-da) + d*(1-sa)
				case BlendScreen:
					out = s + d - s*d
				}
				dst.Pix[i+ch] = uint8(min(max(out, 0), 1)*255 + 0.5)
			}
			dst.Pix[i+3] = uint8(min(sa+da*(1-sa), 1)*255 + 0.5)
		}
	}
}

// Ensure RasterBackend implements CapableBackend.
var _ CapableBackend = (*RasterBackend)(nil)
