package noteroll

import (
	"math"

	"github.com/gogpu/noteroll/render"
	"github.com/gogpu/noteroll/spatial"
)

// Viewport maps time×pitch space to pixels.
//
// ScrollX and ScrollY are pixel offsets of the visible area. ZoomX is pixels
// per quarter note and ZoomY pixels per pitch row. Pitch 127 is the top row.
type Viewport struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	ZoomX   float64 `json:"zoomX"`
	ZoomY   float64 `json:"zoomY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Valid reports whether the viewport has positive finite size and zoom.
func (v Viewport) Valid() bool {
	for _, f := range [...]float64{v.ScrollX, v.ScrollY, v.ZoomX, v.ZoomY, v.Width, v.Height} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return v.ZoomX > 0 && v.ZoomY > 0 && v.Width > 0 && v.Height > 0
}

// Rect returns the viewport in device pixels.
func (v Viewport) Rect() render.Rect { return render.Rect{W: v.Width, H: v.Height} }

// Pixels returns the integer frame size.
func (v Viewport) Pixels() (w, h int) {
	return int(math.Ceil(v.Width)), int(math.Ceil(v.Height))
}

// World returns the visible time×pitch box.
func (v Viewport) World() spatial.Box {
	return spatial.Box{
		MinX: v.ScrollX / v.ZoomX,
		MaxX: (v.ScrollX + v.Width) / v.ZoomX,
		MinY: PitchRows - (v.ScrollY+v.Height)/v.ZoomY,
		MaxY: PitchRows - v.ScrollY/v.ZoomY,
	}
}

// Expanded returns World grown by margin times its size on every side.
func (v Viewport) Expanded(margin float64) spatial.Box {
	w := v.World()
	return w.Expand(w.Width()*margin, w.Height()*margin)
}

// X returns the pixel column of time t in quarter notes.
func (v Viewport) X(t float64) float64 { return t*v.ZoomX - v.ScrollX }

// Y returns the pixel row of the top edge of pitch.
func (v Viewport) Y(pitch int) float64 { return float64(MaxPitch-pitch)*v.ZoomY - v.ScrollY }

// TimeAt returns the time at pixel column x.
func (v Viewport) TimeAt(x float64) float64 { return (x + v.ScrollX) / v.ZoomX }

// PitchAt returns the pitch row under pixel row y.
func (v Viewport) PitchAt(y float64) int {
	return MaxPitch - int(math.Floor((y+v.ScrollY)/v.ZoomY))
}

// BoxRect maps a time×pitch box to device pixels.
func (v Viewport) BoxRect(b spatial.Box) render.Rect {
	x0, x1 := v.X(b.MinX), v.X(b.MaxX)
	y0 := (PitchRows-b.MaxY)*v.ZoomY - v.ScrollY
	y1 := (PitchRows-b.MinY)*v.ZoomY - v.ScrollY
	return render.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// covers reports whether o lies inside v's expanded world box, so a
// snapshot taken for v still serves o.
func (v Viewport) covers(o Viewport, margin float64) bool {
	return v.ZoomX == o.ZoomX && v.ZoomY == o.ZoomY &&
		v.Expanded(margin).Contains(o.World())
}
