// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/draw"
	"sync"
)

// FrameBuffer is a double-buffered CPU render target.
//
// Drawing goes to the back buffer between Begin and Present. Present swaps
// it to the front; Discard leaves the front untouched so the last complete
// frame remains visible. Snapshot is safe to call from any goroutine.
type FrameBuffer struct {
	mu    sync.RWMutex
	front *image.RGBA

	back    *image.RGBA
	drawing bool
}

// NewFrameBuffer creates an empty frame buffer. The first Begin allocates.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Begin prepares a back buffer of the given size cleared to bg and returns it.
func (fb *FrameBuffer) Begin(width, height int, bg Color) *image.RGBA {
	r := image.Rect(0, 0, width, height)
	if fb.back == nil || fb.back.Bounds() != r {
		fb.back = image.NewRGBA(r)
	}
	draw.Draw(fb.back, r, image.NewUniform(bg.NRGBA()), image.Point{}, draw.Src)
	fb.drawing = true
	return fb.back
}

// Back returns the buffer being drawn, or nil outside Begin/Present.
func (fb *FrameBuffer) Back() *image.RGBA {
	if !fb.drawing {
		return nil
	}
	return fb.back
}

// Present makes the back buffer the visible frame.
func (fb *FrameBuffer) Present() {
	if !fb.drawing {
		return
	}
	fb.mu.Lock()
	fb.front, fb.back = fb.back, fb.front
	fb.mu.Unlock()
	fb.drawing = false
}

// Discard abandons the back buffer contents.
func (fb *FrameBuffer) Discard() {
	fb.drawing = false
}

// Snapshot returns a copy of the last presented frame, or nil if no frame
// has been presented.
func (fb *FrameBuffer) Snapshot() *image.RGBA {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	if fb.front == nil {
		return nil
	}
	img := image.NewRGBA(fb.front.Bounds())
	copy(img.Pix, fb.front.Pix)
	return img
}
