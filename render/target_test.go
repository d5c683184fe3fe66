// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image/color"
	"testing"
)

func TestFrameBuffer_PresentSwaps(t *testing.T) {
	fb := NewFrameBuffer()
	if fb.Snapshot() != nil {
		t.Fatal("Snapshot() before any frame should be nil")
	}
	if fb.Back() != nil {
		t.Fatal("Back() outside a frame should be nil")
	}

	dst := fb.Begin(4, 3, RGB(10, 20, 30))
	if got := dst.Bounds().Dx(); got != 4 {
		t.Errorf("width = %d, want 4", got)
	}
	if fb.Back() != dst {
		t.Error("Back() should return the buffer from Begin")
	}
	dst.SetRGBA(1, 1, color.RGBA{R: 255, A: 255})
	fb.Present()

	snap := fb.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot() after Present is nil")
	}
	if got := snap.RGBAAt(0, 0); got != (color.RGBA{10, 20, 30, 255}) {
		t.Errorf("background = %v", got)
	}
	if got := snap.RGBAAt(1, 1); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("drawn pixel = %v", got)
	}
	if fb.Back() != nil {
		t.Error("Back() after Present should be nil")
	}
}

func TestFrameBuffer_DiscardKeepsFront(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Begin(2, 2, RGB(0, 0, 255))
	fb.Present()

	dst := fb.Begin(2, 2, RGB(255, 0, 0))
	dst.SetRGBA(0, 0, color.RGBA{G: 255, A: 255})
	fb.Discard()

	if got := fb.Snapshot().RGBAAt(0, 0); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("after Discard pixel = %v, want previous frame", got)
	}
}

func TestFrameBuffer_SnapshotIsCopy(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Begin(1, 1, RGB(1, 2, 3))
	fb.Present()

	a := fb.Snapshot()
	a.SetRGBA(0, 0, color.RGBA{})
	if got := fb.Snapshot().RGBAAt(0, 0); got != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("front mutated through snapshot: %v", got)
	}
}

func TestFrameBuffer_Resize(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Begin(2, 2, Color{})
	fb.Present()
	fb.Begin(5, 7, Color{})
	fb.Present()
	if b := fb.Snapshot().Bounds(); b.Dx() != 5 || b.Dy() != 7 {
		t.Errorf("bounds = %v, want 5x7", b)
	}
}
