// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"log/slog"
)

var (
	// ErrFrameNotStarted is returned by draw calls outside BeginFrame/EndFrame.
	ErrFrameNotStarted = errors.New("render: frame not started")

	// ErrBackendClosed is returned by any call after Close.
	ErrBackendClosed = errors.New("render: backend closed")

	// ErrInvalidSize is returned by BeginFrame for non-positive sizes.
	ErrInvalidSize = errors.New("render: invalid frame size")

	// ErrSubmitPanic is returned when the host submitter panics.
	ErrSubmitPanic = errors.New("render: submitter panicked")
)

// Kind identifies a backend implementation.
type Kind uint8

const (
	// KindRaster is the CPU rasterizer.
	KindRaster Kind = iota
	// KindHardware is the instanced GPU path.
	KindHardware
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// Backend executes drawing commands for one frame at a time.
//
// A frame starts with BeginFrame and ends with either EndFrame, which
// presents it, or AbortFrame, which discards it and leaves the previously
// presented frame visible.
//
// Draw calls that fail return an error and leave the frame usable, so the
// caller can retry the same content through a simpler call. Clip and
// transform stacks are reset at BeginFrame.
//
// Thread Safety: Backends are NOT thread-safe. Each backend is driven from
// the render goroutine only.
type Backend interface {
	// Name returns a human readable backend name for reports.
	Name() string

	// Kind identifies the implementation.
	Kind() Kind

	// BeginFrame starts a frame of the given size in pixels.
	BeginFrame(width, height int) error

	// FillRoundedRect fills and strokes a single rounded rectangle.
	FillRoundedRect(rr RoundedRect, brush Brush, pen Pen) error

	// DrawRoundedRectsInstanced draws many rounded rectangles sharing one
	// brush and pen in a single submission.
	DrawRoundedRectsInstanced(rects []RoundedRect, brush Brush, pen Pen) error

	// DrawLine strokes a straight segment.
	DrawLine(p0, p1 Point, pen Pen) error

	// DrawText draws a single line of text with its baseline at p.
	DrawText(text string, p Point, size float64, c Color) error

	// PushClip intersects the clip with r in current user space.
	PushClip(r Rect)
	// PopClip restores the previous clip.
	PopClip()

	// PushTransform premultiplies the current transform with m.
	PushTransform(m Matrix)
	// PopTransform restores the previous transform.
	PopTransform()

	// SetBlendMode sets the blend mode for subsequent draws.
	SetBlendMode(mode BlendMode)

	// EndFrame presents the frame.
	EndFrame() error

	// AbortFrame discards the frame in progress. It is a no-op when no
	// frame is active.
	AbortFrame()

	// Stats returns cumulative counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats holds cumulative backend counters.
type Stats struct {
	Frames         uint64
	AbortedFrames  uint64
	FailedFrames   uint64
	DrawCalls      uint64
	InstancedCalls uint64
	Primitives     uint64
	TextRuns       uint64
}

// Capabilities describes the features supported by a backend.
type Capabilities struct {
	// IsGPU indicates if this is a GPU-accelerated backend.
	IsGPU bool

	// SupportsAntialiasing indicates if anti-aliased rendering is supported.
	SupportsAntialiasing bool

	// SupportsBlendModes indicates if all BlendMode values are honored.
	SupportsBlendModes bool

	// SupportsText indicates if DrawText produces glyphs directly.
	// The hardware path records text runs for the host instead.
	SupportsText bool

	// MaxInstances is the largest instanced submission (0 = unlimited).
	MaxInstances int
}

// CapableBackend is an optional interface for backends that can report
// their capabilities.
type CapableBackend interface {
	Backend

	// Capabilities returns the backend's capabilities.
	Capabilities() Capabilities
}

// LoggerSetter is implemented by backends that accept a logger.
type LoggerSetter interface {
	SetLogger(*slog.Logger)
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }
