// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render provides the drawing backends of the note renderer.
//
// A [Backend] draws rounded rectangles, lines and text one frame at a time.
// Two implementations exist:
//
//   - [GPUBackend]: encodes instanced draws of a single WGSL pipeline
//     (compiled with naga) for a GPU queue owned by the host application.
//   - [RasterBackend]: anti-aliased CPU rendering with golang.org/x/image
//     into a double-buffered image.
//
// # Key Principle
//
// The renderer RECEIVES a GPU device from the host application, it does NOT
// create its own. The host passes a [DeviceHandle] (a gpucontext
// DeviceProvider) and a [Submitter] that executes encoded command lists.
//
// # Backend selection
//
// [Negotiate] is an explicit decision function: given the device handle,
// submitter and configuration, it returns the hardware backend when every
// precondition holds and the pipeline compiles, and the rasterizer together
// with the reason otherwise. It never panics.
//
//	n := render.Negotiate(render.NegotiateConfig{
//	    Device:    provider,
//	    Submitter: host,
//	})
//	if n.Fallback() {
//	    log.Printf("software rendering: %v", n.Reason)
//	}
//	backend := n.Backend
//
// # Frames
//
// A frame is BeginFrame, draw calls, then EndFrame to present or AbortFrame
// to discard. An aborted or failed frame leaves the previously presented
// frame visible.
package render
