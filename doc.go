// Package noteroll renders the notes of a piano-roll MIDI editor.
//
// # Overview
//
// A [Pipeline] draws tens to hundreds of thousands of notes per frame as
// rounded rectangles. Notes live in a uniform grid spatial index, so a
// frame only touches the notes near the viewport. Visible notes are
// grouped by drawing state and submitted in instanced batches under a
// bounded GPU memory budget. A frame monitor watches frame times and the
// pipeline reacts to its suggestions by dropping shadows, forcing the
// density strategy or lowering the batch size.
//
// # Quick Start
//
//	sc := noteroll.NewSyncContext(render.NegotiateConfig{
//	    Device:    provider,  // gpucontext.DeviceProvider from the host
//	    Submitter: submitter, // uploads instance buffers
//	})
//	defer sc.Close()
//
//	p, err := noteroll.New(sc)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	p.AddNotes(notes)
//	res := p.RenderFrame(vp, 0, nil)
//
// Without a device the rasterizer in package render is selected and
// [SyncContext.FallbackReason] says why.
//
// # Coordinates
//
// Note times are ticks; ticks per quarter note default to 480. The
// viewport maps quarter notes to pixel columns with ZoomX and pitch rows
// to pixel rows with ZoomY. Pitch 127 is the top row.
//
// # Strategies
//
// The visible note count selects the strategy of a frame:
//   - below 1 000: detailed, with pitch labels and shadows
//   - below 50 000: batched
//   - from 50 000: density, where notes narrower than a pixel merge into
//     runs per pitch row
//
// # Threading
//
// Note changes, track states, [Pipeline.Post] and
// [Pipeline.PerformanceReport] may be called from any goroutine.
// RenderFrame runs on one render goroutine. Background workers prepare
// large viewports ahead of scrolling and keep the spatial index tuned.
package noteroll
