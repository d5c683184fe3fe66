package noteroll

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/gogpu/noteroll/internal/batch"
	"github.com/gogpu/noteroll/internal/parallel"
	"github.com/gogpu/noteroll/perf"
	"github.com/gogpu/noteroll/render"
	"github.com/gogpu/noteroll/spatial"
)

// Strategy is the drawing strategy chosen from the visible note count.
type Strategy uint8

const (
	// StrategyDetailed draws labels and shadows.
	StrategyDetailed Strategy = iota
	// StrategyBatched draws plain notes, with shadows while cheap enough.
	StrategyBatched
	// StrategyDensity collapses notes narrower than a pixel into runs.
	StrategyDensity
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyDetailed:
		return "detailed"
	case StrategyBatched:
		return "batched"
	case StrategyDensity:
		return "density"
	default:
		return "unknown"
	}
}

// minBatchCap is the floor for batch caps lowered by the monitor.
const minBatchCap = 100

// ErrInvalidViewport is returned for viewports without positive size and
// zoom.
var ErrInvalidViewport = errors.New("noteroll: invalid viewport")

// ErrFramePanic is returned when drawing a frame panicked.
var ErrFramePanic = errors.New("noteroll: frame panicked")

// FrameResult describes one RenderFrame call.
type FrameResult struct {
	// Presented is true when the frame reached the screen.
	Presented bool
	// Skipped is true when no frame was started.
	Skipped bool
	// Err is the reason the frame was skipped or aborted.
	Err error

	Strategy    Strategy
	Visible     int
	Hidden      int
	Primitives  int
	Batches     int
	Culled      int
	Labels      int
	Runs        int
	Shadows     bool
	Previews    int
	Precomputed bool

	Batching batch.FrameStats
	Duration time.Duration
}

type label struct {
	text string
	at   render.Point
	size float64
}

// frameScratch holds buffers reused across frames.
type frameScratch struct {
	visible []int
	cells   []uint64
	labels  []label
}

// RenderFrame draws the notes visible in vp and then the overlay, and
// presents the frame. delta is the time since the previous frame; zero
// measures the frame itself.
//
// A frame that cannot complete is aborted so the previous frame stays on
// screen. Repeated hardware failures switch the window to the rasterizer.
func (p *Pipeline) RenderFrame(vp Viewport, delta time.Duration, draw DrawFunc) FrameResult {
	if p.closed.Load() {
		return FrameResult{Skipped: true, Err: ErrClosed}
	}
	if !p.frameMu.TryLock() {
		return FrameResult{Skipped: true}
	}
	res, ended := p.lockedFrame(vp, delta, draw)
	if ended {
		p.sc.SetDragging(false)
	}
	return res
}

// lockedFrame runs one frame under frameMu. A panic inside the frame
// aborts it and counts as a failed hardware frame.
func (p *Pipeline) lockedFrame(vp Viewport, delta time.Duration, draw DrawFunc) (res FrameResult, ended bool) {
	defer p.frameMu.Unlock()
	defer func() {
		ended = p.edits.ended
		p.edits.ended = false
	}()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("%w: %v", ErrFramePanic, r)
		p.backend.AbortFrame()
		p.aborted++
		p.logger().Error("noteroll: frame aborted", "backend", p.backend.Name(), "err", err)
		p.noteHardwareFrame(false, err)
		res = FrameResult{Err: err}
	}()
	return p.frame(vp, delta, draw), false
}

func (p *Pipeline) frame(vp Viewport, delta time.Duration, draw DrawFunc) FrameResult {
	clock := p.opts.clock
	start := clock()

	p.applyLogger()
	p.syncBackend()
	if p.edits.drain(p.events) > 0 && p.edits.gesture {
		p.sc.SetDragging(true)
	}
	if !vp.Valid() {
		return FrameResult{Skipped: true, Err: fmt.Errorf("%w: %+v", ErrInvalidViewport, vp)}
	}
	if vp.ZoomX != p.zoomX || vp.ZoomY != p.zoomY {
		p.zoomX, p.zoomY = vp.ZoomX, vp.ZoomY
		p.gen.Bump()
	}

	w, h := vp.Pixels()
	if err := p.backend.BeginFrame(w, h); err != nil {
		p.logger().Error("noteroll: begin frame failed", "backend", p.backend.Name(), "err", err)
		p.noteHardwareFrame(false, err)
		return FrameResult{Skipped: true, Err: err}
	}
	p.monitor.BeginFrame(delta)

	t := clock()
	snap, reused := p.items(vp)
	visible := p.visible(snap, vp)
	p.monitor.RecordStage(stageQuery, since(clock, t))

	res := FrameResult{
		Visible:     len(visible),
		Precomputed: reused,
		Strategy:    p.strategy(len(visible)),
	}
	res.Shadows = !p.shadowsOff && res.Strategy != StrategyDensity &&
		len(visible) <= p.opts.shadowThreshold

	t = clock()
	p.batcher.Begin(vp.Rect())
	content := render.Translate(-vp.ScrollX, -vp.ScrollY)
	if res.Shadows {
		p.addShadows(snap, visible, content)
		p.batcher.Flush()
	}
	p.addNotes(snap, visible, vp, content, &res)
	if p.edits.hasPreview() {
		p.batcher.Flush()
		res.Previews = p.addPreviews(snap, vp, content)
	}
	st := p.batcher.End()
	p.monitor.RecordStage(stageBatch, since(clock, t))

	res.Batching = st
	res.Primitives = st.Submitted
	res.Batches = st.Batches
	res.Culled = st.Culled
	res.Labels = p.drawLabels()

	t = clock()
	if err := p.overlay(draw, vp); err != nil {
		p.backend.AbortFrame()
		p.aborted++
		p.logger().Error("noteroll: frame aborted", "err", err)
		res.Err = err
		p.finish(&res, start, st)
		return res
	}
	p.monitor.RecordStage(stageOverlay, since(clock, t))

	t = clock()
	err := p.backend.EndFrame()
	p.monitor.RecordStage(stagePresent, since(clock, t))
	if err != nil {
		p.aborted++
		p.logger().Error("noteroll: end frame failed", "backend", p.backend.Name(), "err", err)
		res.Err = err
	} else {
		res.Presented = true
	}

	var reason error
	switch {
	case err != nil:
		reason = err
	case st.Degraded:
		reason = fmt.Errorf("%d instanced submissions failed", st.FailedSubmissions)
	}
	p.noteHardwareFrame(reason == nil, reason)

	p.finish(&res, start, st)
	p.background(vp, snap, len(visible))
	return res
}

// applyLogger installs a logger set with SetLogger since the last frame.
func (p *Pipeline) applyLogger() {
	l := p.pendingLog.Swap(nil)
	if l == nil {
		return
	}
	p.log.Store(l)
	p.batcher.SetLogger(l)
	setBackendLogger(p.backend, l)
}

// syncBackend picks up a backend switched by another pipeline sharing
// the window.
func (p *Pipeline) syncBackend() {
	b := p.sc.Backend()
	if b == p.backend {
		return
	}
	p.backend = b
	p.batcher.SetBackend(b)
	setBackendLogger(b, p.logger())
}

// noteHardwareFrame counts consecutive failed hardware frames and switches
// to the rasterizer after fallbackAfter of them.
func (p *Pipeline) noteHardwareFrame(ok bool, reason error) {
	if p.backend.Kind() != render.KindHardware {
		return
	}
	if ok {
		p.failures = 0
		return
	}
	p.failures++
	p.logger().Warn("noteroll: degraded hardware frame",
		"consecutive", p.failures, "limit", p.opts.fallbackAfter, "reason", reason)
	if p.failures < p.opts.fallbackAfter {
		return
	}
	p.failures = 0
	p.backend = p.sc.SwitchToRaster(fmt.Errorf("%d consecutive failed frames: %w", p.opts.fallbackAfter, reason))
	p.batcher.SetBackend(p.backend)
	setBackendLogger(p.backend, p.logger())
}

// items returns prepared notes covering vp, from the published snapshot
// when it still applies.
func (p *Pipeline) items(vp Viewport) (*snapshot, bool) {
	version := p.store.version.Load()
	if s := p.snap.Load(); s.serves(vp, version) {
		return s, true
	}
	s, _ := p.buildSnapshot(parallel.Token{}, vp, p.opts.viewportMargin, false)
	p.snap.Store(s)
	return s, false
}

// visible returns the indices of snapshot items on screen, reusing the
// scratch buffer.
func (p *Pipeline) visible(s *snapshot, vp Viewport) []int {
	out := p.scratch.visible[:0]
	screen := render.Rect{X: vp.ScrollX, Y: vp.ScrollY, W: vp.Width, H: vp.Height}
	for i := range s.items {
		if s.items[i].rect.Intersects(screen) {
			out = append(out, i)
		}
	}
	p.scratch.visible = out
	return out
}

func (p *Pipeline) strategy(visible int) Strategy {
	switch {
	case p.lodForced || visible >= p.opts.densityThreshold:
		return StrategyDensity
	case visible < p.opts.detailThreshold:
		return StrategyDetailed
	default:
		return StrategyBatched
	}
}

func (p *Pipeline) addShadows(s *snapshot, visible []int, content render.Matrix) {
	sh := p.styles.shadow()
	for _, i := range visible {
		it := &s.items[i]
		if p.styles.style(it.note, false).hidden {
			continue
		}
		rr := it.rect
		rr.X += ShadowOffset
		rr.Y += ShadowOffset
		p.batcher.Add(rr, batch.State{Brush: sh.brush, Transform: content})
	}
}

func (p *Pipeline) addNotes(s *snapshot, visible []int, vp Viewport, content render.Matrix, res *FrameResult) {
	p.scratch.labels = p.scratch.labels[:0]
	p.scratch.cells = p.scratch.cells[:0]
	labels := res.Strategy == StrategyDetailed

	for _, i := range visible {
		it := &s.items[i]
		st := p.styles.style(it.note, p.edits.selected(it.note.ID))
		if st.hidden {
			res.Hidden++
			continue
		}
		if res.Strategy == StrategyDensity && it.width < 1 {
			x := math.Floor(it.rect.X - vp.ScrollX)
			p.scratch.cells = append(p.scratch.cells, cellKey(it.note.Pitch, int(x)))
			continue
		}
		p.batcher.Add(it.rect, batch.State{Brush: st.brush, Pen: st.pen, Transform: content})
		if labels {
			p.queueLabel(it, vp)
		}
	}
	if len(p.scratch.cells) > 0 {
		res.Runs = p.addRuns(vp)
	}
}

// cellKey packs a pitch row and pixel column so that sorting groups each
// row and orders its columns.
func cellKey(pitch, col int) uint64 {
	return uint64(pitch)<<32 | uint64(uint32(int32(col)+math.MaxInt32/2))
}

func cellCol(k uint64) int { return int(int32(uint32(k)) - math.MaxInt32/2) }

// addRuns merges sub-pixel notes into one rectangle per run of adjacent
// columns in a pitch row.
func (p *Pipeline) addRuns(vp Viewport) int {
	cells := p.scratch.cells
	slices.Sort(cells)
	cells = slices.Compact(cells)
	d := p.styles.density()

	runs := 0
	for i := 0; i < len(cells); {
		pitch := int(cells[i] >> 32)
		first := cellCol(cells[i])
		last := first
		j := i + 1
		for j < len(cells) && cells[j]>>32 == uint64(pitch) && cellCol(cells[j]) == last+1 {
			last++
			j++
		}
		rr := render.RRect(float64(first), vp.Y(pitch), float64(last-first+1), vp.ZoomY, 0)
		p.batcher.Add(rr, batch.State{Brush: d.brush})
		runs++
		i = j
	}
	return runs
}

func (p *Pipeline) queueLabel(it *prepared, vp Viewport) {
	r := it.rect.Rect
	r.X -= vp.ScrollX
	r.Y -= vp.ScrollY
	if !labelFits(r) {
		return
	}
	size := min(labelMaxSize, r.H-4)
	p.scratch.labels = append(p.scratch.labels, label{
		text: PitchName(it.note.Pitch),
		at:   render.Pt(r.X+CornerRadius, r.Y+r.H/2+size/3),
		size: size,
	})
}

// drawLabels draws queued pitch labels above the notes. Failures are
// counted and the first is logged.
func (p *Pipeline) drawLabels() int {
	drawn := 0
	var first error
	c := p.opts.palette.Label
	for _, l := range p.scratch.labels {
		if err := p.backend.DrawText(l.text, l.at, l.size, c); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		drawn++
	}
	if first != nil {
		p.logger().Warn("noteroll: labels skipped",
			"failed", len(p.scratch.labels)-drawn, "err", first)
	}
	return drawn
}

// addPreviews queues drag, resize and creation previews above the notes.
func (p *Pipeline) addPreviews(s *snapshot, vp Viewport, content render.Matrix) int {
	n := 0
	tpq := p.opts.ticksPerQuarter
	add := func(note Note, id ColorID) {
		st := p.styles.preview(p.opts.palette.Get(id))
		it := prepare(note, tpq, vp.ZoomX, vp.ZoomY)
		if p.batcher.Add(it.rect, batch.State{Brush: st.brush, Pen: st.pen, Transform: content}) {
			n++
		}
	}
	if p.edits.drag != nil || p.edits.resize != nil {
		ids := p.previewIDs()
		for _, id := range ids {
			note, ok := p.store.get(id)
			if !ok {
				continue
			}
			if moved, color, ok := p.edits.previewNote(note); ok {
				add(moved, color)
			}
		}
	}
	if c := p.edits.creation; c != nil && c.Duration > 0 && c.Pitch >= 0 && c.Pitch <= MaxPitch {
		add(Note{Start: max(c.Start, 0), Duration: c.Duration, Pitch: c.Pitch}, ColorCreationPreview)
	}
	return n
}

func (p *Pipeline) previewIDs() []NoteID {
	var ids []NoteID
	if d := p.edits.drag; d != nil {
		ids = append(ids, d.IDs...)
	}
	if r := p.edits.resize; r != nil {
		ids = append(ids, r.IDs...)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// overlay runs the draw callback, turning a panic into an error.
func (p *Pipeline) overlay(draw DrawFunc, vp Viewport) (err error) {
	if draw == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("noteroll: draw callback panicked: %v", r)
		}
	}()
	if err := draw(p.backend, vp); err != nil {
		return fmt.Errorf("noteroll: draw callback: %w", err)
	}
	return nil
}

// finish records the frame with the monitor, adapts to its suggestions
// and publishes the report.
func (p *Pipeline) finish(res *FrameResult, start time.Time, st batch.FrameStats) {
	p.monitor.RecordPrimitives(st.Submitted)
	p.monitor.RecordBatches(st.Batches)
	p.monitor.RecordGPUMemory(st.PeakMemory)
	sample := p.monitor.EndFrame()
	res.Duration = since(p.opts.clock, start)

	pr := p.monitor.Report(st.Submitted)
	p.adapt(pr.Suggestions)

	p.report.Store(&Report{
		AvgFPS:            pr.AvgFPS,
		FrameTimeMs:       pr.FrameTimeMs(),
		WorstFrameMs:      pr.WorstFrameMs(),
		P95FrameTimeMs:    float64(pr.P95FrameTime) / float64(time.Millisecond),
		GPUMemoryEstimate: pr.GPUMemory,
		Suggestions:       pr.Suggestions,
		Backend:           p.backend.Name(),
		FallbackReason:    errString(p.sc.FallbackReason()),
		Primitives:        res.Primitives,
		Batches:           res.Batches,
		Culled:            res.Culled,
		Visible:           res.Visible,
		Strategy:          res.Strategy.String(),
		Shadows:           res.Shadows,
		Frames:            pr.Frames,
		Aborted:           p.aborted,
		Notes:             p.store.len(),
		StyleHitRate:      p.styles.stats().HitRate(),
		IndexRebuilds:     p.rebuilds.Load(),
	})

	p.logger().Debug("noteroll: frame",
		"strategy", res.Strategy.String(),
		"visible", res.Visible,
		"primitives", st.Submitted,
		"batches", st.Batches,
		"forced", st.Forced(),
		"fps", sample.FPS)
}

// adapt applies the monitor's suggestions. Each adaptation holds for at
// least one monitor window before it is reconsidered.
func (p *Pipeline) adapt(sugs []perf.Suggestion) {
	frames := p.monitor.Frames()
	window := uint64(p.opts.monitorWindow)

	switch {
	case perf.Has(sugs, perf.ReduceSecondaryEffects):
		if !p.shadowsOff {
			p.logger().Info("noteroll: shadows disabled by performance monitor")
		}
		p.shadowsOff, p.shadowsAt = true, frames
	case p.shadowsOff && frames-p.shadowsAt >= window:
		p.shadowsOff = false
	}

	switch {
	case perf.Has(sugs, perf.EnableLODCulling):
		if !p.lodForced {
			p.logger().Info("noteroll: density strategy forced by performance monitor")
		}
		p.lodForced, p.lodAt = true, frames
	case p.lodForced && frames-p.lodAt >= window:
		p.lodForced = false
	}

	if perf.Has(sugs, perf.LowerBatchThreshold) && (p.capChangeAt == 0 || frames-p.capChangeAt >= window) {
		cur := p.batcher.SizeCap()
		if next := max(cur/2, minBatchCap); next < cur {
			p.batcher.SetSizeCap(next)
			p.capChangeAt = frames
			p.logger().Info("noteroll: batch cap lowered", "from", cur, "to", next)
		}
	}
}

// background schedules precompute and index maintenance jobs.
func (p *Pipeline) background(vp Viewport, s *snapshot, visible int) {
	if every := uint64(p.opts.optimizeEvery); every > 0 && p.monitor.Frames()%every == 0 {
		p.scheduleOptimize()
	}
	if visible <= p.opts.precomputeThreshold {
		return
	}
	if !s.fresh(vp) {
		p.schedulePrecompute(vp)
	}
}

// worldBox is the time×pitch box of times [t0, t1) and pitches p0
// through p1.
func worldBox(t0, t1 float64, p0, p1 int) spatial.Box {
	return spatial.Box{MinX: t0, MinY: float64(p0), MaxX: t1, MaxY: float64(p1 + 1)}
}
