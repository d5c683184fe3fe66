package noteroll

import (
	"github.com/gogpu/noteroll/internal/parallel"
	"github.com/gogpu/noteroll/render"
)

// precomputeChunk is the number of notes prepared between cancellation
// checks.
const precomputeChunk = 2048

// prepared is a note with its rectangle in content space.
type prepared struct {
	note Note
	rect render.RoundedRect
	// width is the unwidened width in pixels.
	width float64
}

// snapshot holds the notes of an expanded viewport, ready to draw. It is
// immutable once published.
type snapshot struct {
	vp      Viewport
	margin  float64
	version uint64
	items   []prepared
}

// serves reports whether s can stand in for a query at vp.
func (s *snapshot) serves(vp Viewport, version uint64) bool {
	return s != nil && s.version == version && s.vp.covers(vp, s.margin)
}

// fresh reports whether vp is still well inside the snapshot, so no new
// one needs to be prepared yet.
func (s *snapshot) fresh(vp Viewport) bool {
	return s.vp.covers(vp, s.margin/2)
}

func prepare(n Note, tpq int, zoomX, zoomY float64) prepared {
	b := n.Bounds(tpq)
	return prepared{
		note:  n,
		rect:  noteRect(b, zoomX, zoomY),
		width: b.Width() * zoomX,
	}
}

// buildSnapshot queries the expanded viewport and prepares every note.
// It returns false when tok went stale before the work finished.
func (p *Pipeline) buildSnapshot(tok parallel.Token, vp Viewport, margin float64, warm bool) (*snapshot, bool) {
	notes, version := p.store.collect(nil, vp.Expanded(margin))
	items := make([]prepared, len(notes))
	tpq := p.opts.ticksPerQuarter
	done := parallel.Chunks(tok, len(notes), precomputeChunk, func(lo, hi int) bool {
		for i := lo; i < hi; i++ {
			items[i] = prepare(notes[i], tpq, vp.ZoomX, vp.ZoomY)
			if warm {
				p.styles.style(notes[i], false)
			}
		}
		return true
	})
	if !done {
		return nil, false
	}
	return &snapshot{vp: vp, margin: margin, version: version, items: items}, true
}

// schedulePrecompute prepares a snapshot for vp on a worker. Only one job
// runs at a time; starting one invalidates any older job.
func (p *Pipeline) schedulePrecompute(vp Viewport) {
	if !p.jobBusy.CompareAndSwap(false, true) {
		return
	}
	p.gen.Bump()
	tok := p.gen.Token()
	margin := p.opts.viewportMargin

	ok := p.workers.TrySubmit(func() {
		defer p.jobBusy.Store(false)
		snap, done := p.buildSnapshot(tok, vp, margin, true)
		if !done || tok.Stale() {
			p.staleJobs.Add(1)
			return
		}
		p.snap.Store(snap)
		p.precomputed.Add(1)
	})
	if !ok {
		p.jobBusy.Store(false)
	}
}

// invalidate cancels running jobs and drops the snapshot.
func (p *Pipeline) invalidate() {
	p.gen.Bump()
	p.snap.Store(nil)
}

// scheduleOptimize rebuilds the spatial index on a worker when its cell
// size no longer fits the notes.
func (p *Pipeline) scheduleOptimize() {
	if !p.optimizing.CompareAndSwap(false, true) {
		return
	}
	ok := p.workers.TrySubmit(func() {
		defer p.optimizing.Store(false)
		if p.store.optimize() {
			p.rebuilds.Add(1)
			st := p.store.stats()
			p.logger().Debug("noteroll: spatial index rebuilt",
				"cell_w", st.CellWidth, "cell_h", st.CellHeight, "items", st.Items)
		}
	})
	if !ok {
		p.optimizing.Store(false)
	}
}
