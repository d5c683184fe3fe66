// Package batch groups rounded-rectangle primitives by drawing state and
// submits them to a render.Backend with as few calls as possible.
//
// A Batcher culls primitives against the viewport, groups survivors by
// [Key], and flushes when a batch reaches its size threshold, when the GPU
// memory [Budget] would be exceeded, when the container [Pool] is exhausted,
// or at the end of the frame. Flushed batches are ordered by a composite
// state key. Batches at or above the instancing threshold are submitted
// with one instanced call; smaller ones primitive by primitive.
//
// A failed instanced submission switches the rest of the frame to
// per-primitive submission. The frame always completes.
package batch

import (
	"log/slog"
	"slices"

	"github.com/gogpu/noteroll/render"
)

// Defaults.
const (
	DefaultSizeCap           = 1000
	DefaultInstanceThreshold = 10

	// Average device-space primitive area thresholds in px².
	smallArea  = 100
	mediumArea = 1000
)

// FlushReason tells why pending batches were flushed.
type FlushReason uint8

const (
	FlushEnd FlushReason = iota
	FlushExplicit
	FlushSize
	FlushBudget
	FlushPool
)

// String returns the reason name.
func (r FlushReason) String() string {
	switch r {
	case FlushEnd:
		return "end"
	case FlushExplicit:
		return "explicit"
	case FlushSize:
		return "size"
	case FlushBudget:
		return "budget"
	case FlushPool:
		return "pool"
	default:
		return "unknown"
	}
}

// FrameStats describes one frame of batching.
type FrameStats struct {
	// Added is every primitive passed to Add.
	Added int
	// Submitted, Culled and Invalid partition Added.
	Submitted int
	Culled    int
	Invalid   int

	Batches           int
	InstancedCalls    int
	PerPrimitiveCalls int

	Flushes        int
	ForcedBySize   int
	ForcedByBudget int
	ForcedByPool   int

	FailedSubmissions int
	PrimitiveErrors   int
	Degraded          bool

	// PeakMemory is the highest budget estimate during the frame.
	PeakMemory int64
}

// Forced returns the number of flushes not caused by End or Flush.
func (s FrameStats) Forced() int { return s.ForcedBySize + s.ForcedByBudget + s.ForcedByPool }

// Option configures a Batcher.
type Option func(*Batcher)

// WithSizeCap sets the batch size cap for small primitives.
func WithSizeCap(n int) Option {
	return func(b *Batcher) { b.SetSizeCap(n) }
}

// WithInstanceThreshold sets the minimum batch size for instanced submission.
func WithInstanceThreshold(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.instanceThreshold = n
		}
	}
}

// WithBudget replaces the budget.
func WithBudget(bud *Budget) Option {
	return func(b *Batcher) {
		if bud != nil {
			b.budget = bud
		}
	}
}

// WithPool replaces the container pool.
func WithPool(p *Pool) Option {
	return func(b *Batcher) {
		if p != nil {
			b.pool = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Batcher) { b.SetLogger(l) }
}

// Batcher is owned by the render goroutine and is not safe for concurrent use.
type Batcher struct {
	backend render.Backend
	budget  *Budget
	pool    *Pool

	sizeCap           int
	instanceThreshold int

	viewport render.Rect
	pending  map[Key]*Data
	order    []*Data
	pendPrim int

	inFrame bool
	stats   FrameStats
	log     *slog.Logger
}

// New creates a batcher submitting to backend.
func New(backend render.Backend, opts ...Option) *Batcher {
	b := &Batcher{
		backend:           backend,
		sizeCap:           DefaultSizeCap,
		instanceThreshold: DefaultInstanceThreshold,
		pending:           make(map[Key]*Data),
		log:               slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.budget == nil {
		b.budget = NewBudget(DefaultCeiling)
	}
	if b.pool == nil {
		b.pool = NewPool(DefaultPoolSize, DefaultMaxInFlight)
	}
	return b
}

// SetBackend switches the submission target. Pending batches are flushed
// to the previous backend first.
func (b *Batcher) SetBackend(backend render.Backend) {
	if len(b.order) > 0 {
		b.flush(FlushExplicit)
	}
	b.backend = backend
}

// SetLogger sets the logger. Nil discards.
func (b *Batcher) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	b.log = l
}

// SetSizeCap sets the cap used for primitives under 100 px².
// Larger primitives use half and a quarter of it.
func (b *Batcher) SetSizeCap(n int) {
	if n > 0 {
		b.sizeCap = n
	}
}

// SizeCap returns the current size cap.
func (b *Batcher) SizeCap() int { return b.sizeCap }

// Budget returns the budget.
func (b *Batcher) Budget() *Budget { return b.budget }

// Pool returns the container pool.
func (b *Batcher) Pool() *Pool { return b.pool }

// Threshold returns the flush threshold for an average primitive area.
func (b *Batcher) Threshold(avgArea float64) int {
	var n int
	switch {
	case avgArea < smallArea:
		n = b.sizeCap
	case avgArea < mediumArea:
		n = b.sizeCap / 2
	default:
		n = b.sizeCap / 4
	}
	return max(n, 1)
}

// Begin starts a frame with the given device-space viewport.
func (b *Batcher) Begin(viewport render.Rect) {
	b.discardPending()
	b.viewport = viewport
	b.stats = FrameStats{}
	b.inFrame = true
}

// Add queues a primitive. It reports whether the primitive was accepted;
// invalid and invisible primitives are counted and dropped.
func (b *Batcher) Add(rr render.RoundedRect, st State) bool {
	b.stats.Added++
	if !rr.Valid() {
		b.stats.Invalid++
		return false
	}
	if st.Transform == (render.Matrix{}) {
		st.Transform = render.Identity()
	}
	dev := st.Transform.ApplyRect(rr.Rect)
	if !dev.Intersects(b.viewport) {
		b.stats.Culled++
		return false
	}
	if st.Clip != (render.Rect{}) && !dev.Intersects(st.Clip) {
		b.stats.Culled++
		return false
	}

	key := keyOf(rr, st)
	d := b.pending[key]
	if d == nil {
		d = b.open(key)
	} else if !b.budget.Fits(1, 0) {
		b.budget.NoteForcedFlush()
		b.flush(FlushBudget)
		d = b.open(key)
	}

	d.Rects = append(d.Rects, rr)
	d.areaSum += dev.Area()
	b.pendPrim++
	b.budget.Reserve(1, 0)
	b.stats.PeakMemory = max(b.stats.PeakMemory, b.budget.Usage())

	switch {
	case b.budget.Exceeded():
		// A ceiling below the cost of one batch holding one primitive.
		b.budget.NoteForcedFlush()
		b.flush(FlushBudget)
	case d.Len() >= b.Threshold(d.AverageArea()):
		b.flush(FlushSize)
	}
	return true
}

// open creates the batch for key, flushing first when the budget or the
// pool cannot take another batch.
func (b *Batcher) open(key Key) *Data {
	if !b.budget.Fits(1, 1) && len(b.order) > 0 {
		b.budget.NoteForcedFlush()
		b.flush(FlushBudget)
	}
	d, ok := b.pool.Get()
	if !ok {
		b.flush(FlushPool)
		d, ok = b.pool.Get()
		if !ok {
			// Every container is back in the pool after a flush, so this
			// only happens with a zero-sized pool and no in-flight room.
			d = &Data{}
		}
	}
	d.Key = key
	d.sort = newSortKey(key)
	b.pending[key] = d
	b.order = append(b.order, d)
	b.budget.Reserve(0, 1)
	return d
}

// Flush submits all pending batches now.
func (b *Batcher) Flush() {
	if len(b.order) > 0 {
		b.flush(FlushExplicit)
	}
}

// End flushes the remainder and returns the frame statistics.
func (b *Batcher) End() FrameStats {
	if len(b.order) > 0 {
		b.flush(FlushEnd)
	}
	b.inFrame = false
	return b.stats
}

// Pending returns the number of queued primitives and batches.
func (b *Batcher) Pending() (primitives, batches int) {
	return b.pendPrim, len(b.order)
}

// InFrame reports whether Begin was called without a matching End.
func (b *Batcher) InFrame() bool { return b.inFrame }

// Stats returns the statistics of the current or last frame.
func (b *Batcher) Stats() FrameStats { return b.stats }

func (b *Batcher) flush(reason FlushReason) {
	b.stats.Flushes++
	switch reason {
	case FlushSize:
		b.stats.ForcedBySize++
	case FlushBudget:
		b.stats.ForcedByBudget++
	case FlushPool:
		b.stats.ForcedByPool++
	}

	slices.SortFunc(b.order, compareBatches)
	for _, d := range b.order {
		b.submit(d)
		b.stats.Batches++
		b.stats.Submitted += d.Len()
	}

	if reason != FlushEnd && reason != FlushExplicit {
		b.log.Debug("batch: forced flush",
			"reason", reason.String(), "batches", len(b.order), "primitives", b.pendPrim)
	}
	b.release()
}

func (b *Batcher) submit(d *Data) {
	k := d.Key
	if k.HasClip() {
		b.backend.PushClip(k.Clip)
		defer b.backend.PopClip()
	}
	if !k.Transform.IsIdentity() {
		b.backend.PushTransform(k.Transform)
		defer b.backend.PopTransform()
	}
	b.backend.SetBlendMode(k.Blend)

	if d.Len() >= b.instanceThreshold && !b.stats.Degraded {
		err := b.backend.DrawRoundedRectsInstanced(d.Rects, k.Brush, k.Pen)
		if err == nil {
			b.stats.InstancedCalls++
			return
		}
		b.stats.FailedSubmissions++
		b.stats.Degraded = true
		b.log.Warn("batch: instanced submission failed, drawing per primitive for the rest of the frame",
			"err", err, "primitives", d.Len(), "backend", b.backend.Name())
	}

	for _, rr := range d.Rects {
		b.stats.PerPrimitiveCalls++
		if err := b.backend.FillRoundedRect(rr, k.Brush, k.Pen); err != nil {
			b.stats.PrimitiveErrors++
			if b.stats.PrimitiveErrors == 1 {
				b.log.Warn("batch: primitive submission failed", "err", err)
			}
		}
	}
}

func (b *Batcher) release() {
	for _, d := range b.order {
		b.pool.Put(d)
	}
	clear(b.order)
	b.order = b.order[:0]
	clear(b.pending)
	b.pendPrim = 0
	b.budget.Reset()
}

// discardPending drops batches left over from an unfinished frame.
func (b *Batcher) discardPending() {
	if len(b.order) == 0 {
		return
	}
	b.log.Debug("batch: discarding pending batches", "batches", len(b.order))
	b.release()
}
