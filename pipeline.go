package noteroll

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/noteroll/internal/batch"
	"github.com/gogpu/noteroll/internal/parallel"
	"github.com/gogpu/noteroll/perf"
	"github.com/gogpu/noteroll/render"
)

// DrawFunc draws an overlay after the notes, inside the same frame.
// Returning an error or panicking aborts the frame.
type DrawFunc func(b render.Backend, vp Viewport) error

// Pipeline renders the notes of one editor view.
//
// Note changes, track states, Post and PerformanceReport are safe to call
// from any goroutine. RenderFrame is meant for one render goroutine;
// overlapping or re-entrant calls are skipped.
type Pipeline struct {
	opts options
	sc   *SyncContext

	store   *noteStore
	tracks  *trackTable
	styles  *styler
	batcher *batch.Batcher
	monitor *perf.Monitor
	workers *parallel.WorkerPool

	gen         parallel.Generation
	snap        atomic.Pointer[snapshot]
	jobBusy     atomic.Bool
	optimizing  atomic.Bool
	staleJobs   atomic.Uint64
	precomputed atomic.Uint64
	rebuilds    atomic.Uint64

	events chan EditEvent
	report atomic.Pointer[Report]

	// log is shared with background job handlers, which must not keep the
	// pipeline reachable.
	log        *atomic.Pointer[slog.Logger]
	pendingLog atomic.Pointer[slog.Logger]
	ownLogger  bool
	cleanup    runtime.Cleanup

	closed  atomic.Bool
	frameMu sync.Mutex

	// Owned by the render goroutine.
	backend     render.Backend
	edits       editState
	failures    int
	aborted     uint64
	shadowsOff  bool
	shadowsAt   uint64
	lodForced   bool
	lodAt       uint64
	capChangeAt uint64
	zoomX       float64
	zoomY       float64
	scratch     frameScratch
}

// New creates a pipeline drawing through the backend of sc.
func New(sc *SyncContext, opts ...Option) (*Pipeline, error) {
	if sc == nil {
		return nil, fmt.Errorf("noteroll: nil sync context")
	}
	if sc.closed.Load() {
		return nil, fmt.Errorf("noteroll: sync context: %w", ErrClosed)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{
		opts:    o,
		sc:      sc,
		store:   newNoteStore(o.ticksPerQuarter),
		tracks:  newTrackTable(),
		events:  make(chan EditEvent, DefaultEventBuffer),
		edits:   newEditState(),
		backend: sc.Backend(),
		workers: parallel.NewWorkerPool(o.workers),
		log:     new(atomic.Pointer[slog.Logger]),
		monitor: perf.New(
			perf.WithWindow(o.monitorWindow),
			perf.WithTargetFPS(o.targetFPS),
			perf.WithShadowThreshold(o.shadowThreshold),
			perf.WithDensityThreshold(o.densityThreshold),
			perf.WithClock(o.clock),
		),
	}
	p.styles = newStyler(o.palette, p.tracks)

	log := o.logger
	if log == nil {
		log = Logger()
	} else {
		p.ownLogger = true
	}
	p.log.Store(log)
	plog := p.log
	p.workers.OnPanic = func(v any) {
		plog.Load().Error("noteroll: background job panicked", "panic", v)
	}

	pool := batch.NewPool(o.poolSize, o.maxInFlight)
	pool.Warmup(min(o.poolSize, 8))
	p.batcher = batch.New(p.backend,
		batch.WithSizeCap(o.batchCap),
		batch.WithInstanceThreshold(o.instanceThreshold),
		batch.WithBudget(batch.NewBudget(o.budget)),
		batch.WithPool(pool),
		batch.WithLogger(log),
	)
	setBackendLogger(p.backend, log)

	p.report.Store(&Report{
		Backend:        p.backend.Name(),
		FallbackReason: errString(sc.FallbackReason()),
	})
	if !p.ownLogger {
		track(p)
	}
	// A pipeline dropped without Close still stops its workers.
	p.cleanup = runtime.AddCleanup(p, (*parallel.WorkerPool).Close, p.workers)
	log.Info("noteroll: pipeline created",
		"backend", p.backend.Name(), "workers", p.workers.Workers())
	return p, nil
}

func (p *Pipeline) logger() *slog.Logger { return p.log.Load() }

func setBackendLogger(b render.Backend, l *slog.Logger) {
	if s, ok := b.(render.LoggerSetter); ok {
		s.SetLogger(l)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// AddNotes inserts notes, replacing any with the same id. Every note is
// validated first; on error nothing is added.
func (p *Pipeline) AddNotes(notes []Note) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.store.add(notes); err != nil {
		return err
	}
	p.invalidate()
	return nil
}

// RemoveNotes deletes notes and returns how many existed.
func (p *Pipeline) RemoveNotes(ids []NoteID) int {
	if p.closed.Load() {
		return 0
	}
	n := p.store.remove(ids)
	if n > 0 {
		p.invalidate()
	}
	return n
}

// UpdateNote moves an existing note to new timing and pitch.
func (p *Pipeline) UpdateNote(id NoteID, start, duration int64, pitch int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.store.update(id, start, duration, pitch); err != nil {
		return err
	}
	p.invalidate()
	return nil
}

// ReplaceNote stores every field of an existing note.
func (p *Pipeline) ReplaceNote(n Note) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.store.replace(n); err != nil {
		return err
	}
	p.invalidate()
	return nil
}

// Note returns the note with the given id.
func (p *Pipeline) Note(id NoteID) (Note, bool) { return p.store.get(id) }

// Len returns the number of notes.
func (p *Pipeline) Len() int { return p.store.len() }

// QueryVisible returns the ids of notes overlapping times [t0, t1) in
// quarter notes and pitches p0 through p1, in ascending order.
func (p *Pipeline) QueryVisible(t0, t1 float64, p0, p1 int) []NoteID {
	if p1 < p0 || !(t1 > t0) {
		return nil
	}
	return p.store.ids(worldBox(t0, t1, p0, p1))
}

// SetTrackState changes how a track is drawn.
func (p *Pipeline) SetTrackState(track int, s TrackState) { p.tracks.set(track, s) }

// TrackState returns the state of a track.
func (p *Pipeline) TrackState(track int) TrackState { return p.tracks.get(track) }

// ResetTrackState restores the default state of a track.
func (p *Pipeline) ResetTrackState(track int) { p.tracks.reset(track) }

// Post queues an edit event for the next frame. It never blocks and
// reports false when the queue is full or the pipeline is closed.
func (p *Pipeline) Post(ev EditEvent) bool {
	if ev == nil || p.closed.Load() {
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		return false
	}
}

// Refresh asks the window to redraw soon.
func (p *Pipeline) Refresh() { p.sc.Refresh() }

// ImmediateRefresh redraws the window now.
func (p *Pipeline) ImmediateRefresh() int { return p.sc.ImmediateRefresh() }

// SetDragging records whether a pointer gesture is in progress.
func (p *Pipeline) SetDragging(dragging bool) { p.sc.SetDragging(dragging) }

// PerformanceReport returns the report published by the last frame.
func (p *Pipeline) PerformanceReport() Report { return *p.report.Load() }

// Close stops background work and waits for a frame in progress. The
// SyncContext and its backend stay open. Close is idempotent.
//
// Every pipeline should be closed when its view goes away. An unclosed
// pipeline keeps its workers until the garbage collector finds it
// unreachable.
func (p *Pipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.gen.Bump()
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	p.cleanup.Stop()
	p.workers.Close()
	if !p.ownLogger {
		untrack(p)
	}
	p.logger().Info("noteroll: pipeline closed", "frames", p.monitor.Frames())
	return nil
}

// Report summarizes recent frames.
type Report struct {
	AvgFPS            float64           `json:"avgFps"`
	FrameTimeMs       float64           `json:"frameTimeMs"`
	WorstFrameMs      float64           `json:"worstFrameMs"`
	P95FrameTimeMs    float64           `json:"p95FrameTimeMs"`
	GPUMemoryEstimate int64             `json:"gpuMemoryEstimate"`
	Suggestions       []perf.Suggestion `json:"suggestions,omitempty"`
	Backend           string            `json:"backend"`
	FallbackReason    string            `json:"fallbackReason,omitempty"`

	// Counts of the last frame.
	Primitives int    `json:"primitives"`
	Batches    int    `json:"batches"`
	Culled     int    `json:"culled"`
	Visible    int    `json:"visible"`
	Strategy   string `json:"strategy"`
	Shadows    bool   `json:"shadows"`

	Frames        uint64  `json:"frames"`
	Aborted       uint64  `json:"aborted"`
	Notes         int     `json:"notes"`
	StyleHitRate  float64 `json:"styleHitRate"`
	IndexRebuilds uint64  `json:"indexRebuilds"`
}

// Stage names recorded with the monitor.
const (
	stageQuery   = "query"
	stageBatch   = "batch"
	stageOverlay = "overlay"
	stagePresent = "present"
)

func since(clock func() time.Time, t time.Time) time.Duration { return clock().Sub(t) }
