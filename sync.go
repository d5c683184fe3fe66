package noteroll

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/gogpu/noteroll/render"
)

// DefaultRefreshDelay is the debounce interval of Refresh.
const DefaultRefreshDelay = 16 * time.Millisecond

// RefreshTarget is redrawn when the note view changes.
type RefreshTarget interface {
	Refresh()
}

// RefreshFunc adapts a function to RefreshTarget.
type RefreshFunc func()

// Refresh calls f.
func (f RefreshFunc) Refresh() { f() }

// SyncOption configures a SyncContext.
type SyncOption func(*syncConfig)

type syncConfig struct {
	delay time.Duration
}

// WithRefreshDelay sets the debounce interval of Refresh.
func WithRefreshDelay(d time.Duration) SyncOption {
	return func(c *syncConfig) {
		if d > 0 {
			c.delay = d
		}
	}
}

// SyncStats holds refresh counters.
type SyncStats struct {
	Targets   int
	Refreshes uint64
	Skipped   uint64
	Panics    uint64
	Debounced uint64
	Fallbacks uint64
	Backend   string
}

type refreshTarget struct {
	id   string
	t    RefreshTarget
	busy atomic.Bool
}

// SyncContext is the per-window render context. It owns the negotiated
// backend and the set of views refreshed when notes change.
//
// A host creates one SyncContext per window and passes it to every
// pipeline drawing into that window.
type SyncContext struct {
	mu      sync.Mutex
	targets []*refreshTarget

	debounced func(func())
	closed    atomic.Bool
	dragging  atomic.Bool

	backendMu sync.Mutex
	neg       render.Negotiation
	cfg       render.NegotiateConfig
	closeErr  error

	refreshes atomic.Uint64
	skipped   atomic.Uint64
	panics    atomic.Uint64
	requests  atomic.Uint64
	fallbacks atomic.Uint64
}

// NewSyncContext negotiates a backend with cfg and returns the context.
// It never fails: without a usable device the rasterizer is selected and
// the reason is available from FallbackReason.
func NewSyncContext(cfg render.NegotiateConfig, opts ...SyncOption) *SyncContext {
	c := syncConfig{delay: DefaultRefreshDelay}
	for _, opt := range opts {
		opt(&c)
	}
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	return &SyncContext{
		debounced: debounce.New(c.delay),
		neg:       render.Negotiate(cfg),
		cfg:       cfg,
	}
}

// Backend returns the current backend.
func (s *SyncContext) Backend() render.Backend {
	s.backendMu.Lock()
	defer s.backendMu.Unlock()
	return s.neg.Backend
}

// BackendKind returns the kind of the current backend.
func (s *SyncContext) BackendKind() render.Kind {
	s.backendMu.Lock()
	defer s.backendMu.Unlock()
	return s.neg.Kind
}

// FallbackReason returns why the rasterizer is in use, or nil on the
// hardware path.
func (s *SyncContext) FallbackReason() error {
	s.backendMu.Lock()
	defer s.backendMu.Unlock()
	return s.neg.Reason
}

// SwitchToRaster replaces a hardware backend with the rasterizer and
// returns the backend now in use. It is a no-op on the rasterizer.
func (s *SyncContext) SwitchToRaster(reason error) render.Backend {
	s.backendMu.Lock()
	defer s.backendMu.Unlock()
	if s.neg.Kind == render.KindRaster {
		return s.neg.Backend
	}
	old := s.neg.Backend
	raster := render.NewRasterBackend(s.cfg.RasterOptions...)
	raster.SetLogger(Logger())
	s.neg = render.Negotiation{
		Backend: raster,
		Kind:    render.KindRaster,
		Reason:  fmt.Errorf("switched at runtime: %w", reason),
	}
	s.fallbacks.Add(1)
	if err := old.Close(); err != nil {
		s.closeErr = multierr.Append(s.closeErr, fmt.Errorf("close %s backend: %w", old.Name(), err))
	}
	Logger().Warn("noteroll: switched to rasterizer", "reason", reason)
	return raster
}

// Register adds a target to the refresh set.
func (s *SyncContext) Register(t RefreshTarget) Registration {
	rt := &refreshTarget{id: uuid.New().String(), t: t}
	s.mu.Lock()
	s.targets = append(s.targets, rt)
	s.mu.Unlock()
	return Registration{sc: s, id: rt.id}
}

func (s *SyncContext) unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rt := range s.targets {
		if rt.id == id {
			s.targets = append(s.targets[:i], s.targets[i+1:]...)
			return true
		}
	}
	return false
}

// Targets returns the number of registered targets.
func (s *SyncContext) Targets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}

// Refresh schedules a refresh of every target. Calls within the refresh
// delay of each other are coalesced into one, run on a timer goroutine.
func (s *SyncContext) Refresh() {
	if s.closed.Load() {
		return
	}
	s.requests.Add(1)
	s.debounced(func() {
		if !s.closed.Load() {
			s.refreshAll()
		}
	})
}

// ImmediateRefresh refreshes every target now on the calling goroutine and
// returns how many were refreshed. Targets already refreshing are skipped.
func (s *SyncContext) ImmediateRefresh() int {
	if s.closed.Load() {
		return 0
	}
	return s.refreshAll()
}

func (s *SyncContext) refreshAll() int {
	s.mu.Lock()
	targets := append([]*refreshTarget(nil), s.targets...)
	s.mu.Unlock()

	n := 0
	for _, rt := range targets {
		if s.refreshOne(rt) {
			n++
		}
	}
	return n
}

func (s *SyncContext) refreshOne(rt *refreshTarget) (ok bool) {
	if !rt.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return false
	}
	defer rt.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			Logger().Error("noteroll: refresh target panicked", "target", rt.id, "panic", r)
			ok = false
		}
	}()
	rt.t.Refresh()
	s.refreshes.Add(1)
	return true
}

// SetDragging records whether a pointer gesture is in progress. Ending a
// gesture refreshes every target immediately.
func (s *SyncContext) SetDragging(dragging bool) {
	if was := s.dragging.Swap(dragging); was && !dragging {
		s.ImmediateRefresh()
	}
}

// Dragging reports whether a gesture is in progress.
func (s *SyncContext) Dragging() bool { return s.dragging.Load() }

// Stats returns the refresh counters.
func (s *SyncContext) Stats() SyncStats {
	return SyncStats{
		Targets:   s.Targets(),
		Refreshes: s.refreshes.Load(),
		Skipped:   s.skipped.Load(),
		Panics:    s.panics.Load(),
		Debounced: s.requests.Load(),
		Fallbacks: s.fallbacks.Load(),
		Backend:   s.BackendKind().String(),
	}
}

// Close stops refreshing and releases the backend. It is safe to call more
// than once; later calls return nil.
func (s *SyncContext) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	s.targets = nil
	s.mu.Unlock()

	s.backendMu.Lock()
	defer s.backendMu.Unlock()
	err := s.closeErr
	if cerr := s.neg.Backend.Close(); cerr != nil && !errors.Is(cerr, render.ErrBackendClosed) {
		err = multierr.Append(err, cerr)
	}
	return err
}

// Registration is a handle returned by Register.
type Registration struct {
	sc *SyncContext
	id string
}

// ID returns the registration identifier.
func (r Registration) ID() string { return r.id }

// Unregister removes the target. It reports false when the target was
// already removed.
func (r Registration) Unregister() bool {
	if r.sc == nil {
		return false
	}
	return r.sc.unregister(r.id)
}
