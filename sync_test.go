package noteroll

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/noteroll/render"
)

func newTestSync(t *testing.T, opts ...SyncOption) *SyncContext {
	t.Helper()
	sc := NewSyncContext(render.NegotiateConfig{}, opts...)
	t.Cleanup(func() { _ = sc.Close() })
	return sc
}

func TestSyncContext_RasterWithoutDevice(t *testing.T) {
	sc := newTestSync(t)
	if sc.BackendKind() != render.KindRaster {
		t.Errorf("BackendKind() = %v, want raster", sc.BackendKind())
	}
	if !errors.Is(sc.FallbackReason(), render.ErrNoDevice) {
		t.Errorf("FallbackReason() = %v, want ErrNoDevice", sc.FallbackReason())
	}
	if got := sc.SwitchToRaster(errors.New("unused")); got != sc.Backend() {
		t.Error("SwitchToRaster() on the rasterizer replaced the backend")
	}
	if got := sc.Stats().Fallbacks; got != 0 {
		t.Errorf("Fallbacks = %d, want 0", got)
	}
}

func TestSyncContext_SwitchToRaster(t *testing.T) {
	sc := NewSyncContext(render.NegotiateConfig{
		Device:    testProvider{},
		Submitter: &flakySubmitter{},
		Compiler:  stubCompiler,
	})
	defer sc.Close()
	if sc.BackendKind() != render.KindHardware {
		t.Fatalf("BackendKind() = %v, reason %v", sc.BackendKind(), sc.FallbackReason())
	}
	old := sc.Backend()

	lost := errors.New("device lost")
	b := sc.SwitchToRaster(lost)
	if b.Kind() != render.KindRaster || sc.Backend() != b {
		t.Fatalf("SwitchToRaster() = %s backend", b.Name())
	}
	if !errors.Is(sc.FallbackReason(), lost) {
		t.Errorf("FallbackReason() = %v, want wrapping %v", sc.FallbackReason(), lost)
	}
	if err := old.BeginFrame(10, 10); !errors.Is(err, render.ErrBackendClosed) {
		t.Errorf("old backend BeginFrame() error = %v, want ErrBackendClosed", err)
	}
	if st := sc.Stats(); st.Fallbacks != 1 || st.Backend != "raster" {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestSyncContext_RegisterUnregister(t *testing.T) {
	sc := newTestSync(t)
	var a, b atomic.Int32
	ra := sc.Register(RefreshFunc(func() { a.Add(1) }))
	rb := sc.Register(RefreshFunc(func() { b.Add(1) }))
	if ra.ID() == "" || ra.ID() == rb.ID() {
		t.Errorf("registration ids %q and %q", ra.ID(), rb.ID())
	}
	if sc.Targets() != 2 {
		t.Fatalf("Targets() = %d, want 2", sc.Targets())
	}

	if n := sc.ImmediateRefresh(); n != 2 {
		t.Errorf("ImmediateRefresh() = %d, want 2", n)
	}
	if !ra.Unregister() {
		t.Error("Unregister() = false")
	}
	if ra.Unregister() {
		t.Error("second Unregister() = true")
	}
	if (Registration{}).Unregister() {
		t.Error("zero Registration Unregister() = true")
	}
	sc.ImmediateRefresh()
	if a.Load() != 1 || b.Load() != 2 {
		t.Errorf("refresh counts a=%d b=%d, want 1 and 2", a.Load(), b.Load())
	}
}

func TestSyncContext_RefreshDebounced(t *testing.T) {
	sc := newTestSync(t, WithRefreshDelay(20*time.Millisecond))
	done := make(chan struct{}, 10)
	var calls atomic.Int32
	sc.Register(RefreshFunc(func() {
		calls.Add(1)
		done <- struct{}{}
	}))

	for range 10 {
		sc.Refresh()
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("debounced refresh never ran")
	}
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("refreshes = %d, want 1", got)
	}
	if got := sc.Stats().Debounced; got != 10 {
		t.Errorf("Debounced = %d, want 10", got)
	}
}

func TestSyncContext_ReentrantTargetSkipped(t *testing.T) {
	sc := newTestSync(t)
	var inner int
	var outer atomic.Int32
	sc.Register(RefreshFunc(func() {
		if outer.Add(1) == 1 {
			inner = sc.ImmediateRefresh()
		}
	}))

	if n := sc.ImmediateRefresh(); n != 1 {
		t.Errorf("ImmediateRefresh() = %d, want 1", n)
	}
	if inner != 0 {
		t.Errorf("re-entrant ImmediateRefresh() = %d, want 0", inner)
	}
	if got := sc.Stats().Skipped; got != 1 {
		t.Errorf("Skipped = %d, want 1", got)
	}
}

func TestSyncContext_TargetPanicRecovered(t *testing.T) {
	sc := newTestSync(t)
	var after atomic.Int32
	sc.Register(RefreshFunc(func() { panic("broken view") }))
	sc.Register(RefreshFunc(func() { after.Add(1) }))

	if n := sc.ImmediateRefresh(); n != 1 {
		t.Errorf("ImmediateRefresh() = %d, want 1", n)
	}
	if after.Load() != 1 {
		t.Error("target after the panicking one was not refreshed")
	}
	// The panicking target is usable again.
	sc.ImmediateRefresh()
	if st := sc.Stats(); st.Panics != 2 || st.Refreshes != 2 {
		t.Errorf("Stats() = %+v, want 2 panics and 2 refreshes", st)
	}
}

func TestSyncContext_SetDragging(t *testing.T) {
	sc := newTestSync(t)
	var calls atomic.Int32
	sc.Register(RefreshFunc(func() { calls.Add(1) }))

	sc.SetDragging(false)
	sc.SetDragging(true)
	sc.SetDragging(true)
	if !sc.Dragging() || calls.Load() != 0 {
		t.Fatalf("Dragging() = %v, refreshes = %d", sc.Dragging(), calls.Load())
	}
	sc.SetDragging(false)
	if sc.Dragging() || calls.Load() != 1 {
		t.Errorf("after end: Dragging() = %v, refreshes = %d", sc.Dragging(), calls.Load())
	}
}

func TestSyncContext_ConcurrentRefresh(t *testing.T) {
	sc := newTestSync(t)
	var calls atomic.Int32
	sc.Register(RefreshFunc(func() { calls.Add(1) }))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				sc.ImmediateRefresh()
			}
		}()
	}
	wg.Wait()
	st := sc.Stats()
	if uint64(calls.Load()) != st.Refreshes || st.Refreshes+st.Skipped != 800 {
		t.Errorf("calls = %d, Stats() = %+v", calls.Load(), st)
	}
}

func TestSyncContext_Close(t *testing.T) {
	sc := NewSyncContext(render.NegotiateConfig{})
	var calls atomic.Int32
	sc.Register(RefreshFunc(func() { calls.Add(1) }))

	if err := sc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if n := sc.ImmediateRefresh(); n != 0 {
		t.Errorf("ImmediateRefresh() after Close = %d", n)
	}
	sc.Refresh()
	if sc.Targets() != 0 || calls.Load() != 0 {
		t.Errorf("Targets() = %d, refreshes = %d after Close", sc.Targets(), calls.Load())
	}
	if _, err := New(sc); !errors.Is(err, ErrClosed) {
		t.Errorf("New(closed) error = %v, want ErrClosed", err)
	}
	if _, err := New(nil); err == nil {
		t.Error("New(nil) succeeded")
	}
}
