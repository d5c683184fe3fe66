package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

// =============================================================================
// Execution Tests
// =============================================================================

// submitAll queues every job, failing the test if one is rejected, and
// waits for all of them.
func submitAll(t *testing.T, pool *WorkerPool, jobs []func()) {
	t.Helper()
	var wg sync.WaitGroup
	for i, fn := range jobs {
		wg.Add(1)
		if !pool.TrySubmit(func() {
			defer wg.Done()
			fn()
		}) {
			wg.Done()
			t.Fatalf("TrySubmit() = false for job %d", i)
		}
	}
	wg.Wait()
}

func TestWorkerPool_RunsSubmitted(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 16)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	submitAll(t, pool, work)

	if counter.Load() != 16 {
		t.Errorf("counter = %d, want 16", counter.Load())
	}
	if got := pool.Stats().Executed; got != 16 {
		t.Errorf("Stats().Executed = %d, want 16", got)
	}
}

func TestWorkerPool_TrySubmit(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	done := make(chan struct{})
	if !pool.TrySubmit(func() { close(done) }) {
		t.Fatal("TrySubmit() = false on an idle pool")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted job did not run")
	}
	if pool.TrySubmit(nil) {
		t.Error("TrySubmit(nil) = true")
	}
}

func TestWorkerPool_TrySubmitFullQueue(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	if !pool.TrySubmit(func() {
		close(started)
		<-release
	}) {
		t.Fatal("TrySubmit() = false on an idle pool")
	}
	<-started

	accepted := 0
	for range 100 {
		if pool.TrySubmit(func() {}) {
			accepted++
		}
	}
	close(release)

	if accepted != 8 {
		t.Errorf("accepted = %d, want 8 (queue size)", accepted)
	}
	if pool.Stats().Rejected != 92 {
		t.Errorf("Stats().Rejected = %d, want 92", pool.Stats().Rejected)
	}
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	pool := NewWorkerPool(2)
	var got atomic.Value
	pool.OnPanic = func(v any) { got.Store(v) }

	var counter atomic.Int64
	submitAll(t, pool, []func(){func() { panic("boom") }})
	submitAll(t, pool, []func(){func() { counter.Add(1) }})
	pool.Close()

	if counter.Load() != 1 {
		t.Error("pool stopped working after a panic")
	}
	if pool.Stats().Panics != 1 {
		t.Errorf("Stats().Panics = %d, want 1", pool.Stats().Panics)
	}
	if got.Load() != "boom" {
		t.Errorf("OnPanic got %v, want boom", got.Load())
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseRunsQueued(t *testing.T) {
	pool := NewWorkerPool(2)

	var counter atomic.Int64
	for i := range 10 {
		if !pool.TrySubmit(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		}) {
			t.Fatalf("TrySubmit() = false for job %d", i)
		}
	}
	pool.Close()

	if counter.Load() != 10 {
		t.Errorf("counter = %d, want 10", counter.Load())
	}
	if pool.TrySubmit(func() {}) {
		t.Error("TrySubmit() = true after Close")
	}
	pool.Close() // idempotent
}

func TestWorkerPool_ConcurrentSubmitAndClose(t *testing.T) {
	pool := NewWorkerPool(4)

	var accepted atomic.Uint64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if pool.TrySubmit(func() {}) {
					accepted.Add(1)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	pool.Close()
	wg.Wait()

	st := pool.Stats()
	if st.Executed != accepted.Load() {
		t.Errorf("Stats().Executed = %d, want %d accepted jobs", st.Executed, accepted.Load())
	}
	if st.Executed+st.Rejected != 800 {
		t.Errorf("Executed+Rejected = %d, want 800", st.Executed+st.Rejected)
	}
}

// =============================================================================
// Generation Tests
// =============================================================================

func TestGeneration_Token(t *testing.T) {
	var g Generation
	tok := g.Token()
	if tok.Stale() {
		t.Error("fresh token is stale")
	}
	if g.Bump() != 1 || g.Current() != 1 {
		t.Errorf("Bump()/Current() = %d", g.Current())
	}
	if !tok.Stale() {
		t.Error("token not stale after Bump")
	}
	if (Token{}).Stale() {
		t.Error("zero Token is stale")
	}
}

func TestChunks(t *testing.T) {
	var g Generation
	var ranges [][2]int
	ok := Chunks(g.Token(), 10, 4, func(lo, hi int) bool {
		ranges = append(ranges, [2]int{lo, hi})
		return true
	})
	want := [][2]int{{0, 4}, {4, 8}, {8, 10}}
	if !ok || len(ranges) != len(want) {
		t.Fatalf("Chunks() = %v, ranges %v", ok, ranges)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, ranges[i], want[i])
		}
	}
}

func TestChunks_StopsWhenStale(t *testing.T) {
	var g Generation
	tok := g.Token()
	calls := 0
	ok := Chunks(tok, 100, 10, func(lo, hi int) bool {
		calls++
		if calls == 3 {
			g.Bump()
		}
		return true
	})
	if ok {
		t.Error("Chunks() = true for a stale token")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestChunks_BackgroundCancel(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var g Generation
	tok := g.Token()
	started := make(chan struct{})
	result := make(chan bool, 1)
	pool.TrySubmit(func() {
		var once sync.Once
		result <- Chunks(tok, 1<<20, 1, func(lo, hi int) bool {
			once.Do(func() { close(started) })
			time.Sleep(10 * time.Microsecond)
			return true
		})
	})
	<-started
	g.Bump()

	select {
	case ok := <-result:
		if ok {
			t.Error("job completed despite cancellation")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("job did not observe cancellation")
	}
}
