// Package parallel runs background work for the note pipeline: viewport
// precompute jobs and spatial index maintenance.
//
// WorkerPool keeps one queue per worker; an idle worker steals from the
// others. Submission from the render goroutine never blocks: TrySubmit
// reports false when the chosen queue is full. Long jobs observe a
// generation [Token] and give up as soon as newer work makes them stale.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines for background jobs.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// submitMu orders submissions against Close so nothing is sent on a
	// queue after workers have drained it.
	submitMu sync.RWMutex

	executed atomic.Uint64
	panics   atomic.Uint64
	rejected atomic.Uint64

	// OnPanic, when set before the first submission, receives values
	// recovered from panicking jobs.
	OnPanic func(v any)
}

// NewWorkerPool starts a pool with the given number of workers.
// Zero or negative uses GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			p.run(job)
			continue
		default:
		}

		if job := p.steal(id); job != nil {
			p.run(job)
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			p.run(job)
		}
	}
}

func (p *WorkerPool) run(job func()) {
	if job == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			p.panics.Add(1)
			if p.OnPanic != nil {
				p.OnPanic(v)
			}
		}
	}()
	job()
	p.executed.Add(1)
}

func (p *WorkerPool) drain(q chan func()) {
	for {
		select {
		case job := <-q:
			p.run(job)
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case job := <-p.queues[(self+i)%p.workers]:
			return job
		default:
		}
	}
	return nil
}

// shortest returns the index of the least loaded queue.
func (p *WorkerPool) shortest() int {
	best, n := 0, len(p.queues[0])
	for i := 1; i < p.workers; i++ {
		if l := len(p.queues[i]); l < n {
			best, n = i, l
		}
	}
	return best
}

// TrySubmit queues fn without blocking. It reports false when the pool is
// closed or the least loaded queue is full.
func (p *WorkerPool) TrySubmit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if !p.running.Load() {
		p.rejected.Add(1)
		return false
	}
	select {
	case p.queues[p.shortest()] <- fn:
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Close stops accepting work, runs what is queued, and stops the workers.
// It is safe to call more than once.
func (p *WorkerPool) Close() {
	p.submitMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.submitMu.Unlock()
		return
	}
	close(p.done)
	p.submitMu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int { return p.workers }

// PoolStats holds cumulative job counters.
type PoolStats struct {
	Executed uint64
	Panics   uint64
	Rejected uint64
}

// Stats returns cumulative job counters.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Executed: p.executed.Load(),
		Panics:   p.panics.Load(),
		Rejected: p.rejected.Load(),
	}
}
