package batch

import (
	"github.com/gogpu/noteroll/render"
)

// Data is a pending batch: primitives sharing one Key.
type Data struct {
	Key   Key
	Rects []render.RoundedRect

	// areaSum is the device-space area of Rects, for the size threshold.
	areaSum float64
	sort    sortKey
}

// Len returns the number of pending primitives.
func (d *Data) Len() int { return len(d.Rects) }

// AverageArea returns the mean device-space area of the primitives.
func (d *Data) AverageArea() float64 {
	if len(d.Rects) == 0 {
		return 0
	}
	return d.areaSum / float64(len(d.Rects))
}

func (d *Data) reset() {
	d.Key = Key{}
	clear(d.Rects)
	d.Rects = d.Rects[:0]
	d.areaSum = 0
	d.sort = sortKey{}
}

// Pool defaults.
const (
	DefaultPoolSize    = 50
	DefaultMaxInFlight = 64

	// maxRetainedCap drops containers whose backing array grew past this,
	// so one dense frame does not pin memory forever.
	maxRetainedCap = 16384
)

// PoolStats holds pool counters.
type PoolStats struct {
	Hits     uint64
	Misses   uint64
	Discards uint64
	Denied   uint64
	PeakLive int
}

// Pool is a bounded free list of batch containers.
//
// At most size containers are kept for reuse and at most size+maxInFlight
// containers are alive at once (kept plus handed out). Get reports false
// when that ceiling is reached; the caller must return containers first.
//
// Pool is owned by the render goroutine and is not safe for concurrent use.
type Pool struct {
	free    []*Data
	size    int
	maxLive int
	live    int
	stats   PoolStats
}

// NewPool creates a pool keeping up to size free containers and allowing
// maxInFlight containers handed out beyond that.
func NewPool(size, maxInFlight int) *Pool {
	if size < 0 {
		size = 0
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Pool{
		free:    make([]*Data, 0, size),
		size:    size,
		maxLive: size + maxInFlight,
	}
}

// Get returns a reset container, or false when the live ceiling is reached.
func (p *Pool) Get() (*Data, bool) {
	if n := len(p.free); n > 0 {
		d := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.stats.Hits++
		return d, true
	}
	if p.live >= p.maxLive {
		p.stats.Denied++
		return nil, false
	}
	p.live++
	p.stats.Misses++
	p.stats.PeakLive = max(p.stats.PeakLive, p.live)
	return &Data{}, true
}

// Put returns a container. It is kept for reuse when there is room and
// dropped otherwise.
func (p *Pool) Put(d *Data) {
	if d == nil {
		return
	}
	d.reset()
	if len(p.free) < p.size && cap(d.Rects) <= maxRetainedCap {
		p.free = append(p.free, d)
		return
	}
	p.live--
	p.stats.Discards++
}

// Warmup pre-allocates up to n containers into the free list.
func (p *Pool) Warmup(n int) {
	for len(p.free) < min(n, p.size) && p.live < p.maxLive {
		p.live++
		p.free = append(p.free, &Data{Rects: make([]render.RoundedRect, 0, 64)})
	}
	p.stats.PeakLive = max(p.stats.PeakLive, p.live)
}

// Live returns the number of containers alive (free plus handed out).
func (p *Pool) Live() int { return p.live }

// Free returns the number of containers ready for reuse.
func (p *Pool) Free() int { return len(p.free) }

// Size returns the free list bound.
func (p *Pool) Size() int { return p.size }

// MaxLive returns the live ceiling.
func (p *Pool) MaxLive() int { return p.maxLive }

// Stats returns pool counters.
func (p *Pool) Stats() PoolStats { return p.stats }
