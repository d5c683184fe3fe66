// Package perf records per-frame timing and derives rolling statistics and
// optimization suggestions for the note renderer.
//
// A Monitor is driven by the render goroutine:
//
//	m.BeginFrame(delta)
//	m.RecordPrimitives(n)
//	m.RecordStage("batch", d)
//	sample := m.EndFrame()
//
// Samples are kept in a fixed ring, so statistics always describe the last
// Window frames. Monitor is not safe for concurrent use; publish [Report]
// values to other goroutines instead.
package perf

import (
	"slices"
	"time"

	"github.com/viterin/vek"
)

// Defaults.
const (
	DefaultWindow           = 120
	DefaultTargetFPS        = 60
	DefaultShadowThreshold  = 10000
	DefaultDensityThreshold = 50000
)

// Sample is one completed frame.
type Sample struct {
	Time       time.Time
	Duration   time.Duration
	FPS        float64
	Primitives int
	Batches    int
	GPUMemory  int64
}

type stage struct {
	name string
	d    time.Duration
}

type slot struct {
	Sample
	stages []stage
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithWindow sets the number of frames kept.
func WithWindow(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithTargetFPS sets the frame rate suggestions are measured against.
func WithTargetFPS(fps float64) Option {
	return func(m *Monitor) {
		if fps > 0 {
			m.targetFPS = fps
		}
	}
}

// WithShadowThreshold sets the primitive count above which secondary effects
// are suggested off when the target is missed.
func WithShadowThreshold(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.shadowThreshold = n
		}
	}
}

// WithDensityThreshold sets the primitive count above which LOD culling is
// suggested when frame time does not improve.
func WithDensityThreshold(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.densityThreshold = n
		}
	}
}

// WithClock sets the time source. It is used for sample timestamps and for
// frames whose delta is zero.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor keeps a ring of recent frame samples.
type Monitor struct {
	window           int
	targetFPS        float64
	shadowThreshold  int
	densityThreshold int
	now              func() time.Time

	ring  []slot
	next  int
	count int
	total uint64

	// current frame
	inFrame bool
	start   time.Time
	delta   time.Duration
	cur     slot

	// Reused by Stats and halves. Only the Stages map of a Stats value is
	// freshly allocated.
	scratch     []float64
	sorted      []float64
	prims       []float64
	batches     []float64
	stageSums   map[string]time.Duration
	stageCounts map[string]int
}

// New creates a monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		window:           DefaultWindow,
		targetFPS:        DefaultTargetFPS,
		shadowThreshold:  DefaultShadowThreshold,
		densityThreshold: DefaultDensityThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ring = make([]slot, m.window)
	return m
}

// TargetFPS returns the configured target frame rate.
func (m *Monitor) TargetFPS() float64 { return m.targetFPS }

// TargetFrameTime returns the frame duration at the target frame rate.
func (m *Monitor) TargetFrameTime() time.Duration {
	return time.Duration(float64(time.Second) / m.targetFPS)
}

// ShadowThreshold returns the secondary effect primitive threshold.
func (m *Monitor) ShadowThreshold() int { return m.shadowThreshold }

// BeginFrame starts a frame. A positive delta is taken as the frame
// duration; zero measures wall time until EndFrame.
func (m *Monitor) BeginFrame(delta time.Duration) {
	m.inFrame = true
	m.start = m.now()
	m.delta = delta
	m.cur.Sample = Sample{}
	m.cur.stages = m.cur.stages[:0]
}

// InFrame reports whether a frame is being recorded.
func (m *Monitor) InFrame() bool { return m.inFrame }

// RecordPrimitives sets the primitive count of the current frame.
func (m *Monitor) RecordPrimitives(n int) {
	if m.inFrame {
		m.cur.Primitives = n
	}
}

// RecordBatches sets the batch count of the current frame.
func (m *Monitor) RecordBatches(n int) {
	if m.inFrame {
		m.cur.Batches = n
	}
}

// RecordGPUMemory sets the GPU memory estimate of the current frame.
func (m *Monitor) RecordGPUMemory(bytes int64) {
	if m.inFrame {
		m.cur.GPUMemory = bytes
	}
}

// RecordStage adds d to the named stage of the current frame.
func (m *Monitor) RecordStage(name string, d time.Duration) {
	if !m.inFrame {
		return
	}
	for i := range m.cur.stages {
		if m.cur.stages[i].name == name {
			m.cur.stages[i].d += d
			return
		}
	}
	m.cur.stages = append(m.cur.stages, stage{name: name, d: d})
}

// EndFrame completes the frame and stores its sample. It returns the zero
// Sample when no frame was started.
func (m *Monitor) EndFrame() Sample {
	if !m.inFrame {
		return Sample{}
	}
	m.inFrame = false

	now := m.now()
	d := m.delta
	if d <= 0 {
		d = now.Sub(m.start)
	}
	m.cur.Time = now
	m.cur.Duration = d
	if d > 0 {
		m.cur.FPS = float64(time.Second) / float64(d)
	}

	dst := &m.ring[m.next]
	dst.Sample = m.cur.Sample
	dst.stages = append(dst.stages[:0], m.cur.stages...)
	m.next = (m.next + 1) % len(m.ring)
	m.count = min(m.count+1, len(m.ring))
	m.total++
	return dst.Sample
}

// Reset drops all samples.
func (m *Monitor) Reset() {
	for i := range m.ring {
		m.ring[i].Sample = Sample{}
		m.ring[i].stages = m.ring[i].stages[:0]
	}
	m.next, m.count, m.total = 0, 0, 0
	m.inFrame = false
}

// Len returns the number of samples in the window.
func (m *Monitor) Len() int { return m.count }

// Frames returns the number of frames recorded since creation or Reset.
func (m *Monitor) Frames() uint64 { return m.total }

// Samples returns the window in recording order, oldest first.
func (m *Monitor) Samples() []Sample {
	out := make([]Sample, 0, m.count)
	m.each(func(s *slot) { out = append(out, s.Sample) })
	return out
}

// Last returns the most recent sample.
func (m *Monitor) Last() (Sample, bool) {
	if m.count == 0 {
		return Sample{}, false
	}
	i := (m.next - 1 + len(m.ring)) % len(m.ring)
	return m.ring[i].Sample, true
}

func (m *Monitor) each(fn func(*slot)) {
	first := (m.next - m.count + len(m.ring)) % len(m.ring)
	for i := range m.count {
		fn(&m.ring[(first+i)%len(m.ring)])
	}
}

// durations fills the scratch buffer with frame times in milliseconds,
// oldest first.
func (m *Monitor) durations() []float64 {
	m.scratch = m.scratch[:0]
	m.each(func(s *slot) { m.scratch = append(m.scratch, ms(s.Duration)) })
	return m.scratch
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func fromMs(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }

// percentile returns the p-th percentile of sorted values using the
// nearest-rank-below rule.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(p * float64(len(sorted)) / 100)
	return sorted[min(i, len(sorted)-1)]
}

// Stats holds rolling statistics over the window.
type Stats struct {
	Samples int
	Frames  uint64

	AvgFPS       float64
	AvgFrameTime time.Duration
	MinFrameTime time.Duration
	MaxFrameTime time.Duration
	P95FrameTime time.Duration
	P99FrameTime time.Duration

	AvgPrimitives float64
	AvgBatches    float64
	GPUMemory     int64

	// Stages maps stage names to their average over frames that recorded
	// them.
	Stages map[string]time.Duration
}

// Stats computes statistics over the window.
func (m *Monitor) Stats() Stats {
	st := Stats{Samples: m.count, Frames: m.total}
	if m.count == 0 {
		return st
	}

	d := m.durations()
	avg := vek.Mean(d)
	st.AvgFrameTime = fromMs(avg)
	if avg > 0 {
		st.AvgFPS = 1000 / avg
	}
	st.MinFrameTime = fromMs(vek.Min(d))
	st.MaxFrameTime = fromMs(vek.Max(d))

	m.sorted = append(m.sorted[:0], d...)
	slices.Sort(m.sorted)
	st.P95FrameTime = fromMs(percentile(m.sorted, 95))
	st.P99FrameTime = fromMs(percentile(m.sorted, 99))

	if m.stageSums == nil {
		m.stageSums = make(map[string]time.Duration)
		m.stageCounts = make(map[string]int)
	}
	clear(m.stageSums)
	clear(m.stageCounts)
	m.prims, m.batches = m.prims[:0], m.batches[:0]
	first := (m.next - m.count + len(m.ring)) % len(m.ring)
	for i := range m.count {
		s := &m.ring[(first+i)%len(m.ring)]
		m.prims = append(m.prims, float64(s.Primitives))
		m.batches = append(m.batches, float64(s.Batches))
		for _, sg := range s.stages {
			m.stageSums[sg.name] += sg.d
			m.stageCounts[sg.name]++
		}
	}
	st.AvgPrimitives = vek.Mean(m.prims)
	st.AvgBatches = vek.Mean(m.batches)
	if last, ok := m.Last(); ok {
		st.GPUMemory = last.GPUMemory
	}
	if len(m.stageSums) > 0 {
		st.Stages = make(map[string]time.Duration, len(m.stageSums))
		for name, sum := range m.stageSums {
			st.Stages[name] = sum / time.Duration(m.stageCounts[name])
		}
	}
	return st
}

// halves returns the mean frame time in milliseconds of the older and the
// newer half of the window. ok is false with fewer than four samples.
func (m *Monitor) halves() (older, newer float64, ok bool) {
	d := m.durations()
	if len(d) < 4 {
		return 0, 0, false
	}
	h := len(d) / 2
	return vek.Mean(d[:h]), vek.Mean(d[h:]), true
}
