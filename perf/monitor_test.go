package perf

import (
	"math"
	"testing"
	"time"
)

func frames(m *Monitor, n int, d time.Duration, primitives int) {
	for range n {
		m.BeginFrame(d)
		m.RecordPrimitives(primitives)
		m.EndFrame()
	}
}

// fakeClock advances by step on every call.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// =============================================================================
// Window statistics
// =============================================================================

func TestMonitor_Empty(t *testing.T) {
	m := New()
	st := m.Stats()
	if st.Samples != 0 || st.AvgFPS != 0 {
		t.Errorf("Stats() = %+v, want zero", st)
	}
	if got := m.GenerateSuggestions(1 << 20); got != nil {
		t.Errorf("GenerateSuggestions() = %v, want nil", got)
	}
	if s := m.EndFrame(); s != (Sample{}) {
		t.Errorf("EndFrame() without BeginFrame = %+v", s)
	}
}

func TestMonitor_SlowFrames(t *testing.T) {
	m := New(WithTargetFPS(60))
	frames(m, 50, 40*time.Millisecond, 20000)

	st := m.Stats()
	if math.Abs(st.AvgFPS-25) > 0.01 {
		t.Errorf("AvgFPS = %v, want 25", st.AvgFPS)
	}
	if st.AvgFrameTime != 40*time.Millisecond {
		t.Errorf("AvgFrameTime = %v, want 40ms", st.AvgFrameTime)
	}
	if st.MaxFrameTime != 40*time.Millisecond {
		t.Errorf("MaxFrameTime = %v, want 40ms", st.MaxFrameTime)
	}

	got := m.GenerateSuggestions(20000)
	if len(got) == 0 {
		t.Fatal("GenerateSuggestions() returned nothing")
	}
	for _, k := range []Kind{ReduceSecondaryEffects, LowerBatchThreshold, ReduceStutter} {
		if !Has(got, k) {
			t.Errorf("missing %v in %v", k, got)
		}
	}
	if Has(got, ReduceFrameJitter) {
		t.Error("steady frames reported jitter")
	}
}

func TestMonitor_FastFramesNoSuggestions(t *testing.T) {
	m := New()
	frames(m, 120, 10*time.Millisecond, 50000)
	if got := m.GenerateSuggestions(50000); len(got) != 0 {
		t.Errorf("GenerateSuggestions() = %v, want none", got)
	}
}

func TestMonitor_RingWrap(t *testing.T) {
	m := New(WithWindow(10))
	for i := 1; i <= 25; i++ {
		m.BeginFrame(time.Duration(i) * time.Millisecond)
		m.EndFrame()
	}
	if m.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", m.Len())
	}
	if m.Frames() != 25 {
		t.Errorf("Frames() = %d, want 25", m.Frames())
	}
	s := m.Samples()
	for i, smp := range s {
		want := time.Duration(16+i) * time.Millisecond
		if smp.Duration != want {
			t.Errorf("Samples()[%d].Duration = %v, want %v", i, smp.Duration, want)
		}
	}
	st := m.Stats()
	if st.MinFrameTime != 16*time.Millisecond || st.MaxFrameTime != 25*time.Millisecond {
		t.Errorf("min/max = %v/%v, want 16ms/25ms", st.MinFrameTime, st.MaxFrameTime)
	}
	if last, _ := m.Last(); last.Duration != 25*time.Millisecond {
		t.Errorf("Last().Duration = %v, want 25ms", last.Duration)
	}

	m.Reset()
	if m.Len() != 0 || m.Frames() != 0 || len(m.Samples()) != 0 {
		t.Error("Reset() kept samples")
	}
}

func TestMonitor_Percentiles(t *testing.T) {
	m := New(WithWindow(100))
	// Record in reverse so the ring order differs from sorted order.
	for i := 100; i >= 1; i-- {
		m.BeginFrame(time.Duration(i) * time.Millisecond)
		m.EndFrame()
	}
	st := m.Stats()
	if st.P95FrameTime != 96*time.Millisecond {
		t.Errorf("P95FrameTime = %v, want 96ms", st.P95FrameTime)
	}
	if st.P99FrameTime != 100*time.Millisecond {
		t.Errorf("P99FrameTime = %v, want 100ms", st.P99FrameTime)
	}
}

func TestMonitor_MeasuredDuration(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0), step: 20 * time.Millisecond}
	m := New(WithClock(clk.now))
	m.BeginFrame(0)
	s := m.EndFrame()
	if s.Duration != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", s.Duration)
	}
	if math.Abs(s.FPS-50) > 1e-9 {
		t.Errorf("FPS = %v, want 50", s.FPS)
	}
	if !s.Time.Equal(time.Unix(0, 0).Add(40 * time.Millisecond)) {
		t.Errorf("Time = %v", s.Time)
	}
}

func TestMonitor_Counters(t *testing.T) {
	m := New()
	m.RecordPrimitives(99) // outside a frame
	m.BeginFrame(10 * time.Millisecond)
	m.RecordPrimitives(1000)
	m.RecordBatches(12)
	m.RecordGPUMemory(4096)
	m.RecordStage("query", 2*time.Millisecond)
	m.RecordStage("query", time.Millisecond)
	m.RecordStage("submit", 4*time.Millisecond)
	s := m.EndFrame()

	if s.Primitives != 1000 || s.Batches != 12 || s.GPUMemory != 4096 {
		t.Errorf("EndFrame() = %+v", s)
	}

	m.BeginFrame(10 * time.Millisecond)
	m.RecordStage("query", 5*time.Millisecond)
	m.EndFrame()

	st := m.Stats()
	if st.Stages["query"] != 4*time.Millisecond {
		t.Errorf("Stages[query] = %v, want 4ms", st.Stages["query"])
	}
	if st.Stages["submit"] != 4*time.Millisecond {
		t.Errorf("Stages[submit] = %v, want 4ms", st.Stages["submit"])
	}
	if st.AvgPrimitives != 500 {
		t.Errorf("AvgPrimitives = %v, want 500", st.AvgPrimitives)
	}
}

// =============================================================================
// Suggestions
// =============================================================================

func TestMonitor_Suggestions(t *testing.T) {
	tests := []struct {
		name       string
		record     func(m *Monitor)
		primitives int
		want       Kind
		wantNot    bool
	}{
		{
			name: "jitter",
			record: func(m *Monitor) {
				frames(m, 10, 5*time.Millisecond, 0)
				frames(m, 1, 15*time.Millisecond, 0)
			},
			want: ReduceFrameJitter,
		},
		{
			name: "lod without improvement",
			record: func(m *Monitor) {
				for i := range 20 {
					frames(m, 1, time.Duration(20+i)*time.Millisecond, 60000)
				}
			},
			primitives: 60000,
			want:       EnableLODCulling,
		},
		{
			name: "lod while improving",
			record: func(m *Monitor) {
				for i := range 20 {
					frames(m, 1, time.Duration(60-2*i)*time.Millisecond, 60000)
				}
			},
			primitives: 60000,
			want:       EnableLODCulling,
			wantNot:    true,
		},
		{
			name: "many batches",
			record: func(m *Monitor) {
				m.BeginFrame(5 * time.Millisecond)
				m.RecordBatches(1500)
				m.EndFrame()
			},
			want: MergeBatches,
		},
		{
			name: "gpu memory",
			record: func(m *Monitor) {
				m.BeginFrame(5 * time.Millisecond)
				m.RecordGPUMemory(2 << 30)
				m.EndFrame()
			},
			want: ReleaseGPUMemory,
		},
		{
			name: "few primitives keep shadows",
			record: func(m *Monitor) {
				frames(m, 10, 40*time.Millisecond, 100)
			},
			primitives: 100,
			want:       ReduceSecondaryEffects,
			wantNot:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			tt.record(m)
			got := m.GenerateSuggestions(tt.primitives)
			if Has(got, tt.want) == tt.wantNot {
				t.Errorf("GenerateSuggestions() = %v, want %v present = %v", got, tt.want, !tt.wantNot)
			}
		})
	}
}

func TestReport(t *testing.T) {
	m := New()
	frames(m, 50, 40*time.Millisecond, 20000)
	r := m.Report(20000)
	if r.Frames != 50 || r.Samples != 50 {
		t.Errorf("Frames = %d, Samples = %d, want 50, 50", r.Frames, r.Samples)
	}
	if math.Abs(r.FrameTimeMs()-40) > 1e-9 || math.Abs(r.WorstFrameMs()-40) > 1e-9 {
		t.Errorf("FrameTimeMs() = %v, WorstFrameMs() = %v", r.FrameTimeMs(), r.WorstFrameMs())
	}
	if len(r.Suggestions) == 0 {
		t.Error("Report() has no suggestions")
	}
}

func TestReport_SuggestionsMatchStats(t *testing.T) {
	m := New()
	frames(m, 30, 10*time.Millisecond, 20000)
	frames(m, 30, 45*time.Millisecond, 20000)

	r := m.Report(60000)
	want := m.GenerateSuggestions(60000)
	if len(r.Suggestions) != len(want) {
		t.Fatalf("Report().Suggestions = %v, want %v", r.Suggestions, want)
	}
	for i := range want {
		if r.Suggestions[i] != want[i] {
			t.Errorf("suggestion %d = %v, want %v", i, r.Suggestions[i], want[i])
		}
	}
}

func TestStats_ReusesBuffers(t *testing.T) {
	m := New()
	frames(m, DefaultWindow, 16*time.Millisecond, 500)
	m.Stats()

	if n := testing.AllocsPerRun(20, func() { m.Stats() }); n != 0 {
		t.Errorf("Stats() allocs = %v, want 0", n)
	}
}

func TestStats_StagesNotShared(t *testing.T) {
	m := New()
	m.BeginFrame(10 * time.Millisecond)
	m.RecordStage("batch", 2*time.Millisecond)
	m.EndFrame()
	first := m.Stats()

	m.BeginFrame(10 * time.Millisecond)
	m.RecordStage("batch", 4*time.Millisecond)
	m.RecordStage("present", time.Millisecond)
	m.EndFrame()
	second := m.Stats()

	if first.Stages["batch"] != 2*time.Millisecond || len(first.Stages) != 1 {
		t.Errorf("first Stages = %v, changed by a later Stats()", first.Stages)
	}
	if second.Stages["batch"] != 3*time.Millisecond || second.Stages["present"] != time.Millisecond {
		t.Errorf("second Stages = %v", second.Stages)
	}
}

func TestKindString(t *testing.T) {
	for k := range kindCount {
		if kindNames[k] == "" {
			t.Errorf("Kind(%d) has no name", k)
		}
	}
	if got := Kind(200).String(); got != "Kind(200)" {
		t.Errorf("Kind(200).String() = %q", got)
	}
	if got := SeverityCritical.String(); got != "critical" {
		t.Errorf("SeverityCritical.String() = %q", got)
	}
}
