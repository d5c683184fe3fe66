package perf

import (
	"fmt"
	"time"
)

// Kind identifies an optimization suggestion.
type Kind uint8

const (
	// ReduceSecondaryEffects asks to stop drawing shadows and other
	// secondary passes.
	ReduceSecondaryEffects Kind = iota
	// LowerBatchThreshold asks for smaller batches.
	LowerBatchThreshold
	// EnableLODCulling asks to collapse sub-pixel primitives.
	EnableLODCulling
	// ReduceFrameJitter flags a wide spread between fastest and slowest frame.
	ReduceFrameJitter
	// ReduceStutter flags a slow 99th percentile.
	ReduceStutter
	// MergeBatches flags too many batches per frame.
	MergeBatches
	// ReleaseGPUMemory flags a high GPU memory estimate.
	ReleaseGPUMemory

	kindCount
)

var kindNames = [kindCount]string{
	ReduceSecondaryEffects: "reduce-secondary-effects",
	LowerBatchThreshold:    "lower-batch-threshold",
	EnableLODCulling:       "enable-lod-culling",
	ReduceFrameJitter:      "reduce-frame-jitter",
	ReduceStutter:          "reduce-stutter",
	MergeBatches:           "merge-batches",
	ReleaseGPUMemory:       "release-gpu-memory",
}

// String returns the kebab-case kind name.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Severity grades a suggestion.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityCaution
	SeverityWarning
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityCaution:
		return "caution"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Suggestion is an advisory optimization signal.
type Suggestion struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

func (s Suggestion) String() string {
	return s.Severity.String() + " " + s.Kind.String() + ": " + s.Detail
}

// Thresholds used by GenerateSuggestions that are not configurable.
const (
	slowFactor       = 1.2
	jitterFactor     = 0.5
	stutterFactor    = 2.0
	maxAvgBatches    = 1000
	maxGPUMemory     = 1000 << 20
	improvementRatio = 0.95
)

// GenerateSuggestions inspects the window and the current primitive count.
// It returns nil when the window is empty.
func (m *Monitor) GenerateSuggestions(primitives int) []Suggestion {
	if m.count == 0 {
		return nil
	}
	return m.suggest(m.Stats(), primitives)
}

// suggest derives suggestions from st, which must describe the current
// window.
func (m *Monitor) suggest(st Stats, primitives int) []Suggestion {
	if st.Samples == 0 {
		return nil
	}
	target := ms(m.TargetFrameTime())
	avg := ms(st.AvgFrameTime)

	var out []Suggestion
	add := func(k Kind, sev Severity, format string, args ...any) {
		out = append(out, Suggestion{Kind: k, Severity: sev, Detail: fmt.Sprintf(format, args...)})
	}

	if st.AvgFPS < m.targetFPS && primitives > m.shadowThreshold {
		add(ReduceSecondaryEffects, SeverityWarning,
			"%.1f fps below target %.0f with %d primitives", st.AvgFPS, m.targetFPS, primitives)
	}
	if avg > target*slowFactor {
		add(LowerBatchThreshold, SeverityWarning,
			"average frame %.2fms exceeds target %.2fms", avg, target)
	}
	if primitives > m.densityThreshold && avg > target {
		if older, newer, ok := m.halves(); ok && newer > older*improvementRatio {
			add(EnableLODCulling, SeverityCaution,
				"%d primitives, frame time %.2fms -> %.2fms", primitives, older, newer)
		}
	}
	if spread := ms(st.MaxFrameTime - st.MinFrameTime); spread > target*jitterFactor {
		add(ReduceFrameJitter, SeverityCaution,
			"frame time ranges %.2fms to %.2fms", ms(st.MinFrameTime), ms(st.MaxFrameTime))
	}
	if p99 := ms(st.P99FrameTime); p99 > target*stutterFactor {
		add(ReduceStutter, SeverityWarning, "p99 frame time %.2fms", p99)
	}
	if st.AvgBatches > maxAvgBatches {
		add(MergeBatches, SeverityWarning, "%.0f batches per frame", st.AvgBatches)
	}
	if st.GPUMemory > maxGPUMemory {
		add(ReleaseGPUMemory, SeverityCaution, "%.2f MiB estimated", float64(st.GPUMemory)/(1<<20))
	}
	return out
}

// Has reports whether list contains a suggestion of kind k.
func Has(list []Suggestion, k Kind) bool {
	for _, s := range list {
		if s.Kind == k {
			return true
		}
	}
	return false
}

// Report is a snapshot of the window for display and diagnostics.
type Report struct {
	Frames       uint64        `json:"frames"`
	Samples      int           `json:"samples"`
	AvgFPS       float64       `json:"avgFps"`
	FrameTime    time.Duration `json:"frameTimeNs"`
	MinFrameTime time.Duration `json:"minFrameTimeNs"`
	WorstFrame   time.Duration `json:"worstFrameNs"`
	P95FrameTime time.Duration `json:"p95FrameTimeNs"`
	P99FrameTime time.Duration `json:"p99FrameTimeNs"`

	AvgPrimitives float64 `json:"avgPrimitives"`
	AvgBatches    float64 `json:"avgBatches"`
	GPUMemory     int64   `json:"gpuMemory"`

	Stages      map[string]time.Duration `json:"stagesNs,omitempty"`
	Suggestions []Suggestion             `json:"suggestions,omitempty"`
}

// Report builds a report with suggestions for the given primitive count.
// Statistics are computed once and shared with the suggestions.
func (m *Monitor) Report(primitives int) Report {
	st := m.Stats()
	return Report{
		Frames:        st.Frames,
		Samples:       st.Samples,
		AvgFPS:        st.AvgFPS,
		FrameTime:     st.AvgFrameTime,
		MinFrameTime:  st.MinFrameTime,
		WorstFrame:    st.MaxFrameTime,
		P95FrameTime:  st.P95FrameTime,
		P99FrameTime:  st.P99FrameTime,
		AvgPrimitives: st.AvgPrimitives,
		AvgBatches:    st.AvgBatches,
		GPUMemory:     st.GPUMemory,
		Stages:        st.Stages,
		Suggestions:   m.suggest(st, primitives),
	}
}

// FrameTimeMs returns the average frame time in milliseconds.
func (r Report) FrameTimeMs() float64 { return ms(r.FrameTime) }

// WorstFrameMs returns the slowest frame in milliseconds.
func (r Report) WorstFrameMs() float64 { return ms(r.WorstFrame) }
