package noteroll

import (
	"log/slog"
	"time"

	"github.com/gogpu/noteroll/internal/batch"
	"github.com/gogpu/noteroll/perf"
)

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := noteroll.New(sc,
//	    noteroll.WithBudget(64<<20),
//	    noteroll.WithTargetFPS(120),
//	)
type Option func(*options)

// options holds pipeline configuration.
type options struct {
	budget              int64
	poolSize            int
	maxInFlight         int
	batchCap            int
	instanceThreshold   int
	targetFPS           float64
	monitorWindow       int
	shadowThreshold     int
	densityThreshold    int
	detailThreshold     int
	precomputeThreshold int
	ticksPerQuarter     int
	palette             Palette
	fallbackAfter       int
	viewportMargin      float64
	optimizeEvery       int
	workers             int
	clock               func() time.Time
	logger              *slog.Logger
}

// Defaults for pipeline options not covered by sub-packages.
const (
	DefaultDetailThreshold     = 1000
	DefaultPrecomputeThreshold = 20000
	DefaultFallbackAfter       = 3
	DefaultViewportMargin      = 0.25
	DefaultOptimizeEvery       = 600
)

func defaultOptions() options {
	return options{
		budget:              batch.DefaultCeiling,
		poolSize:            batch.DefaultPoolSize,
		maxInFlight:         batch.DefaultMaxInFlight,
		batchCap:            batch.DefaultSizeCap,
		instanceThreshold:   batch.DefaultInstanceThreshold,
		targetFPS:           perf.DefaultTargetFPS,
		monitorWindow:       perf.DefaultWindow,
		shadowThreshold:     perf.DefaultShadowThreshold,
		densityThreshold:    perf.DefaultDensityThreshold,
		detailThreshold:     DefaultDetailThreshold,
		precomputeThreshold: DefaultPrecomputeThreshold,
		ticksPerQuarter:     DefaultTicksPerQuarter,
		palette:             DefaultPalette(),
		fallbackAfter:       DefaultFallbackAfter,
		viewportMargin:      DefaultViewportMargin,
		optimizeEvery:       DefaultOptimizeEvery,
		clock:               time.Now,
	}
}

// WithBudget sets the GPU memory ceiling in bytes for pending batches.
func WithBudget(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.budget = bytes
		}
	}
}

// WithPoolSize sets how many batch containers are kept for reuse and how
// many may be live at once. Zero keeps the default.
func WithPoolSize(size, maxInFlight int) Option {
	return func(o *options) {
		if size > 0 {
			o.poolSize = size
		}
		if maxInFlight > 0 {
			o.maxInFlight = maxInFlight
		}
	}
}

// WithBatchCap sets the batch size cap for small primitives.
func WithBatchCap(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchCap = n
		}
	}
}

// WithInstanceThreshold sets the smallest batch drawn with one instanced call.
func WithInstanceThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.instanceThreshold = n
		}
	}
}

// WithTargetFPS sets the frame rate the monitor measures against.
func WithTargetFPS(fps float64) Option {
	return func(o *options) {
		if fps > 0 {
			o.targetFPS = fps
		}
	}
}

// WithMonitorWindow sets the number of frames the monitor keeps.
func WithMonitorWindow(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.monitorWindow = n
		}
	}
}

// WithShadowThreshold sets the visible note count above which shadows are
// not drawn.
func WithShadowThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shadowThreshold = n
		}
	}
}

// WithStrategyThresholds sets the visible note counts that select the
// detailed (below detail) and density (at or above density) strategies.
func WithStrategyThresholds(detail, density int) Option {
	return func(o *options) {
		if detail > 0 {
			o.detailThreshold = detail
		}
		if density > 0 {
			o.densityThreshold = density
		}
	}
}

// WithPrecomputeThreshold sets the visible note count above which screen
// rectangles are prepared on a worker.
func WithPrecomputeThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.precomputeThreshold = n
		}
	}
}

// WithTicksPerQuarter sets the tick resolution of note times.
func WithTicksPerQuarter(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.ticksPerQuarter = n
		}
	}
}

// WithPalette sets the colors.
func WithPalette(p Palette) Option {
	return func(o *options) { o.palette = p }
}

// WithFallbackAfter sets how many consecutive failed or degraded hardware
// frames switch the pipeline to the raster backend.
func WithFallbackAfter(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.fallbackAfter = n
		}
	}
}

// WithViewportMargin sets how far beyond the visible area notes are
// fetched, as a fraction of the viewport size.
func WithViewportMargin(f float64) Option {
	return func(o *options) {
		if f >= 0 {
			o.viewportMargin = f
		}
	}
}

// WithOptimizeEvery sets the frame interval of background index
// optimization. Zero disables it.
func WithOptimizeEvery(frames int) Option {
	return func(o *options) {
		if frames >= 0 {
			o.optimizeEvery = frames
		}
	}
}

// WithWorkers sets the number of background workers.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithClock sets the time source for frame measurement.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithLogger gives the pipeline its own logger instead of following
// SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
