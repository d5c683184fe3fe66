package noteroll

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/noteroll/render"
)

const sampleConfig = `
budget: 67108864
pool_size: 20
max_in_flight: 32
batch_cap: 400
target_fps: 120
monitor_window: 60
shadow_threshold: 2000
detail_threshold: 500
density_threshold: 30000
ticks_per_quarter: 960
viewport_margin: 0
optimize_every: 0
refresh_delay: 8ms
palette:
  note-fill: "#FF8800"
  background: "#000000"
hardware:
  disable: true
`

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if c.Budget != 64<<20 || c.BatchCap != 400 || c.TargetFPS != 120 {
		t.Errorf("Budget = %d, BatchCap = %d, TargetFPS = %v", c.Budget, c.BatchCap, c.TargetFPS)
	}
	if c.RefreshDelay != 8*time.Millisecond {
		t.Errorf("RefreshDelay = %v, want 8ms", c.RefreshDelay)
	}
	if c.ViewportMargin == nil || *c.ViewportMargin != 0 {
		t.Errorf("ViewportMargin = %v, want explicit 0", c.ViewportMargin)
	}
	if !c.Hardware.Disable {
		t.Error("Hardware.Disable = false")
	}

	o := defaultOptions()
	for _, opt := range c.Options() {
		opt(&o)
	}
	switch {
	case o.budget != 64<<20:
		t.Errorf("budget = %d", o.budget)
	case o.poolSize != 20 || o.maxInFlight != 32:
		t.Errorf("pool = %d/%d", o.poolSize, o.maxInFlight)
	case o.batchCap != 400 || o.targetFPS != 120 || o.monitorWindow != 60:
		t.Errorf("batchCap = %d, targetFPS = %v, monitorWindow = %d", o.batchCap, o.targetFPS, o.monitorWindow)
	case o.detailThreshold != 500 || o.densityThreshold != 30000 || o.shadowThreshold != 2000:
		t.Errorf("thresholds = %d/%d/%d", o.detailThreshold, o.densityThreshold, o.shadowThreshold)
	case o.ticksPerQuarter != 960:
		t.Errorf("ticksPerQuarter = %d", o.ticksPerQuarter)
	case o.viewportMargin != 0 || o.optimizeEvery != 0:
		t.Errorf("viewportMargin = %v, optimizeEvery = %d", o.viewportMargin, o.optimizeEvery)
	case o.palette.NoteFill != render.MustHex("#FF8800"):
		t.Errorf("palette note fill = %v", o.palette.NoteFill)
	}
	// Unset fields keep their defaults.
	if o.instanceThreshold != defaultOptions().instanceThreshold {
		t.Errorf("instanceThreshold = %d, want default", o.instanceThreshold)
	}

	nc := c.NegotiateConfig()
	if !nc.DisableHardware || len(nc.RasterOptions) != 1 {
		t.Errorf("NegotiateConfig() = %+v", nc)
	}
	if len(c.SyncOptions()) != 1 {
		t.Errorf("SyncOptions() = %d options, want 1", len(c.SyncOptions()))
	}
}

func TestLoadConfig_Empty(t *testing.T) {
	c, err := LoadConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadConfig(empty) error = %v", err)
	}
	want := defaultOptions()
	got := defaultOptions()
	for _, opt := range c.Options() {
		opt(&got)
	}
	if got.budget != want.budget || got.batchCap != want.batchCap ||
		got.viewportMargin != want.viewportMargin || got.optimizeEvery != want.optimizeEvery ||
		got.palette != want.palette {
		t.Errorf("empty config changed defaults: %+v", got)
	}
	if c.SyncOptions() != nil {
		t.Error("SyncOptions() for empty config not nil")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "budgett: 10\n", "budgett"},
		{"unknown color", "palette:\n  note-glow: \"#FFFFFF\"\n", "note-glow"},
		{"bad hex", "palette:\n  note-fill: \"green\"\n", "note-fill"},
		{"bad type", "target_fps: fast\n", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("LoadConfig() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noteroll.yaml")
	if err := os.WriteFile(path, []byte("batch_cap: 250\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if c.BatchCap != 250 {
		t.Errorf("BatchCap = %d, want 250", c.BatchCap)
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfigFile(missing) succeeded")
	}
}

func TestConfig_BackgroundReachesRasterizer(t *testing.T) {
	c, err := LoadConfig(strings.NewReader("palette:\n  background: \"#102030\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	sc := NewSyncContext(c.NegotiateConfig(), c.SyncOptions()...)
	defer sc.Close()
	p, err := New(sc, c.Options()...)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	mustRender(t, p, testViewport())
	want := render.MustHex("#102030")
	if got := pixelAt(lastImage(t, p), 5, 5); !nearColor(got, want) {
		t.Errorf("background = %v, want %v", got, want)
	}
}
