package noteroll

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/noteroll/render"
)

// Config is the file form of the pipeline options.
// Zero fields keep their defaults.
//
//	budget: 268435456
//	target_fps: 60
//	palette:
//	  note-fill: "#32CD32"
//	hardware:
//	  disable: true
type Config struct {
	Budget              int64             `yaml:"budget,omitempty"`
	PoolSize            int               `yaml:"pool_size,omitempty"`
	MaxInFlight         int               `yaml:"max_in_flight,omitempty"`
	BatchCap            int               `yaml:"batch_cap,omitempty"`
	InstanceThreshold   int               `yaml:"instance_threshold,omitempty"`
	TargetFPS           float64           `yaml:"target_fps,omitempty"`
	MonitorWindow       int               `yaml:"monitor_window,omitempty"`
	ShadowThreshold     int               `yaml:"shadow_threshold,omitempty"`
	DetailThreshold     int               `yaml:"detail_threshold,omitempty"`
	DensityThreshold    int               `yaml:"density_threshold,omitempty"`
	PrecomputeThreshold int               `yaml:"precompute_threshold,omitempty"`
	TicksPerQuarter     int               `yaml:"ticks_per_quarter,omitempty"`
	FallbackAfter       int               `yaml:"fallback_after,omitempty"`
	ViewportMargin      *float64          `yaml:"viewport_margin,omitempty"`
	OptimizeEvery       *int              `yaml:"optimize_every,omitempty"`
	Workers             int               `yaml:"workers,omitempty"`
	RefreshDelay        time.Duration     `yaml:"refresh_delay,omitempty"`
	Palette             map[string]string `yaml:"palette,omitempty"`
	Hardware            HardwareConfig    `yaml:"hardware,omitempty"`
}

// HardwareConfig controls backend negotiation.
type HardwareConfig struct {
	Disable              bool `yaml:"disable,omitempty"`
	AllowSoftwareAdapter bool `yaml:"allow_software_adapter,omitempty"`
}

// LoadConfig decodes a YAML configuration. Unknown keys are an error.
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("noteroll: config: %w", err)
	}
	if _, err := c.palette(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// palette returns the default palette with the configured overrides.
func (c Config) palette() (Palette, error) {
	p := DefaultPalette()
	for name, hex := range c.Palette {
		if err := p.SetNamed(name, hex); err != nil {
			return Palette{}, fmt.Errorf("noteroll: config: %w", err)
		}
	}
	return p, nil
}

// Options converts the configuration to pipeline options.
// Palette errors are reported by LoadConfig; here invalid entries are skipped.
func (c Config) Options() []Option {
	opts := []Option{
		WithBudget(c.Budget),
		WithPoolSize(c.PoolSize, c.MaxInFlight),
		WithBatchCap(c.BatchCap),
		WithInstanceThreshold(c.InstanceThreshold),
		WithTargetFPS(c.TargetFPS),
		WithMonitorWindow(c.MonitorWindow),
		WithShadowThreshold(c.ShadowThreshold),
		WithStrategyThresholds(c.DetailThreshold, c.DensityThreshold),
		WithPrecomputeThreshold(c.PrecomputeThreshold),
		WithTicksPerQuarter(c.TicksPerQuarter),
		WithFallbackAfter(c.FallbackAfter),
	}
	if c.ViewportMargin != nil {
		opts = append(opts, WithViewportMargin(*c.ViewportMargin))
	}
	if c.OptimizeEvery != nil {
		opts = append(opts, WithOptimizeEvery(*c.OptimizeEvery))
	}
	if c.Workers != 0 {
		opts = append(opts, WithWorkers(c.Workers))
	}
	if len(c.Palette) > 0 {
		p := DefaultPalette()
		for name, hex := range c.Palette {
			_ = p.SetNamed(name, hex)
		}
		opts = append(opts, WithPalette(p))
	}
	return opts
}

// NegotiateConfig returns the backend negotiation settings. The caller
// fills in the device and submitter. The rasterizer clears frames to the
// palette background.
func (c Config) NegotiateConfig() render.NegotiateConfig {
	bg := DefaultPalette().Background
	if p, err := c.palette(); err == nil {
		bg = p.Background
	}
	return render.NegotiateConfig{
		DisableHardware:      c.Hardware.Disable,
		AllowSoftwareAdapter: c.Hardware.AllowSoftwareAdapter,
		RasterOptions:        []render.RasterOption{render.WithBackground(bg)},
	}
}

// SyncOptions returns the options for NewSyncContext.
func (c Config) SyncOptions() []SyncOption {
	if c.RefreshDelay > 0 {
		return []SyncOption{WithRefreshDelay(c.RefreshDelay)}
	}
	return nil
}
