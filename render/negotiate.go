// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
)

// Reasons the hardware path can be rejected. Negotiate reports them wrapped
// in Negotiation.Reason; test with errors.Is.
var (
	ErrHardwareDisabled  = errors.New("render: hardware path disabled")
	ErrNoDevice          = errors.New("render: no GPU device")
	ErrNoQueue           = errors.New("render: no GPU queue")
	ErrUnsupportedFormat = errors.New("render: unsupported surface format")
	ErrSoftwareAdapter   = errors.New("render: software adapter")
	ErrNoSubmitter       = errors.New("render: no command submitter")
	ErrShaderCompile     = errors.New("render: shader compilation failed")
	ErrPipelineSetup     = errors.New("render: pipeline setup failed")
)

// NegotiateConfig holds everything the backend decision depends on.
type NegotiateConfig struct {
	// Device is the host's GPU device provider. Nil selects the rasterizer.
	Device DeviceHandle

	// Submitter receives encoded frames on the hardware path.
	Submitter Submitter

	// DisableHardware forces the rasterizer.
	DisableHardware bool

	// AllowSoftwareAdapter accepts adapters reporting AdapterTypeSoftware.
	// Such adapters are usually slower than the CPU rasterizer.
	AllowSoftwareAdapter bool

	// Compiler overrides the WGSL compiler. Nil uses naga.
	Compiler ShaderCompiler

	// GPUOptions and RasterOptions configure the selected backend.
	GPUOptions    []GPUOption
	RasterOptions []RasterOption

	// Logger receives the decision. Nil discards.
	Logger *slog.Logger
}

// Negotiation is the outcome of Negotiate.
type Negotiation struct {
	// Backend is ready to use. Never nil.
	Backend Backend

	// Kind is Backend.Kind().
	Kind Kind

	// Reason is nil when the hardware path was selected and otherwise
	// explains why the rasterizer was chosen.
	Reason error
}

// Fallback reports whether the rasterizer was selected.
func (n Negotiation) Fallback() bool { return n.Kind == KindRaster }

// Preflight checks the static preconditions of the hardware path without
// compiling shaders. It returns nil when they hold.
func Preflight(cfg NegotiateConfig) error {
	if cfg.DisableHardware {
		return ErrHardwareDisabled
	}
	if cfg.Device == nil {
		return ErrNoDevice
	}
	caps := QueryCapabilities(cfg.Device)
	if !caps.HasDevice {
		return ErrNoDevice
	}
	if !caps.HasQueue {
		return ErrNoQueue
	}
	if !SupportedSurfaceFormat(caps.SurfaceFormat) {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, caps.SurfaceFormat)
	}
	if caps.AdapterType == gpucontext.AdapterTypeSoftware && !cfg.AllowSoftwareAdapter {
		return fmt.Errorf("%w: %s", ErrSoftwareAdapter, caps.AdapterName)
	}
	if cfg.Submitter == nil {
		return ErrNoSubmitter
	}
	return nil
}

// Negotiate selects the hardware backend when every precondition holds and
// the pipeline compiles, and the rasterizer otherwise. It never fails and
// never panics; the reason for a fallback is logged once at warn level and
// returned.
func Negotiate(cfg NegotiateConfig) Negotiation {
	log := cfg.Logger
	if log == nil {
		log = discardLogger()
	}

	gpu, err := newGPUBackend(cfg)
	if err == nil {
		gpu.SetLogger(log)
		log.Info("render: hardware backend selected",
			"adapter", gpu.caps.AdapterName,
			"format", gpu.caps.SurfaceFormat.String())
		return Negotiation{Backend: gpu, Kind: KindHardware}
	}

	raster := NewRasterBackend(cfg.RasterOptions...)
	raster.SetLogger(log)
	log.Warn("render: falling back to rasterizer", "reason", err)
	return Negotiation{Backend: raster, Kind: KindRaster, Reason: err}
}

// newGPUBackend runs Preflight, compiles the pipeline and prepares it on the
// submitter. Panics from host code are converted to errors.
func newGPUBackend(cfg NegotiateConfig) (b *GPUBackend, err error) {
	if err := Preflight(cfg); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("%w: panic: %v", ErrPipelineSetup, r)
		}
	}()
	return NewGPUBackend(cfg.Device, cfg.Submitter, append([]GPUOption{WithCompiler(cfg.Compiler)}, cfg.GPUOptions...)...)
}
