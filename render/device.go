// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceHandle provides GPU device access from the host application.
//
// The note renderer RECEIVES the device from the host window, it does NOT
// create one. The host owns device lifetime, surface configuration and
// queue submission; this package only encodes work for it.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider so any provider
// from the gpucontext ecosystem can be passed directly.
type DeviceHandle = gpucontext.DeviceProvider

// DeviceCapabilities summarizes what the hardware path needs to know about
// a device handle.
type DeviceCapabilities struct {
	// HasDevice and HasQueue report whether the provider returned
	// non-nil handles.
	HasDevice bool
	HasQueue  bool

	// SurfaceFormat is the provider's preferred surface format.
	SurfaceFormat gputypes.TextureFormat

	// AdapterName and AdapterType come from the provider's adapter info.
	AdapterName string
	AdapterType gpucontext.AdapterType
}

// QueryCapabilities inspects a device handle. A nil handle yields the zero
// capabilities.
func QueryCapabilities(h DeviceHandle) DeviceCapabilities {
	if h == nil {
		return DeviceCapabilities{AdapterType: gpucontext.AdapterTypeUnknown}
	}
	info := h.AdapterInfo()
	return DeviceCapabilities{
		HasDevice:     h.Device() != nil,
		HasQueue:      h.Queue() != nil,
		SurfaceFormat: h.SurfaceFormat(),
		AdapterName:   info.Name,
		AdapterType:   info.Type,
	}
}

// SupportedSurfaceFormat reports whether the instanced pipeline can target f.
func SupportedSurfaceFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return true
	default:
		return false
	}
}

// NullDeviceHandle is a DeviceHandle that provides nil implementations.
// Used for CPU-only rendering where no GPU is available.
type NullDeviceHandle struct{}

// Device returns nil for the null device.
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil for the null device.
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null device.
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null device.
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo reports an unknown adapter.
func (NullDeviceHandle) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "null", Type: gpucontext.AdapterTypeUnknown}
}

// Ensure NullDeviceHandle implements DeviceHandle.
var _ DeviceHandle = NullDeviceHandle{}
