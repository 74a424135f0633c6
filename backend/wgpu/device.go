// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	types "github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/compositor"
)

// Device errors.
var (
	// ErrNoGPU is returned when no suitable GPU adapter is found.
	ErrNoGPU = errors.New("wgpu: no suitable GPU adapter found")

	// ErrNotInitialized is returned when using a device before Init.
	ErrNotInitialized = errors.New("wgpu: device not initialized")
)

// GPUInfo describes the selected adapter.
type GPUInfo struct {
	Name       string
	Vendor     string
	DeviceType types.DeviceType
	Backend    types.Backend
	Driver     string
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", g.Name, g.DeviceType, g.Backend)
}

// Device owns the wgpu instance, adapter, device and queue for one
// sharing context.
type Device struct {
	mu sync.RWMutex

	instance *core.Instance
	adapter  core.AdapterID
	device   core.DeviceID
	queue    core.QueueID

	info        *GPUInfo
	initialized bool
}

// NewDevice creates an uninitialized device. Call Init before use.
func NewDevice() *Device {
	return &Device{}
}

// Init acquires the GPU: instance, adapter (preferring the
// high-performance GPU), logical device and queue.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	d.instance = core.NewInstance(&gputypes.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
	})

	adapterID, err := d.instance.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	d.adapter = adapterID

	if info, err := core.GetAdapterInfo(adapterID); err == nil {
		d.info = &GPUInfo{
			Name:       info.Name,
			Vendor:     info.Vendor,
			DeviceType: info.DeviceType,
			Backend:    info.Backend,
			Driver:     info.Driver,
		}
		compositor.Logger().Info("wgpu adapter selected",
			slog.String("gpu", d.info.String()))
	}

	deviceID, err := core.RequestDevice(adapterID, &types.DeviceDescriptor{
		Label:          "compositor-device",
		RequiredLimits: types.DefaultLimits(),
	})
	if err != nil {
		_ = core.AdapterDrop(adapterID)
		d.adapter = core.AdapterID{}
		return fmt.Errorf("wgpu: device creation failed: %w", err)
	}
	d.device = deviceID

	queueID, err := core.GetDeviceQueue(deviceID)
	if err != nil {
		_ = core.DeviceDrop(deviceID)
		_ = core.AdapterDrop(adapterID)
		d.device = core.DeviceID{}
		d.adapter = core.AdapterID{}
		return fmt.Errorf("wgpu: queue retrieval failed: %w", err)
	}
	d.queue = queueID

	d.initialized = true
	return nil
}

// IsInitialized reports whether Init has completed.
func (d *Device) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// Info returns adapter information, or nil before Init.
func (d *Device) Info() *GPUInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// DeviceID returns the logical device ID.
func (d *Device) DeviceID() core.DeviceID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.device
}

// QueueID returns the device queue ID.
func (d *Device) QueueID() core.QueueID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queue
}

// Probe implements a compositor.ProbeFunc: it asks the device for its
// limits, which fails once the device has been lost.
func (d *Device) Probe() error {
	d.mu.RLock()
	device := d.device
	initialized := d.initialized
	d.mu.RUnlock()

	if !initialized {
		return ErrNotInitialized
	}
	if _, err := core.GetDeviceLimits(device); err != nil {
		return fmt.Errorf("%w: %w", compositor.ErrDeviceLost, err)
	}
	return nil
}

// Close releases the device, adapter and instance in reverse order of
// creation. The queue is released with the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}

	var err error
	if !d.device.IsZero() {
		if derr := core.DeviceDrop(d.device); derr != nil {
			err = fmt.Errorf("wgpu: device release: %w", derr)
		}
		d.device = core.DeviceID{}
	}
	if !d.adapter.IsZero() {
		if aerr := core.AdapterDrop(d.adapter); aerr != nil && err == nil {
			err = fmt.Errorf("wgpu: adapter release: %w", aerr)
		}
		d.adapter = core.AdapterID{}
	}
	d.instance = nil
	d.queue = core.QueueID{}
	d.info = nil
	d.initialized = false
	return err
}

// adapterProbe caches a one-time availability check: whether an
// adapter can be acquired on this system at all.
var (
	adapterProbeOnce sync.Once
	adapterProbeOK   bool
)

// available reports whether the wgpu backend can run on this system.
func available() bool {
	adapterProbeOnce.Do(func() {
		instance := core.NewInstance(&gputypes.InstanceDescriptor{
			Backends: gputypes.BackendsPrimary,
		})
		adapterID, err := instance.RequestAdapter(&gputypes.RequestAdapterOptions{})
		if err != nil {
			return
		}
		_ = core.AdapterDrop(adapterID)
		adapterProbeOK = true
	})
	return adapterProbeOK
}
