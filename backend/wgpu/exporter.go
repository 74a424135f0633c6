// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/share"
)

// Custom option keys for hosts that pass raw HAL objects instead of a
// device provider.
const (
	// DeviceOption supplies the hal.Device backing this context's
	// textures.
	DeviceOption = "wgpu.device"

	// QueueOption supplies the hal.Queue used to submit composite
	// passes.
	QueueOption = "wgpu.queue"
)

// halDeviceFrom resolves the hal.Device for an exporter. The host's
// device provider is consulted first: gogpu providers expose their HAL
// objects through HalDevice()/HalQueue() accessors. The DeviceOption
// custom key is the fallback for hosts that hold a raw hal.Device.
func halDeviceFrom(opts share.Options) hal.Device {
	type halProvider interface {
		HalDevice() any
	}
	if hp, ok := opts.Device.(halProvider); ok {
		if dev, ok := hp.HalDevice().(hal.Device); ok && dev != nil {
			return dev
		}
	}
	dev, _ := opts.Custom[DeviceOption].(hal.Device)
	return dev
}

// halQueueFrom resolves the submission queue the same way.
func halQueueFrom(opts share.Options) hal.Queue {
	type halProvider interface {
		HalQueue() any
	}
	if hp, ok := opts.Device.(halProvider); ok {
		if q, ok := hp.HalQueue().(hal.Queue); ok && q != nil {
			return q
		}
	}
	q, _ := opts.Custom[QueueOption].(hal.Queue)
	return q
}

// handleTable resolves exported native IDs to their hal textures.
//
// wgpu does not expose OS-level share handles yet, so contexts in the
// same process resolve handles through this table; the IDs it issues
// will map one-to-one onto driver handles when wgpu exposes them. The
// table also owns the device generation counter that a loss bumps.
type handleTable struct {
	mu       sync.RWMutex
	surfaces map[uint64]*surfaceRecord

	nextID     atomic.Uint64
	generation atomic.Uint64
}

type surfaceRecord struct {
	texture hal.Texture
	view    hal.TextureView
	width   int
	height  int
}

// globalHandles is shared by every wgpu exporter in the process,
// mirroring how all contexts on one physical device see the same
// driver namespace.
var globalHandles = newHandleTable()

func newHandleTable() *handleTable {
	t := &handleTable{surfaces: make(map[uint64]*surfaceRecord)}
	t.generation.Store(1)
	return t
}

func (t *handleTable) publish(native uint64, tex *Texture) uint64 {
	if native == 0 {
		native = t.nextID.Add(1)
	}
	t.mu.Lock()
	t.surfaces[native] = &surfaceRecord{
		texture: tex.texture,
		view:    tex.view,
		width:   tex.width,
		height:  tex.height,
	}
	t.mu.Unlock()
	return native
}

func (t *handleTable) lookup(native uint64) (*surfaceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.surfaces[native]
	return rec, ok
}

// remove drops the record behind a native ID. Called when the owning
// texture is destroyed; outstanding handles to it become unknown.
func (t *handleTable) remove(native uint64) {
	t.mu.Lock()
	delete(t.surfaces, native)
	t.mu.Unlock()
}

func (t *handleTable) invalidate() {
	t.generation.Add(1)
	t.mu.Lock()
	t.surfaces = make(map[uint64]*surfaceRecord)
	t.mu.Unlock()
}

// Exporter is the wgpu implementation of share.Exporter. One exporter
// per graphics context; all exporters on the device share the handle
// namespace and generation counter.
type Exporter struct {
	device hal.Device
	table  *handleTable
	closed atomic.Bool

	textureSeq atomic.Uint64
}

// NewExporter creates an exporter for textures owned by device.
func NewExporter(device hal.Device) (*Exporter, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil hal device", share.ErrExportFailed)
	}
	return &Exporter{device: device, table: globalHandles}, nil
}

// AllocateTexture implements share.TextureAllocator.
func (e *Exporter) AllocateTexture(width, height int) (share.Texture, error) {
	if e.closed.Load() {
		return nil, share.ErrExporterClosed
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("wgpu: invalid texture size %dx%d", width, height)
	}
	label := fmt.Sprintf("compositor_tex_%d", e.textureSeq.Add(1))
	return newTexture(e.device, width, height, label)
}

// Export implements share.Exporter. Re-exporting a texture refreshes
// its record under the current generation; the native ID is stable for
// the texture's lifetime.
func (e *Exporter) Export(tex share.Texture) (share.Handle, error) {
	if e.closed.Load() {
		return share.Handle{}, share.ErrExporterClosed
	}
	wt, ok := tex.(*Texture)
	if !ok {
		return share.Handle{}, fmt.Errorf("%w: texture not owned by the wgpu backend", share.ErrExportFailed)
	}
	if wt.IsDestroyed() {
		return share.Handle{}, fmt.Errorf("%w: %w", share.ErrExportFailed, share.ErrTextureDestroyed)
	}

	native := e.table.publish(wt.native.Load(), wt)
	wt.native.Store(native)
	wt.table = e.table

	return share.Handle{
		Native:     native,
		Width:      wt.width,
		Height:     wt.height,
		Generation: e.table.generation.Load(),
	}, nil
}

// Import implements share.Exporter. The returned texture is a view of
// the exporting context's allocation; no pixel data is copied.
func (e *Exporter) Import(h share.Handle) (share.Texture, error) {
	if e.closed.Load() {
		return nil, share.ErrExporterClosed
	}
	if h.IsZero() {
		return nil, fmt.Errorf("%w: zero handle", share.ErrImportFailed)
	}

	current := e.table.generation.Load()
	if h.Generation != current {
		return nil, fmt.Errorf("%w: stale generation %d (current %d)",
			share.ErrImportFailed, h.Generation, current)
	}

	rec, ok := e.table.lookup(h.Native)
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %#x", share.ErrImportFailed, h.Native)
	}
	if rec.width != h.Width || rec.height != h.Height {
		return nil, fmt.Errorf("%w: dimension mismatch: handle %dx%d, allocation %dx%d",
			share.ErrImportFailed, h.Width, h.Height, rec.width, rec.height)
	}

	return &Texture{
		device:   e.device,
		texture:  rec.texture,
		view:     rec.view,
		width:    rec.width,
		height:   rec.height,
		label:    fmt.Sprintf("imported_%#x", h.Native),
		imported: true,
	}, nil
}

// Generation implements share.Exporter.
func (e *Exporter) Generation() uint64 {
	return e.table.generation.Load()
}

// Invalidate implements share.Exporter: the generation is bumped and
// every outstanding handle becomes stale at once.
func (e *Exporter) Invalidate() {
	e.table.invalidate()
}

// Close implements share.Exporter.
func (e *Exporter) Close() error {
	e.closed.Store(true)
	return nil
}

// Ensure Exporter implements the sharing interfaces.
var (
	_ share.Exporter         = (*Exporter)(nil)
	_ share.TextureAllocator = (*Exporter)(nil)
)

// init registers the wgpu backend at hardware priority. The factory
// takes the host's hal.Device from Options.Device when the provider
// exposes HAL types, else from the DeviceOption key.
func init() {
	share.Register("wgpu", 100, func(opts share.Options) (share.Exporter, error) {
		dev := halDeviceFrom(opts)
		if dev == nil {
			return nil, fmt.Errorf("wgpu: no hal device: Options.Device exposes none and the %q option is unset", DeviceOption)
		}
		return NewExporter(dev)
	}, available)
}
