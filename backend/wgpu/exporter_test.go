// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/compositor/share"
)

// newNoopDevice opens a noop hal device and queue for testing.
func newNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("no noop adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// hostProvider is a device provider exposing HAL types the way gogpu
// hosts do.
type hostProvider struct {
	dev   any
	queue any
}

func (p *hostProvider) Device() gpucontext.Device             { return nil }
func (p *hostProvider) Queue() gpucontext.Queue               { return nil }
func (p *hostProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *hostProvider) SurfaceFormat() gputypes.TextureFormat { return share.PipelineFormat }
func (p *hostProvider) HalDevice() any                        { return p.dev }
func (p *hostProvider) HalQueue() any                         { return p.queue }

func TestBackendRegistered(t *testing.T) {
	entry, ok := share.Get("wgpu")
	if !ok {
		t.Fatal("wgpu backend not registered")
	}
	if entry.Priority != 100 {
		t.Errorf("priority = %d, want 100", entry.Priority)
	}
}

func TestFactoryRequiresDevice(t *testing.T) {
	entry, ok := share.Get("wgpu")
	if !ok {
		t.Fatal("wgpu backend not registered")
	}
	_, err := entry.Factory(share.Options{})
	if err == nil {
		t.Fatal("factory accepted missing hal device")
	}
	if !strings.Contains(err.Error(), DeviceOption) {
		t.Errorf("err = %v, want mention of %q", err, DeviceOption)
	}
}

func TestNewExporterNilDevice(t *testing.T) {
	_, err := NewExporter(nil)
	if !errors.Is(err, share.ErrExportFailed) {
		t.Errorf("NewExporter(nil) = %v, want ErrExportFailed", err)
	}
}

func TestCompileToSPIRVWordOrder(t *testing.T) {
	// SPIR-V modules begin with the magic number 0x07230203 in
	// little-endian byte order.
	words, err := compileToSPIRV(compositeShaderWGSL)
	if err != nil {
		t.Fatalf("compile embedded composite shader: %v", err)
	}
	if len(words) == 0 {
		t.Fatal("empty SPIR-V output")
	}
	if words[0] != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x, want 0x07230203", words[0])
	}
}

func TestHandleTableGenerations(t *testing.T) {
	table := newHandleTable()
	if got := table.generation.Load(); got != 1 {
		t.Fatalf("initial generation = %d, want 1", got)
	}

	tex := &Texture{width: 8, height: 8}
	native := table.publish(0, tex)
	if native == 0 {
		t.Fatal("publish returned zero native ID")
	}
	if again := table.publish(native, tex); again != native {
		t.Errorf("republish changed native ID: %d -> %d", native, again)
	}
	if _, ok := table.lookup(native); !ok {
		t.Fatal("published handle not found")
	}

	table.invalidate()
	if got := table.generation.Load(); got != 2 {
		t.Errorf("generation after invalidate = %d, want 2", got)
	}
	if _, ok := table.lookup(native); ok {
		t.Error("handle survived invalidation")
	}
}

func TestFactoryUsesProviderDevice(t *testing.T) {
	dev, queue, cleanup := newNoopDevice(t)
	defer cleanup()

	entry, ok := share.Get("wgpu")
	if !ok {
		t.Fatal("wgpu backend not registered")
	}
	exp, err := entry.Factory(share.Options{Device: &hostProvider{dev: dev, queue: queue}})
	if err != nil {
		t.Fatalf("factory with provider device: %v", err)
	}
	defer exp.Close()

	alloc, ok := exp.(share.TextureAllocator)
	if !ok {
		t.Fatal("exporter does not allocate textures")
	}
	tex, err := alloc.AllocateTexture(8, 8)
	if err != nil {
		t.Fatalf("AllocateTexture on provider-backed exporter: %v", err)
	}
	tex.Destroy()
}

func TestFactoryFallsBackToCustomOption(t *testing.T) {
	dev, _, cleanup := newNoopDevice(t)
	defer cleanup()

	entry, ok := share.Get("wgpu")
	if !ok {
		t.Fatal("wgpu backend not registered")
	}
	// The provider exposes no usable HAL device; the custom key carries
	// the real one.
	exp, err := entry.Factory(share.Options{
		Device: &hostProvider{dev: "not a device"},
		Custom: map[string]any{DeviceOption: dev},
	})
	if err != nil {
		t.Fatalf("factory with custom device option: %v", err)
	}
	exp.Close()
}

func TestDestroyUnpublishesHandle(t *testing.T) {
	dev, _, cleanup := newNoopDevice(t)
	defer cleanup()

	e := &Exporter{device: dev, table: newHandleTable()}
	tex, err := e.AllocateTexture(8, 8)
	if err != nil {
		t.Fatalf("AllocateTexture: %v", err)
	}
	h, err := e.Export(tex)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := e.Import(h); err != nil {
		t.Fatalf("Import before destroy: %v", err)
	}

	tex.Destroy()
	if _, err := e.Import(h); !errors.Is(err, share.ErrImportFailed) {
		t.Errorf("Import after destroy = %v, want ErrImportFailed", err)
	}
	if got := len(e.table.surfaces); got != 0 {
		t.Errorf("table records after destroy = %d, want 0", got)
	}
}

func TestImportedViewDestroyKeepsHandle(t *testing.T) {
	dev, _, cleanup := newNoopDevice(t)
	defer cleanup()

	e := &Exporter{device: dev, table: newHandleTable()}
	tex, err := e.AllocateTexture(8, 8)
	if err != nil {
		t.Fatalf("AllocateTexture: %v", err)
	}
	defer tex.Destroy()
	h, err := e.Export(tex)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	view, err := e.Import(h)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	view.Destroy()

	if _, err := e.Import(h); err != nil {
		t.Errorf("Import after view destroy = %v, want nil", err)
	}
}

func TestDeviceProbeBeforeInit(t *testing.T) {
	d := NewDevice()
	if err := d.Probe(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Probe before Init = %v, want ErrNotInitialized", err)
	}
	if d.IsInitialized() {
		t.Error("IsInitialized = true before Init")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close before Init = %v, want nil", err)
	}
}
