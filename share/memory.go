// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package share

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Table models the driver's shared-memory namespace: the set of
// allocations that exported handles refer to, plus the device
// generation counter that a loss event bumps.
//
// Exporters bound to the same table behave like graphics contexts on
// the same device. Table is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	surfaces map[uint64]*surfaceRecord

	nextID     atomic.Uint64
	generation atomic.Uint64
}

// surfaceRecord is one shared allocation.
type surfaceRecord struct {
	img        *image.RGBA
	width      int
	height     int
	generation uint64
}

// globalTable is the process-wide table used when Options.Table is nil.
var (
	globalTable     *Table
	globalTableOnce sync.Once
)

// GlobalTable returns the process-wide shared-memory table.
func GlobalTable() *Table {
	globalTableOnce.Do(func() {
		globalTable = NewTable()
	})
	return globalTable
}

// NewTable creates an empty shared-memory table at generation 1.
func NewTable() *Table {
	t := &Table{
		surfaces: make(map[uint64]*surfaceRecord),
	}
	t.generation.Store(1)
	return t
}

// Generation returns the current device generation.
func (t *Table) Generation() uint64 {
	return t.generation.Load()
}

// Invalidate bumps the generation and drops every shared allocation,
// stranding all outstanding handles at once. It models a device loss.
func (t *Table) Invalidate() {
	t.generation.Add(1)

	t.mu.Lock()
	t.surfaces = make(map[uint64]*surfaceRecord)
	t.mu.Unlock()
}

// Len returns the number of live shared allocations.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.surfaces)
}

// publish registers or refreshes an allocation and returns its native ID.
func (t *Table) publish(native uint64, img *image.RGBA, w, h int) uint64 {
	if native == 0 {
		native = t.nextID.Add(1)
	}

	t.mu.Lock()
	t.surfaces[native] = &surfaceRecord{
		img:        img,
		width:      w,
		height:     h,
		generation: t.generation.Load(),
	}
	t.mu.Unlock()

	return native
}

// lookup returns the record behind a native ID.
func (t *Table) lookup(native uint64) (*surfaceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.surfaces[native]
	return rec, ok
}

// remove drops the record behind a native ID. Called when the owning
// texture is destroyed; outstanding handles to it become unknown.
func (t *Table) remove(native uint64) {
	t.mu.Lock()
	delete(t.surfaces, native)
	t.mu.Unlock()
}

// MemoryTexture is a CPU-resident texture in the memory backend.
//
// Textures created by NewTexture own their pixels; textures returned by
// Import view the exporting context's pixels without copying.
type MemoryTexture struct {
	img    *image.RGBA
	width  int
	height int

	// native is assigned on first export, stable afterwards. table is
	// the namespace the native ID was published into.
	native atomic.Uint64
	table  *Table

	imported bool
	released atomic.Bool
}

// Width returns the texture width in pixels.
func (t *MemoryTexture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *MemoryTexture) Height() int { return t.height }

// Format returns the pipeline pixel format.
func (t *MemoryTexture) Format() gputypes.TextureFormat { return PipelineFormat }

// Image returns the backing pixel buffer. The returned image shares
// memory with the texture.
func (t *MemoryTexture) Image() *image.RGBA { return t.img }

// Imported reports whether the texture was produced by Import.
func (t *MemoryTexture) Imported() bool { return t.imported }

// Destroy releases the texture binding. Destroy is idempotent. For
// imported textures this drops only this context's view; the exporting
// context's allocation is untouched. Destroying an exported texture
// unpublishes its native ID: outstanding handles to it stop importing.
func (t *MemoryTexture) Destroy() {
	if t.released.Swap(true) {
		return
	}
	if t.imported {
		return
	}
	if t.table != nil {
		if native := t.native.Load(); native != 0 {
			t.table.remove(native)
		}
	}
}

// IsDestroyed returns true if the texture has been destroyed.
func (t *MemoryTexture) IsDestroyed() bool {
	return t.released.Load()
}

// Ensure MemoryTexture implements the texture interfaces.
var (
	_ Texture      = (*MemoryTexture)(nil)
	_ PixelTexture = (*MemoryTexture)(nil)
)

// MemoryExporter is the software implementation of Exporter.
//
// It is used by tests, headless runs and as the lowest-priority
// fallback backend. Fault injection hooks (FailExports, FailImports)
// let callers exercise the compositor's degradation paths without a
// real device loss.
type MemoryExporter struct {
	table  *Table
	closed atomic.Bool

	mu         sync.Mutex
	exportErr  error
	importErr  error
	exportOK   atomic.Uint64
	importOK   atomic.Uint64
	exportFail atomic.Uint64
	importFail atomic.Uint64
}

// NewMemoryExporter creates an exporter bound to the given table.
// Passing nil binds the process-wide table.
func NewMemoryExporter(table *Table) *MemoryExporter {
	if table == nil {
		table = GlobalTable()
	}
	return &MemoryExporter{table: table}
}

// NewTexture allocates a texture local to this context.
func (e *MemoryExporter) NewTexture(width, height int) *MemoryTexture {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	return &MemoryTexture{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}
}

// AllocateTexture implements TextureAllocator.
func (e *MemoryExporter) AllocateTexture(width, height int) (Texture, error) {
	if e.closed.Load() {
		return nil, ErrExporterClosed
	}
	return e.NewTexture(width, height), nil
}

// Export produces a handle importable by another exporter on the same
// table. Re-exporting a texture refreshes its record under the current
// generation; its native ID is stable.
func (e *MemoryExporter) Export(tex Texture) (Handle, error) {
	if e.closed.Load() {
		return Handle{}, ErrExporterClosed
	}

	e.mu.Lock()
	injected := e.exportErr
	e.mu.Unlock()
	if injected != nil {
		e.exportFail.Add(1)
		return Handle{}, fmt.Errorf("%w: %w", ErrExportFailed, injected)
	}

	mt, ok := tex.(*MemoryTexture)
	if !ok {
		return Handle{}, fmt.Errorf("%w: texture not owned by the memory backend", ErrExportFailed)
	}
	if mt.IsDestroyed() {
		return Handle{}, fmt.Errorf("%w: %w", ErrExportFailed, ErrTextureDestroyed)
	}

	native := e.table.publish(mt.native.Load(), mt.img, mt.width, mt.height)
	mt.native.Store(native)
	mt.table = e.table

	e.exportOK.Add(1)
	return Handle{
		Native:     native,
		Width:      mt.width,
		Height:     mt.height,
		Generation: e.table.Generation(),
	}, nil
}

// Import binds the allocation behind h as a texture viewing the
// exporter's pixels. It requires matching dimensions and a live
// generation.
func (e *MemoryExporter) Import(h Handle) (Texture, error) {
	if e.closed.Load() {
		return nil, ErrExporterClosed
	}
	if h.IsZero() {
		return nil, fmt.Errorf("%w: zero handle", ErrImportFailed)
	}

	e.mu.Lock()
	injected := e.importErr
	e.mu.Unlock()
	if injected != nil {
		e.importFail.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrImportFailed, injected)
	}

	current := e.table.Generation()
	if h.Generation != current {
		e.importFail.Add(1)
		return nil, fmt.Errorf("%w: stale generation %d (current %d)",
			ErrImportFailed, h.Generation, current)
	}

	rec, ok := e.table.lookup(h.Native)
	if !ok {
		e.importFail.Add(1)
		return nil, fmt.Errorf("%w: unknown handle %#x", ErrImportFailed, h.Native)
	}
	if rec.width != h.Width || rec.height != h.Height {
		e.importFail.Add(1)
		return nil, fmt.Errorf("%w: dimension mismatch: handle %dx%d, allocation %dx%d",
			ErrImportFailed, h.Width, h.Height, rec.width, rec.height)
	}

	e.importOK.Add(1)
	return &MemoryTexture{
		img:      rec.img,
		width:    rec.width,
		height:   rec.height,
		imported: true,
	}, nil
}

// Generation returns the current device generation.
func (e *MemoryExporter) Generation() uint64 {
	return e.table.Generation()
}

// Invalidate records a device loss on the underlying table.
func (e *MemoryExporter) Invalidate() {
	e.table.Invalidate()
}

// Close releases the exporter. Further Export and Import calls fail.
func (e *MemoryExporter) Close() error {
	e.closed.Store(true)
	return nil
}

// FailExports injects err into every subsequent Export call.
// Pass nil to restore normal operation.
func (e *MemoryExporter) FailExports(err error) {
	e.mu.Lock()
	e.exportErr = err
	e.mu.Unlock()
}

// FailImports injects err into every subsequent Import call.
// Pass nil to restore normal operation.
func (e *MemoryExporter) FailImports(err error) {
	e.mu.Lock()
	e.importErr = err
	e.mu.Unlock()
}

// Stats returns operation counters for diagnostics.
func (e *MemoryExporter) Stats() ExporterStats {
	return ExporterStats{
		Exports:        e.exportOK.Load(),
		Imports:        e.importOK.Load(),
		ExportFailures: e.exportFail.Load(),
		ImportFailures: e.importFail.Load(),
	}
}

// ExporterStats holds operation counters for an exporter.
type ExporterStats struct {
	Exports        uint64
	Imports        uint64
	ExportFailures uint64
	ImportFailures uint64
}

// Ensure MemoryExporter implements the sharing interfaces.
var (
	_ Exporter         = (*MemoryExporter)(nil)
	_ TextureAllocator = (*MemoryExporter)(nil)
)
