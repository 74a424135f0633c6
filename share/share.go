// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package share

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
)

// Sharing errors.
var (
	// ErrExportFailed is returned when the driver or OS refuses to share
	// a texture across contexts. Recoverable: the producer skips the
	// commit and retries on its next frame.
	ErrExportFailed = errors.New("share: cross-context export failed")

	// ErrImportFailed is returned when a handle cannot be bound in the
	// importing context (stale generation, dimension or format mismatch,
	// importing device lost). Recoverable: the consumer keeps using its
	// last successfully imported texture.
	ErrImportFailed = errors.New("share: handle import failed")

	// ErrTextureDestroyed is returned when exporting a destroyed texture.
	ErrTextureDestroyed = errors.New("share: texture has been destroyed")

	// ErrExporterClosed is returned when operating on a closed exporter.
	ErrExporterClosed = errors.New("share: exporter closed")
)

// PipelineFormat is the pixel format used by every producer and the
// compositor. Contents are sRGB-encoded. There is no implicit format
// conversion anywhere in the pipeline: export and import both require
// this format.
const PipelineFormat = gputypes.TextureFormatRGBA8Unorm

// Handle is an OS/driver-level reference that lets a second graphics
// context address the same physical memory as the exporting context.
//
// A Handle is valid only for the device generation that issued it.
// The zero Handle means "no frame".
type Handle struct {
	// Native is the opaque driver-level reference. Zero means no frame.
	Native uint64

	// Width and Height are the pixel dimensions of the shared texture.
	// Import requires an exact match.
	Width  int
	Height int

	// Generation is the device generation that issued the handle.
	// A device loss bumps the generation and strands the handle.
	Generation uint64

	// Sequence is a strictly increasing commit tag assigned by the
	// publishing channel. It is zero for handles that have not been
	// committed.
	Sequence uint64
}

// IsZero reports whether h refers to no frame.
func (h Handle) IsZero() bool {
	return h.Native == 0
}

// String returns a compact description for diagnostics.
func (h Handle) String() string {
	if h.IsZero() {
		return "Handle[none]"
	}
	return fmt.Sprintf("Handle[%#x %dx%d gen=%d seq=%d]",
		h.Native, h.Width, h.Height, h.Generation, h.Sequence)
}

// Texture is a GPU-resident pixel buffer bound in one graphics context.
//
// Textures obtained from Import are views of memory owned by the
// exporting context; destroying an imported texture releases the
// importing context's binding, never the underlying allocation.
type Texture interface {
	// Width returns the texture width in pixels.
	Width() int

	// Height returns the texture height in pixels.
	Height() int

	// Format returns the texture pixel format.
	Format() gputypes.TextureFormat

	// Destroy releases the context's binding to the texture.
	// Destroy is idempotent.
	Destroy()
}

// PixelTexture is implemented by textures whose contents are directly
// addressable by the CPU, such as the memory backend's textures. GPU
// backends do not implement it.
type PixelTexture interface {
	Texture

	// Image returns the backing pixel buffer. The returned image shares
	// memory with the texture; it is not a copy.
	Image() *image.RGBA
}

// TextureAllocator is implemented by exporters that can allocate
// producer-local textures in their own context. All built-in backends
// implement it; producers require it.
type TextureAllocator interface {
	// AllocateTexture creates a width x height texture in the pipeline
	// format, owned by this context.
	AllocateTexture(width, height int) (Texture, error)
}

// Exporter is the narrow per-platform sharing interface.
//
// Export and Import may be called from different goroutines: producers
// export on their render threads while the compositor imports on the
// presentation thread. Implementations must be safe for that pattern.
type Exporter interface {
	// Export produces a handle importable by a different graphics
	// context. Exporting the same texture again refreshes its handle
	// under the current generation; the native reference is stable for
	// the texture's lifetime.
	Export(tex Texture) (Handle, error)

	// Import binds the shared memory behind h for sampling in this
	// context. It requires matching dimensions, the pipeline format and
	// a live generation.
	Import(h Handle) (Texture, error)

	// Generation returns the current device generation. Handles whose
	// Generation field is older cannot be imported.
	Generation() uint64

	// Invalidate records a device loss: the generation is bumped and
	// every outstanding handle becomes stale at once.
	Invalidate()

	// Close releases the exporter's sharing resources.
	Close() error
}
