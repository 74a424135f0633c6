// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/share"
)

// Texture is a GPU texture in one wgpu context. Producer textures own
// their hal allocation; imported textures view the exporting context's
// allocation and destroying them releases only the view.
type Texture struct {
	device  hal.Device
	texture hal.Texture
	view    hal.TextureView

	width  int
	height int
	label  string

	// native is assigned on first export, stable afterwards. table is
	// the namespace the native ID was published into.
	native atomic.Uint64
	table  *handleTable

	imported bool
	released atomic.Bool
}

// newTexture allocates a width x height render-attachment texture in
// the pipeline format with a default view.
func newTexture(device hal.Device, width, height int, label string) (*Texture, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        share.PipelineFormat,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture: %w", err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: label + "_view",
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("wgpu: create texture view: %w", err)
	}

	return &Texture{
		device:  device,
		texture: tex,
		view:    view,
		width:   width,
		height:  height,
		label:   label,
	}, nil
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Format returns the pipeline pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return share.PipelineFormat }

// View returns the texture's default view for binding in passes.
func (t *Texture) View() hal.TextureView { return t.view }

// Raw returns the underlying hal texture.
func (t *Texture) Raw() hal.Texture { return t.texture }

// Imported reports whether the texture was produced by Import.
func (t *Texture) Imported() bool { return t.imported }

// IsDestroyed reports whether Destroy has been called.
func (t *Texture) IsDestroyed() bool { return t.released.Load() }

// Destroy releases this context's binding. Idempotent. Imported views
// never destroy the exporting context's allocation. Destroying an
// exported texture unpublishes its native ID: outstanding handles to
// it stop importing.
func (t *Texture) Destroy() {
	if t.released.Swap(true) {
		return
	}
	if t.imported {
		// View-only binding; the allocation belongs to the exporter.
		return
	}
	if t.table != nil {
		if native := t.native.Load(); native != 0 {
			t.table.remove(native)
		}
	}
	if t.device != nil && t.texture != nil {
		t.device.DestroyTexture(t.texture)
	}
	t.texture = nil
	t.view = nil
}

// String returns a compact description for diagnostics.
func (t *Texture) String() string {
	status := "active"
	if t.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("wgpu.Texture[%s %dx%d %s]", t.label, t.width, t.height, status)
}

var _ share.Texture = (*Texture)(nil)
