// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"image/color"
	"testing"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/share"
)

func newTestPresenter(t *testing.T, width, height int) (*Presenter, *Exporter, func()) {
	t.Helper()
	dev, queue, cleanup := newNoopDevice(t)
	p, err := NewPresenter(dev, queue, width, height)
	if err != nil {
		cleanup()
		t.Fatalf("NewPresenter: %v", err)
	}
	e := &Exporter{device: dev, table: newHandleTable()}
	return p, e, func() {
		p.Close()
		cleanup()
	}
}

func allocLayer(t *testing.T, e *Exporter, width, height int) *Texture {
	t.Helper()
	tex, err := e.AllocateTexture(width, height)
	if err != nil {
		t.Fatalf("AllocateTexture: %v", err)
	}
	return tex.(*Texture)
}

func TestPresenterComposesQueuedLayers(t *testing.T) {
	p, e, cleanup := newTestPresenter(t, 16, 16)
	defer cleanup()

	scene := allocLayer(t, e, 16, 16)
	defer scene.Destroy()
	ui := allocLayer(t, e, 16, 16)
	defer ui.Destroy()

	p.Clear(color.Black)
	if err := p.DrawLayer(scene, compositor.DrawOptions{}); err != nil {
		t.Fatalf("DrawLayer(scene): %v", err)
	}
	if err := p.DrawLayer(ui, compositor.DrawOptions{Blend: true}); err != nil {
		t.Fatalf("DrawLayer(ui): %v", err)
	}
	if err := p.Present(); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if got := p.Presented(); got != 1 {
		t.Errorf("Presented = %d, want 1", got)
	}

	// The next tick starts from Clear again.
	p.Clear(color.Black)
	if err := p.DrawLayer(scene, compositor.DrawOptions{}); err != nil {
		t.Fatalf("DrawLayer on second tick: %v", err)
	}
	if err := p.Present(); err != nil {
		t.Fatalf("second Present: %v", err)
	}
	if got := p.Presented(); got != 2 {
		t.Errorf("Presented = %d, want 2", got)
	}
}

func TestPresenterRejectsForeignTexture(t *testing.T) {
	p, _, cleanup := newTestPresenter(t, 16, 16)
	defer cleanup()

	mem := share.NewMemoryExporter(nil)
	tex, err := mem.AllocateTexture(16, 16)
	if err != nil {
		t.Fatalf("AllocateTexture: %v", err)
	}
	defer tex.Destroy()

	if err := p.DrawLayer(tex, compositor.DrawOptions{}); err == nil {
		t.Error("DrawLayer accepted a texture from another backend")
	}
}

func TestPresenterRejectsDestroyedTexture(t *testing.T) {
	p, e, cleanup := newTestPresenter(t, 16, 16)
	defer cleanup()

	tex := allocLayer(t, e, 16, 16)
	tex.Destroy()

	if err := p.DrawLayer(tex, compositor.DrawOptions{}); !errors.Is(err, share.ErrTextureDestroyed) {
		t.Errorf("DrawLayer(destroyed) = %v, want ErrTextureDestroyed", err)
	}
}

func TestPresenterDimensionMismatch(t *testing.T) {
	p, e, cleanup := newTestPresenter(t, 16, 16)
	defer cleanup()

	small := allocLayer(t, e, 8, 8)
	defer small.Destroy()

	err := p.DrawLayer(small, compositor.DrawOptions{})
	if !errors.Is(err, compositor.ErrResizeInProgress) {
		t.Fatalf("DrawLayer(8x8 on 16x16) = %v, want ErrResizeInProgress", err)
	}
	if err := p.DrawLayer(small, compositor.DrawOptions{ScaleToFit: true}); err != nil {
		t.Fatalf("DrawLayer with ScaleToFit: %v", err)
	}
	if err := p.Present(); err != nil {
		t.Fatalf("Present: %v", err)
	}
}

func TestPresenterResize(t *testing.T) {
	p, e, cleanup := newTestPresenter(t, 16, 16)
	defer cleanup()

	if err := p.Resize(32, 24); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := p.Size(); w != 32 || h != 24 {
		t.Errorf("Size after resize = %dx%d, want 32x24", w, h)
	}

	layer := allocLayer(t, e, 32, 24)
	defer layer.Destroy()
	p.Clear(color.Black)
	if err := p.DrawLayer(layer, compositor.DrawOptions{}); err != nil {
		t.Fatalf("DrawLayer after resize: %v", err)
	}
	if err := p.Present(); err != nil {
		t.Fatalf("Present after resize: %v", err)
	}

	if err := p.Resize(0, 24); err == nil {
		t.Error("Resize accepted zero width")
	}
}

func TestPresenterClose(t *testing.T) {
	p, _, cleanup := newTestPresenter(t, 16, 16)
	defer cleanup()

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := p.Present(); !errors.Is(err, compositor.ErrSurfaceClosed) {
		t.Errorf("Present after Close = %v, want ErrSurfaceClosed", err)
	}
	if err := p.Resize(8, 8); !errors.Is(err, compositor.ErrSurfaceClosed) {
		t.Errorf("Resize after Close = %v, want ErrSurfaceClosed", err)
	}
}

func TestNewPresenterFromOptions(t *testing.T) {
	dev, queue, cleanup := newNoopDevice(t)
	defer cleanup()

	p, err := NewPresenterFromOptions(share.Options{
		Device: &hostProvider{dev: dev, queue: queue},
	}, 16, 16)
	if err != nil {
		t.Fatalf("NewPresenterFromOptions: %v", err)
	}
	p.Close()

	if _, err := NewPresenterFromOptions(share.Options{}, 16, 16); err == nil {
		t.Error("NewPresenterFromOptions accepted empty options")
	}
}
