// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/gogpu/compositor/share"
)

// DrawOptions controls how one layer is composited onto the target.
type DrawOptions struct {
	// Blend selects source-over alpha blending. False draws the layer
	// opaque, replacing whatever is beneath it.
	Blend bool

	// ScaleToFit stretches the layer to the target dimensions when they
	// do not match, instead of failing. Used while a resize is in
	// flight to keep the last valid frame on screen.
	ScaleToFit bool
}

// Presenter is the per-tick composite target: a surface-sized buffer
// layers are drawn into in back-to-front order and then presented.
//
// All methods run on the presentation thread.
type Presenter interface {
	// Clear fills the target with the background color.
	Clear(c color.Color)

	// DrawLayer composites one imported texture onto the target.
	DrawLayer(tex share.Texture, opts DrawOptions) error

	// Present finishes the tick, making the composed frame visible.
	Present() error

	// Size returns the current target dimensions.
	Size() (width, height int)

	// Resize reallocates the target. Contents are undefined until the
	// next Clear.
	Resize(width, height int) error

	// Close releases the target.
	Close() error
}

// ImagePresenter composes into a CPU-side RGBA buffer. It backs
// headless runs and tests, and pairs with the memory sharing backend;
// its DrawLayer accepts any texture implementing share.PixelTexture.
type ImagePresenter struct {
	target *image.RGBA
	closed bool

	// OnPresent, if set, receives the composed frame after each
	// Present. The image is reused across ticks; copy it to keep it.
	OnPresent func(*image.RGBA)

	presented uint64
}

// NewImagePresenter creates a presenter with a width x height target.
func NewImagePresenter(width, height int) *ImagePresenter {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &ImagePresenter{
		target: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Clear fills the target with c.
func (p *ImagePresenter) Clear(c color.Color) {
	draw.Draw(p.target, p.target.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// DrawLayer composites tex onto the target. Textures whose dimensions
// differ from the target are rejected unless opts.ScaleToFit is set,
// in which case they are stretched with bilinear filtering.
func (p *ImagePresenter) DrawLayer(tex share.Texture, opts DrawOptions) error {
	pt, ok := tex.(share.PixelTexture)
	if !ok {
		return fmt.Errorf("compositor: texture %T is not CPU-addressable", tex)
	}
	src := pt.Image()

	op := draw.Src
	if opts.Blend {
		op = draw.Over
	}

	tw, th := p.Size()
	if tex.Width() != tw || tex.Height() != th {
		if !opts.ScaleToFit {
			return fmt.Errorf("%w: layer %dx%d, target %dx%d",
				ErrResizeInProgress, tex.Width(), tex.Height(), tw, th)
		}
		draw.ApproxBiLinear.Scale(p.target, p.target.Bounds(), src, src.Bounds(), op, nil)
		return nil
	}

	draw.Draw(p.target, p.target.Bounds(), src, src.Bounds().Min, op)
	return nil
}

// Present finishes the tick.
func (p *ImagePresenter) Present() error {
	if p.closed {
		return ErrSurfaceClosed
	}
	p.presented++
	if p.OnPresent != nil {
		p.OnPresent(p.target)
	}
	return nil
}

// Size returns the target dimensions.
func (p *ImagePresenter) Size() (int, int) {
	b := p.target.Bounds()
	return b.Dx(), b.Dy()
}

// Resize reallocates the target buffer.
func (p *ImagePresenter) Resize(width, height int) error {
	if p.closed {
		return ErrSurfaceClosed
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("compositor: invalid target size %dx%d", width, height)
	}
	p.target = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

// Target returns the composed frame buffer. Test hook; the buffer is
// reused across ticks.
func (p *ImagePresenter) Target() *image.RGBA { return p.target }

// Presented returns the number of Present calls so far.
func (p *ImagePresenter) Presented() uint64 { return p.presented }

// Close releases the presenter.
func (p *ImagePresenter) Close() error {
	p.closed = true
	return nil
}

var _ Presenter = (*ImagePresenter)(nil)
