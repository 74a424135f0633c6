// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"image/color"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/share"
)

// submitTimeout bounds the fence wait after each composite pass.
const submitTimeout = 5 * time.Second

// Presenter composites imported layer textures on the GPU. Each tick
// accumulates the layers drawn since Clear and Present encodes them as
// one render pass over the target: a fullscreen triangle per layer,
// opaque for the scene and premultiplied source-over for the UI.
//
// The target is an offscreen texture in the pipeline format; hosts
// blit or export it for display. All methods run on the presentation
// thread.
type Presenter struct {
	device hal.Device
	queue  hal.Queue

	pipeline *CompositePipeline
	sampler  hal.Sampler
	target   *Texture

	width  int
	height int

	clear gputypes.Color
	draws []layerDraw

	presented uint64
	closed    bool
}

// layerDraw is one layer queued for the next Present.
type layerDraw struct {
	view  hal.TextureView
	blend bool
}

// NewPresenter creates a presenter with a width x height offscreen
// target on device, submitting to queue.
func NewPresenter(device hal.Device, queue hal.Queue, width, height int) (*Presenter, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: presenter requires a hal device and queue")
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("wgpu: invalid target size %dx%d", width, height)
	}

	p := &Presenter{device: device, queue: queue, width: width, height: height}

	pipeline, err := NewCompositePipeline(device)
	if err != nil {
		return nil, err
	}
	p.pipeline = pipeline

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "composite_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		p.pipeline.Destroy()
		return nil, fmt.Errorf("wgpu: create composite sampler: %w", err)
	}
	p.sampler = sampler

	target, err := newTexture(device, width, height, "composite_target")
	if err != nil {
		p.device.DestroySampler(p.sampler)
		p.pipeline.Destroy()
		return nil, err
	}
	p.target = target
	return p, nil
}

// NewPresenterFromOptions creates a presenter from sharing options,
// resolving the device and queue the same way the exporter factory
// does.
func NewPresenterFromOptions(opts share.Options, width, height int) (*Presenter, error) {
	return NewPresenter(halDeviceFrom(opts), halQueueFrom(opts), width, height)
}

// Clear sets the background color and discards layers queued since the
// last Present. The target itself is cleared by the pass Present
// encodes.
func (p *Presenter) Clear(c color.Color) {
	p.clear = gpuColor(c)
	p.draws = p.draws[:0]
}

// DrawLayer queues one imported texture for the next Present. The
// fullscreen pass samples the layer across the whole target, so a
// dimension mismatch scales implicitly; without opts.ScaleToFit it is
// rejected instead.
func (p *Presenter) DrawLayer(tex share.Texture, opts compositor.DrawOptions) error {
	wt, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("wgpu: texture %T not owned by the wgpu backend", tex)
	}
	if wt.IsDestroyed() {
		return share.ErrTextureDestroyed
	}
	if tex.Width() != p.width || tex.Height() != p.height {
		if !opts.ScaleToFit {
			return fmt.Errorf("%w: layer %dx%d, target %dx%d",
				compositor.ErrResizeInProgress, tex.Width(), tex.Height(), p.width, p.height)
		}
	}
	p.draws = append(p.draws, layerDraw{view: wt.view, blend: opts.Blend})
	return nil
}

// Present encodes the queued layers as a single render pass over the
// target and submits it, waiting for completion.
func (p *Presenter) Present() error {
	if p.closed {
		return compositor.ErrSurfaceClosed
	}

	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "composite_encoder",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create composite encoder: %w", err)
	}
	if err := encoder.BeginEncoding("composite_frame"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	// Per-frame bind groups: one (layer view, sampler) pair per draw.
	bindGroups := make([]hal.BindGroup, 0, len(p.draws))
	defer func() {
		for _, bg := range bindGroups {
			p.device.DestroyBindGroup(bg)
		}
	}()
	for i, d := range p.draws {
		bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("composite_layer_%d", i),
			Layout: p.pipeline.layerLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{
					TextureView: d.view.NativeHandle(),
				}},
				{Binding: 1, Resource: gputypes.SamplerBinding{
					Sampler: p.sampler.NativeHandle(),
				}},
			},
		})
		if err != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("wgpu: create layer bind group: %w", err)
		}
		bindGroups = append(bindGroups, bg)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "composite_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       p.target.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: p.clear,
		}},
	})
	for i, d := range p.draws {
		if d.blend {
			rp.SetPipeline(p.pipeline.Blended())
		} else {
			rp.SetPipeline(p.pipeline.Opaque())
		}
		rp.SetBindGroup(0, bindGroups[i], nil)
		rp.Draw(3, 1, 0, 0)
	}
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer p.device.FreeCommandBuffer(cmdBuf)

	fence, err := p.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer p.device.DestroyFence(fence)

	if err := p.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit composite pass: %w", err)
	}
	fenceOK, err := p.device.Wait(fence, 1, submitTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wgpu: wait for composite pass: ok=%v err=%w", fenceOK, err)
	}

	p.presented++
	return nil
}

// Size returns the target dimensions.
func (p *Presenter) Size() (int, int) { return p.width, p.height }

// Resize reallocates the target. Contents are undefined until the next
// Clear.
func (p *Presenter) Resize(width, height int) error {
	if p.closed {
		return compositor.ErrSurfaceClosed
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("wgpu: invalid target size %dx%d", width, height)
	}
	target, err := newTexture(p.device, width, height, "composite_target")
	if err != nil {
		return err
	}
	p.target.Destroy()
	p.target = target
	p.width = width
	p.height = height
	return nil
}

// Target returns the offscreen composite texture. The texture is
// reused across ticks; export it before the next Present to keep a
// frame.
func (p *Presenter) Target() *Texture { return p.target }

// Presented returns the number of Present calls so far.
func (p *Presenter) Presented() uint64 { return p.presented }

// Close releases the target, sampler and pipelines. Idempotent.
func (p *Presenter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.target.Destroy()
	p.device.DestroySampler(p.sampler)
	p.pipeline.Destroy()
	return nil
}

// gpuColor converts a color.Color to the pass clear value.
func gpuColor(c color.Color) gputypes.Color {
	if c == nil {
		return gputypes.Color{A: 1}
	}
	r, g, b, a := c.RGBA()
	return gputypes.Color{
		R: float64(r) / 0xffff,
		G: float64(g) / 0xffff,
		B: float64(b) / 0xffff,
		A: float64(a) / 0xffff,
	}
}

var _ compositor.Presenter = (*Presenter)(nil)
