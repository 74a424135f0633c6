// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	types "github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/share"
)

//go:embed shaders/composite.wgsl
var compositeShaderWGSL string

// compileToSPIRV compiles WGSL source to SPIR-V words.
func compileToSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("wgpu: shader compile: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// CompositePipeline holds the GPU objects for the layer composite
// pass: a fullscreen-triangle shader with two pipeline variants, one
// opaque for the scene layer and one with premultiplied source-over
// blending for the UI layer.
type CompositePipeline struct {
	device hal.Device

	shader      hal.ShaderModule
	layerLayout hal.BindGroupLayout
	pipeLayout  hal.PipelineLayout

	opaque  hal.RenderPipeline
	blended hal.RenderPipeline
}

// NewCompositePipeline compiles the composite shader and creates both
// pipeline variants for the given device.
func NewCompositePipeline(device hal.Device) (*CompositePipeline, error) {
	p := &CompositePipeline{device: device}
	if err := p.create(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *CompositePipeline) create() error {
	spirv, err := compileToSPIRV(compositeShaderWGSL)
	if err != nil {
		return err
	}

	shader, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "composite_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create composite shader module: %w", err)
	}
	p.shader = shader

	layerLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "composite_layer_layout",
		Entries: []types.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: types.ShaderStageFragment,
				Texture: &types.TextureBindingLayout{
					SampleType:    types.TextureSampleTypeFloat,
					ViewDimension: types.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: types.ShaderStageFragment,
				Sampler: &types.SamplerBindingLayout{
					Type: types.SamplerBindingTypeFiltering,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create composite layer layout: %w", err)
	}
	p.layerLayout = layerLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "composite_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.layerLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create composite pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	p.opaque, err = p.createVariant("composite_opaque", nil)
	if err != nil {
		return err
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	p.blended, err = p.createVariant("composite_blended", &premulBlend)
	if err != nil {
		return err
	}
	return nil
}

// createVariant builds one render pipeline. blend nil selects opaque
// replacement.
func (p *CompositePipeline) createVariant(label string, blend *gputypes.BlendState) (hal.RenderPipeline, error) {
	pipeline, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    share.PipelineFormat,
					Blend:     blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s pipeline: %w", label, err)
	}
	return pipeline, nil
}

// Opaque returns the pipeline that replaces the target (scene layer).
func (p *CompositePipeline) Opaque() hal.RenderPipeline { return p.opaque }

// Blended returns the premultiplied source-over pipeline (UI layer).
func (p *CompositePipeline) Blended() hal.RenderPipeline { return p.blended }

// Destroy releases pipeline resources in reverse creation order. Safe
// to call on a partially created pipeline.
func (p *CompositePipeline) Destroy() {
	if p.device == nil {
		return
	}
	if p.blended != nil {
		p.device.DestroyRenderPipeline(p.blended)
		p.blended = nil
	}
	if p.opaque != nil {
		p.device.DestroyRenderPipeline(p.opaque)
		p.opaque = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.layerLayout != nil {
		p.device.DestroyBindGroupLayout(p.layerLayout)
		p.layerLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
