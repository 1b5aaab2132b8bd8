package postfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx/internal/gpu"
	"github.com/gogpu/gxfx/preset"
)

const vertexEntryPoint = "vs_main"

// programSet is one compiled preset: a pipeline per stage sharing the
// vertex program, the bind group layouts and the depth placeholder that
// matches the compiled sample count.
type programSet struct {
	vertex       hal.ShaderModule
	fragment     hal.ShaderModule
	frameLayout  hal.BindGroupLayout
	optionLayout hal.BindGroupLayout
	pipeLayout   hal.PipelineLayout
	pipelines    []hal.RenderPipeline
	depth        *gpu.Target
}

// buildPrograms compiles unit and creates one pipeline per stage. The last
// stage renders in the target format, the others in RGBA8.
func (e *Engine) buildPrograms(unit string, stages []preset.Stage, optionSize, samples int) (*programSet, error) {
	p := &programSet{}
	fail := func(err error) (*programSet, error) {
		p.destroy(e.device)
		return nil, err
	}
	label := e.opts.label

	entries := make([]string, len(stages))
	for i, st := range stages {
		entries[i] = st.EntryPoint
	}
	fragSrc, err := e.opts.compiler.Compile(label+"_fragment", unit, entries...)
	if err != nil {
		return fail(err)
	}
	vertSrc, err := e.opts.compiler.Compile(label+"_vertex", quadUnit(), vertexEntryPoint)
	if err != nil {
		return fail(err)
	}
	if p.fragment, err = e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label + "_fragment", Source: fragSrc}); err != nil {
		return fail(fmt.Errorf("create fragment module: %w", err))
	}
	if p.vertex, err = e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label + "_vertex", Source: vertSrc}); err != nil {
		return fail(fmt.Errorf("create vertex module: %w", err))
	}

	p.frameLayout, err = e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_frame_layout",
		Entries: frameLayoutEntries(samples),
	})
	if err != nil {
		return fail(fmt.Errorf("create frame layout: %w", err))
	}
	groups := []hal.BindGroupLayout{p.frameLayout}
	if optionSize > 0 {
		p.optionLayout, err = e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   label + "_option_layout",
			Entries: optionLayoutEntries(optionSize),
		})
		if err != nil {
			return fail(fmt.Errorf("create option layout: %w", err))
		}
		groups = append(groups, p.optionLayout)
	}
	p.pipeLayout, err = e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipeline_layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		return fail(fmt.Errorf("create pipeline layout: %w", err))
	}

	depth := gpu.TargetDescriptor{
		Label:         label + "_placeholder_depth",
		Width:         1,
		Height:        1,
		Format:        gputypes.TextureFormatDepth32Float,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment,
		ViewDimension: gputypes.TextureViewDimension2DArray,
	}
	if samples > 1 {
		depth.SampleCount = uint32(samples)
		depth.ViewDimension = gputypes.TextureViewDimension2D
	}
	if p.depth, err = gpu.NewTarget(e.device, depth); err != nil {
		return fail(err)
	}

	for i, st := range stages {
		format := gputypes.TextureFormatRGBA8Unorm
		if i == len(stages)-1 {
			format = e.opts.targetFormat
		}
		pl, err := e.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  fmt.Sprintf("%s_stage_%d_%s", label, i, st.EntryPoint),
			Layout: p.pipeLayout,
			Vertex: hal.VertexState{
				Module:     p.vertex,
				EntryPoint: vertexEntryPoint,
				Buffers:    quadVertexLayout(),
			},
			Fragment: &hal.FragmentState{
				Module:     p.fragment,
				EntryPoint: st.EntryPoint,
				Targets: []gputypes.ColorTargetState{{
					Format:    format,
					WriteMask: gputypes.ColorWriteMaskAll,
				}},
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleStrip,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
		if err != nil {
			return fail(fmt.Errorf("create stage %d (%s) pipeline: %w", i, st.EntryPoint, err))
		}
		p.pipelines = append(p.pipelines, pl)
	}
	return p, nil
}

// destroy releases the set in reverse creation order. Safe on nil.
func (p *programSet) destroy(device hal.Device) {
	if p == nil {
		return
	}
	for _, pl := range p.pipelines {
		device.DestroyRenderPipeline(pl)
	}
	p.pipelines = nil
	p.depth.Destroy(device)
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.optionLayout != nil {
		device.DestroyBindGroupLayout(p.optionLayout)
	}
	if p.frameLayout != nil {
		device.DestroyBindGroupLayout(p.frameLayout)
	}
	if p.vertex != nil {
		device.DestroyShaderModule(p.vertex)
	}
	if p.fragment != nil {
		device.DestroyShaderModule(p.fragment)
	}
	*p = programSet{}
}
