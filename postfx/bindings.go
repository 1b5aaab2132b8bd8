package postfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx/internal/gpu"
	"github.com/gogpu/gxfx/preset"
)

// Group 0 bindings, matching shaders/header.wgsl.
const (
	bindFrame uint32 = iota
	bindFontSampler
	bindColorSampler
	bindDepthSampler
	bindFont
	bindColor
	bindDepth
	bindPrev0
)

const (
	// frameRingSlots is the number of frame blocks kept before reuse.
	frameRingSlots = 64
	// vertexStreamSize holds 0x4000 bytes of quads.
	vertexStreamSize = 0x4000
)

// sharedResources are created once per engine and live until Destroy.
type sharedResources struct {
	fontSampler  hal.Sampler
	colorSampler hal.Sampler
	depthSampler hal.Sampler

	font  *gpu.FontAtlas
	color *gpu.Target
	prev  *gpu.Target

	frames   *gpu.ConstantRing
	vertices *gpu.StreamBuffer
}

func newSharedResources(device hal.Device, queue hal.Queue, label string) (*sharedResources, error) {
	r := &sharedResources{}
	var err error
	if r.fontSampler, err = createSampler(device, label+"_font_sampler", gputypes.FilterModeLinear); err != nil {
		return nil, err
	}
	if r.colorSampler, err = createSampler(device, label+"_color_sampler", gputypes.FilterModeLinear); err != nil {
		r.destroy(device)
		return nil, err
	}
	if r.depthSampler, err = createSampler(device, label+"_depth_sampler", gputypes.FilterModeNearest); err != nil {
		r.destroy(device)
		return nil, err
	}
	if r.font, err = gpu.NewFontAtlas(device, queue); err != nil {
		r.destroy(device)
		return nil, err
	}
	r.color, err = gpu.NewTarget(device, gpu.TargetDescriptor{
		Label:         label + "_placeholder_color",
		Width:         1,
		Height:        1,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding,
		ViewDimension: gputypes.TextureViewDimension2DArray,
	})
	if err != nil {
		r.destroy(device)
		return nil, err
	}
	r.prev, err = gpu.NewTarget(device, gpu.TargetDescriptor{
		Label:  label + "_placeholder_prev",
		Width:  1,
		Height: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		r.destroy(device)
		return nil, err
	}
	if r.frames, err = gpu.NewConstantRing(device, queue, label+"_frame", frameLayout.Size, frameRingSlots); err != nil {
		r.destroy(device)
		return nil, err
	}
	if r.vertices, err = gpu.NewStreamBuffer(device, queue, label+"_vertices", vertexStreamSize, gputypes.BufferUsageVertex); err != nil {
		r.destroy(device)
		return nil, err
	}
	return r, nil
}

func (r *sharedResources) destroy(device hal.Device) {
	if r.vertices != nil {
		r.vertices.Destroy()
	}
	if r.frames != nil {
		r.frames.Destroy()
	}
	r.prev.Destroy(device)
	r.color.Destroy(device)
	if r.font != nil {
		r.font.Destroy(device)
	}
	for _, s := range []hal.Sampler{r.depthSampler, r.colorSampler, r.fontSampler} {
		if s != nil {
			device.DestroySampler(s)
		}
	}
	*r = sharedResources{}
}

func createSampler(device hal.Device, label string, filter gputypes.FilterMode) (hal.Sampler, error) {
	s, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler %s: %w", label, err)
	}
	return s, nil
}

// frameLayoutEntries returns the group 0 layout. The depth binding depends
// on whether the depth input is multisampled.
func frameLayoutEntries(samples int) []gputypes.BindGroupLayoutEntry {
	float2D := &gputypes.TextureBindingLayout{
		SampleType:    gputypes.TextureSampleTypeFloat,
		ViewDimension: gputypes.TextureViewDimension2D,
	}
	depth := &gputypes.TextureBindingLayout{
		SampleType:    gputypes.TextureSampleTypeDepth,
		ViewDimension: gputypes.TextureViewDimension2DArray,
	}
	if samples > 1 {
		depth = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeDepth,
			ViewDimension: gputypes.TextureViewDimension2D,
			Multisampled:  true,
		}
	}

	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    bindFrame,
			Visibility: gputypes.ShaderStagesVertexFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: uint64(frameLayout.Size),
			},
		},
		{Binding: bindFontSampler, Visibility: gputypes.ShaderStageFragment, Sampler: &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}},
		{Binding: bindColorSampler, Visibility: gputypes.ShaderStageFragment, Sampler: &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}},
		{Binding: bindDepthSampler, Visibility: gputypes.ShaderStageFragment, Sampler: &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeNonFiltering}},
		{Binding: bindFont, Visibility: gputypes.ShaderStageFragment, Texture: float2D},
		{
			Binding:    bindColor,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2DArray,
			},
		},
		{Binding: bindDepth, Visibility: gputypes.ShaderStageFragment, Texture: depth},
	}
	for i := range preset.MaxStageInputs {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    bindPrev0 + uint32(i),
			Visibility: gputypes.ShaderStageFragment,
			Texture:    float2D,
		})
	}
	return entries
}

func optionLayoutEntries(size int) []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageFragment,
		Buffer: &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: uint64(size),
		},
	}}
}

// stageViews are the texture views bound for one stage draw.
type stageViews struct {
	color hal.TextureView
	depth hal.TextureView
	prev  [preset.MaxStageInputs]hal.TextureView
}

func (e *Engine) createStageBindGroup(label string, v stageViews, frameOffset uint64) (hal.BindGroup, error) {
	entries := []gputypes.BindGroupEntry{
		{Binding: bindFrame, Resource: gputypes.BufferBinding{
			Buffer: e.res.frames.Buffer().NativeHandle(),
			Offset: frameOffset,
			Size:   uint64(frameLayout.Size),
		}},
		{Binding: bindFontSampler, Resource: gputypes.SamplerBinding{Sampler: e.res.fontSampler.NativeHandle()}},
		{Binding: bindColorSampler, Resource: gputypes.SamplerBinding{Sampler: e.res.colorSampler.NativeHandle()}},
		{Binding: bindDepthSampler, Resource: gputypes.SamplerBinding{Sampler: e.res.depthSampler.NativeHandle()}},
		{Binding: bindFont, Resource: gputypes.TextureViewBinding{TextureView: e.res.font.View.NativeHandle()}},
		{Binding: bindColor, Resource: gputypes.TextureViewBinding{TextureView: v.color.NativeHandle()}},
		{Binding: bindDepth, Resource: gputypes.TextureViewBinding{TextureView: v.depth.NativeHandle()}},
	}
	for i, view := range v.prev {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  bindPrev0 + uint32(i),
			Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
		})
	}
	bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  e.programs.frameLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group %s: %w", label, err)
	}
	return bg, nil
}
