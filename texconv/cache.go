// Package texconv runs the texture-format encoder programs: it compiles the
// program of each console format on first use and draws it over a copy of
// the rendered frame, producing the tiled bytes of the format as an RGBA8
// image ready for readback.
package texconv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx"
	"github.com/gogpu/gxfx/encoder"
	"github.com/gogpu/gxfx/internal/gpu"
)

var (
	// ErrNilDevice is returned when the cache is created without a device
	// or queue.
	ErrNilDevice = errors.New("texconv: nil device or queue")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL device and queue objects.
	ErrNoHALProvider = errors.New("texconv: provider does not expose HAL types")

	// ErrInvalidEncode is returned for an encode request missing a view or
	// with an empty rectangle.
	ErrInvalidEncode = errors.New("texconv: invalid encode request")
)

const (
	paramsSize  = 16
	paramsSlots = 32
)

// Compiler turns a WGSL program into a shader source for the device.
type Compiler = gpu.ShaderCompiler

// Option configures an EncoderCache.
type Option func(*cacheOptions)

type cacheOptions struct {
	compiler Compiler
	label    string
}

func defaultOptions() cacheOptions {
	return cacheOptions{compiler: gpu.NagaCompiler{}, label: "gxfx_texconv"}
}

// WithCompiler replaces the naga-based shader compiler.
func WithCompiler(c Compiler) Option {
	return func(o *cacheOptions) {
		if c != nil {
			o.compiler = c
		}
	}
}

// WithLabel sets the prefix of GPU object labels.
func WithLabel(label string) Option {
	return func(o *cacheOptions) { o.label = label }
}

// EncodeRequest is one copy of a frame region into a console format.
type EncodeRequest struct {
	Format encoder.Format
	// Src is the copy rectangle in frame pixels.
	Src image.Rectangle
	// RowTexels is the row width of the destination in texels; 0 means the
	// width of Src rounded up to the format block width.
	RowTexels int
	// ScaleByHalf averages 2x2 source pixels per texel.
	ScaleByHalf bool

	// Source is a 2D view of the frame color image, or of a float copy of
	// the depth buffer for depth formats.
	Source hal.TextureView
	// Target is an RGBA8 render target of Width x Height pixels.
	Target        hal.TextureView
	Width, Height int
}

func (r *EncodeRequest) validate() error {
	switch {
	case !r.Format.Valid():
		return fmt.Errorf("%w: 0x%X", encoder.ErrUnknownFormat, uint32(r.Format))
	case r.Source == nil || r.Target == nil:
		return fmt.Errorf("%w: missing source or target view", ErrInvalidEncode)
	case r.Src.Empty() || r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("%w: src=%v target %dx%d", ErrInvalidEncode, r.Src, r.Width, r.Height)
	}
	return nil
}

// params packs position = (left, top, row texels, scale).
func (r *EncodeRequest) params() []byte {
	row := r.RowTexels
	if row <= 0 {
		bw := r.Format.BlockWidth()
		row = (r.Src.Dx() + bw - 1) / bw * bw
	}
	scale := int32(1)
	if r.ScaleByHalf {
		scale = 2
	}
	b := make([]byte, paramsSize)
	for i, v := range [4]int32{int32(r.Src.Min.X), int32(r.Src.Min.Y), int32(row), scale} {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
	}
	return b
}

// program is the compiled encoder of one format.
type program struct {
	module   hal.ShaderModule
	pipeline hal.RenderPipeline
}

// bindingSet is the layout and sampler shared by color or by depth formats.
type bindingSet struct {
	layout     hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	sampler    hal.Sampler
	linear     hal.Sampler
}

// EncoderCache compiles encoder programs lazily, one per format, and runs
// them. It is not safe for concurrent use.
type EncoderCache struct {
	device hal.Device
	queue  hal.Queue
	opts   cacheOptions

	color, depth bindingSet
	params       *gpu.ConstantRing
	programs     map[encoder.Format]*program

	release    gpu.ReleaseQueue
	lastSubmit uint64
}

// New creates an encoder cache on device and queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*EncoderCache, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &EncoderCache{
		device:   device,
		queue:    queue,
		opts:     o,
		programs: make(map[encoder.Format]*program),
	}
	if err := c.init(); err != nil {
		c.Destroy()
		gxfx.Logger().Error("texconv: resource creation failed", slog.Any("error", err))
		return nil, err
	}
	return c, nil
}

// NewFromProvider creates an encoder cache on the device of a provider
// exposing HAL objects through HalDevice and HalQueue.
func NewFromProvider(p gpucontext.DeviceProvider, opts ...Option) (*EncoderCache, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return New(device, queue, opts...)
}

func (c *EncoderCache) init() error {
	var err error
	if c.color, err = c.createBindingSet("color", gputypes.TextureSampleTypeFloat, gputypes.SamplerBindingTypeFiltering); err != nil {
		return err
	}
	if c.depth, err = c.createBindingSet("depth", gputypes.TextureSampleTypeUnfilterableFloat, gputypes.SamplerBindingTypeNonFiltering); err != nil {
		return err
	}
	c.params, err = gpu.NewConstantRing(c.device, c.queue, c.opts.label+"_params", paramsSize, paramsSlots)
	return err
}

func (c *EncoderCache) createBindingSet(kind string, sampleType gputypes.TextureSampleType, samplerType gputypes.SamplerBindingType) (bindingSet, error) {
	var s bindingSet
	label := c.opts.label + "_" + kind
	var err error
	s.layout, err = c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    encoder.BindingParams,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: paramsSize},
			},
			{
				Binding:    encoder.BindingSampler,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: samplerType},
			},
			{
				Binding:    encoder.BindingSource,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    sampleType,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return s, fmt.Errorf("create %s layout: %w", kind, err)
	}
	s.pipeLayout, err = c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{s.layout},
	})
	if err != nil {
		return s, fmt.Errorf("create %s pipeline layout: %w", kind, err)
	}
	if s.sampler, err = c.createSampler(label+"_point", gputypes.FilterModeNearest); err != nil {
		return s, err
	}
	if samplerType == gputypes.SamplerBindingTypeFiltering {
		if s.linear, err = c.createSampler(label+"_linear", gputypes.FilterModeLinear); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (c *EncoderCache) createSampler(label string, filter gputypes.FilterMode) (hal.Sampler, error) {
	s, err := c.device.CreateSampler(&hal.SamplerDescriptor{
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

func (c *EncoderCache) bindings(f encoder.Format) *bindingSet {
	if f.IsDepth() {
		return &c.depth
	}
	return &c.color
}

// Len returns the number of compiled encoder programs.
func (c *EncoderCache) Len() int { return len(c.programs) }

// program returns the compiled encoder of f, compiling it on first use.
func (c *EncoderCache) program(f encoder.Format) (*program, error) {
	if p, ok := c.programs[f]; ok {
		return p, nil
	}
	text, err := encoder.Generate(f)
	if err != nil {
		return nil, err
	}
	label := fmt.Sprintf("%s_%v", c.opts.label, f)
	src, err := c.opts.compiler.Compile(label, text, encoder.VertexEntryPoint, encoder.FragmentEntryPoint)
	if err != nil {
		return nil, err
	}
	module, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, fmt.Errorf("create %v module: %w", f, err)
	}
	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: c.bindings(f).pipeLayout,
		Vertex: hal.VertexState{Module: module, EntryPoint: encoder.VertexEntryPoint},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: encoder.FragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
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
		c.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("create %v pipeline: %w", f, err)
	}

	p := &program{module: module, pipeline: pipeline}
	c.programs[f] = p
	gxfx.Logger().Debug("texconv: encoder compiled", slog.String("format", f.String()), slog.Int("bytes", len(text)))
	return p, nil
}

// Encode draws the encoder of req.Format over req.Target.
func (c *EncoderCache) Encode(req EncodeRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	c.release.Collect(c.queue.PollCompleted())

	p, err := c.program(req.Format)
	if err != nil {
		return err
	}
	offset, err := c.params.Write(req.params())
	if err != nil {
		return err
	}

	set := c.bindings(req.Format)
	sampler := set.sampler
	if req.ScaleByHalf && set.linear != nil {
		sampler = set.linear
	}
	bg, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  c.opts.label + "_encode",
		Layout: set.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: encoder.BindingParams, Resource: gputypes.BufferBinding{
				Buffer: c.params.Buffer().NativeHandle(),
				Offset: offset,
				Size:   paramsSize,
			}},
			{Binding: encoder.BindingSampler, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
			{Binding: encoder.BindingSource, Resource: gputypes.TextureViewBinding{TextureView: req.Source.NativeHandle()}},
		},
	})
	if err != nil {
		return fmt.Errorf("create encode bind group: %w", err)
	}

	cmd, err := c.record(p, bg, req)
	if err != nil {
		c.device.DestroyBindGroup(bg)
		return err
	}
	idx, err := c.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		c.device.FreeCommandBuffer(cmd)
		c.device.DestroyBindGroup(bg)
		return fmt.Errorf("submit: %w", err)
	}
	c.lastSubmit = idx
	device := c.device
	c.release.Defer(idx, func() {
		device.FreeCommandBuffer(cmd)
		device.DestroyBindGroup(bg)
	})
	return nil
}

func (c *EncoderCache) record(p *program, bg hal.BindGroup, req EncodeRequest) (hal.CommandBuffer, error) {
	enc, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: c.opts.label + "_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(c.opts.label + "_" + req.Format.String()); err != nil {
		enc.DiscardEncoding()
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: c.opts.label + "_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    req.Target,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.SetViewport(0, 0, float32(req.Width), float32(req.Height), 0, 1)
	rp.Draw(4, 1, 0, 0)
	rp.End()
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmd, nil
}

// Destroy waits for the device and releases every program and resource.
func (c *EncoderCache) Destroy() {
	if err := c.device.WaitIdle(); err != nil {
		gxfx.Logger().Warn("texconv: wait idle", slog.Any("error", err))
	}
	c.release.Flush()
	for f, p := range c.programs {
		c.device.DestroyRenderPipeline(p.pipeline)
		c.device.DestroyShaderModule(p.module)
		delete(c.programs, f)
	}
	if c.params != nil {
		c.params.Destroy()
		c.params = nil
	}
	for _, s := range []*bindingSet{&c.color, &c.depth} {
		for _, smp := range []hal.Sampler{s.sampler, s.linear} {
			if smp != nil {
				c.device.DestroySampler(smp)
			}
		}
		if s.pipeLayout != nil {
			c.device.DestroyPipelineLayout(s.pipeLayout)
		}
		if s.layout != nil {
			c.device.DestroyBindGroupLayout(s.layout)
		}
		*s = bindingSet{}
	}
}
