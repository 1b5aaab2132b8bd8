package postfx

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx"
	"github.com/gogpu/gxfx/internal/gpu"
	"github.com/gogpu/gxfx/preset"
)

var (
	// ErrNilDevice is returned when the engine is created without a device
	// or queue.
	ErrNilDevice = errors.New("postfx: nil device or queue")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL device and queue objects.
	ErrNoHALProvider = errors.New("postfx: provider does not expose HAL types")

	// ErrDestroyed is returned by calls made after Destroy.
	ErrDestroyed = errors.New("postfx: engine destroyed")
)

// StageGraph is the loaded preset the engine renders: its stage list, its
// options and their dirty flag. The engine only writes the dirty flag.
type StageGraph interface {
	// Shader returns the identifier of the loaded preset.
	Shader() string
	Stages() []preset.Stage
	Options() *preset.OptionSet
	HasOptions() bool
	IsDirty() bool
	SetDirty(dirty bool)
	// LoadShader loads the named preset and returns its raw source.
	LoadShader(name string) (string, error)
}

// ActiveSettings is the user selection the engine follows.
type ActiveSettings interface {
	PostProcessingShader() string
	SetPostProcessingShader(name string)
	SampleCount() int
}

// Stats counts engine work, for diagnostics and tests.
type Stats struct {
	Compiles      int
	Fallbacks     int
	Passthroughs  int
	OptionUploads int
	QuadUploads   int
	Reallocations int
	Draws         int
}

// Engine applies the selected post-processing preset to rendered frames.
//
// An Engine is not safe for concurrent use; all calls must come from the
// goroutine that submits rendering work on the device.
type Engine struct {
	device   hal.Device
	queue    hal.Queue
	graph    StageGraph
	settings ActiveSettings
	opts     engineOptions
	start    time.Time

	res *sharedResources

	// Compiled state; programs is nil until the first ApplyShader.
	programs      *programSet
	samples       int
	stages        []preset.Stage
	options       *preset.OptionSet
	optionLayout  Layout
	optionBuf     hal.Buffer
	optionGroup   hal.BindGroup
	optionPending bool

	// Per-draw caches.
	quad          uvRect
	quadOffset    uint64
	quadStale     bool
	intermediates []*gpu.Target
	prevSrc       sizeKey
	prevDst       sizeKey

	release    gpu.ReleaseQueue
	lastSubmit uint64
	lastFrame  FrameParameters
	stats      Stats
}

type sizeKey struct{ w, h int }

// New creates an engine rendering on device and queue. Shaders are compiled
// lazily by the first ApplyShader or BlitFromTexture.
func New(device hal.Device, queue hal.Queue, graph StageGraph, settings ActiveSettings, opts ...Option) (*Engine, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newSharedResources(device, queue, o.label)
	if err != nil {
		gxfx.Logger().Error("postfx: resource creation failed", slog.Any("error", err))
		return nil, err
	}
	e := &Engine{
		device:    device,
		queue:     queue,
		graph:     graph,
		settings:  settings,
		opts:      o,
		start:     o.clock(),
		res:       res,
		quadStale: true,
	}
	res.vertices.OnWrap(func() { e.quadStale = true })
	return e, nil
}

// NewFromProvider creates an engine on the device of a gpucontext provider.
// The provider must expose HAL objects through HalDevice and HalQueue. The
// provider's surface format is the destination format unless overridden by
// WithTargetFormat.
func NewFromProvider(p gpucontext.DeviceProvider, graph StageGraph, settings ActiveSettings, opts ...Option) (*Engine, error) {
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

	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts = append([]Option{WithTargetFormat(f)}, opts...)
	}
	info := p.AdapterInfo()
	gxfx.Logger().Info("postfx: adopted provider device", slog.String("adapter", info.Name))
	return New(device, queue, graph, settings, opts...)
}

// Stats returns the work counters.
func (e *Engine) Stats() Stats { return e.stats }

// Stages returns the stage list of the installed programs.
func (e *Engine) Stages() []preset.Stage { return e.stages }

// LastFrame returns the parameter block of the most recent draw.
func (e *Engine) LastFrame() FrameParameters { return e.lastFrame }

// ApplyShader recompiles the programs when the selected preset or sample
// count differs from the compiled one. A preset that fails to load,
// assemble or compile is replaced by the default pass and the selection is
// cleared. Only resource creation failures are returned.
func (e *Engine) ApplyShader() error {
	if e.res == nil {
		return ErrDestroyed
	}
	name := e.settings.PostProcessingShader()
	samples := e.settings.SampleCount()
	if e.programs != nil && name == e.graph.Shader() && samples == e.samples {
		return nil
	}
	e.samples = samples
	e.releaseStages()

	err := e.activate(name, samples)
	if err == nil {
		gxfx.Logger().Info("postfx: preset compiled",
			slog.String("preset", name),
			slog.Int("stages", len(e.stages)),
			slog.Int("samples", samples))
		return nil
	}

	e.stats.Fallbacks++
	gxfx.Logger().Warn("postfx: preset failed, using default pass",
		slog.String("preset", name), slog.Any("error", err))
	e.settings.SetPostProcessingShader("")
	if name != "" {
		if err = e.activate("", samples); err == nil {
			return nil
		}
		gxfx.Logger().Warn("postfx: default pass failed", slog.Any("error", err))
	}

	if err := e.installPassthrough(samples); err != nil {
		gxfx.Logger().Error("postfx: passthrough creation failed", slog.Any("error", err))
		return err
	}
	return nil
}

// activate loads the named preset and creates its option buffer. On failure
// nothing of the preset stays installed.
func (e *Engine) activate(name string, samples int) error {
	if err := e.load(name, samples); err != nil {
		return err
	}
	if err := e.allocOptions(); err != nil {
		e.releaseStages()
		return err
	}
	return nil
}

// load fetches, assembles and compiles the named preset.
func (e *Engine) load(name string, samples int) error {
	src, err := e.graph.LoadShader(name)
	if err != nil {
		return err
	}
	stages := e.graph.Stages()
	options := e.graph.Options()
	layout := OptionLayout(options)

	unit, err := Assemble(src, stages, HeaderOptions{Samples: samples, Options: options})
	if err != nil {
		return err
	}
	programs, err := e.buildPrograms(unit, stages, layout.Size, samples)
	if err != nil {
		return err
	}
	e.install(programs, stages, options, layout)
	return nil
}

func (e *Engine) installPassthrough(samples int) error {
	programs, err := e.buildPrograms(passthroughUnit(), preset.DefaultStages(), 0, samples)
	if err != nil {
		return err
	}
	e.stats.Passthroughs++
	e.install(programs, preset.DefaultStages(), nil, Layout{})
	return nil
}

func (e *Engine) install(p *programSet, stages []preset.Stage, options *preset.OptionSet, layout Layout) {
	e.stats.Compiles++
	e.programs = p
	e.stages = slices.Clone(stages)
	e.options = options
	e.optionLayout = layout
}

// allocOptions creates the option buffer of the installed programs and
// schedules its first upload.
func (e *Engine) allocOptions() error {
	if e.optionLayout.Size == 0 {
		return nil
	}
	buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: e.opts.label + "_options",
		Size:  uint64(e.optionLayout.Size),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create option buffer: %w", err)
	}
	e.optionBuf = buf

	bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  e.opts.label + "_options",
		Layout: e.programs.optionLayout,
		Entries: []gputypes.BindGroupEntry{{
			Binding: 0,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Size:   uint64(e.optionLayout.Size),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("create option bind group: %w", err)
	}
	e.optionGroup = bg
	e.optionPending = true

	gxfx.Logger().Debug("postfx: option buffer",
		slog.Int("options", e.options.Len()),
		slog.Int("size", e.optionLayout.Size))
	return nil
}

// uploadOptions repacks the option block when a value changed or the
// buffer is new.
func (e *Engine) uploadOptions() error {
	if e.optionBuf == nil || !(e.optionPending || e.graph.IsDirty()) {
		return nil
	}
	if err := e.queue.WriteBuffer(e.optionBuf, 0, packOptions(e.options, e.optionLayout)); err != nil {
		return fmt.Errorf("write option buffer: %w", err)
	}
	e.optionPending = false
	e.graph.SetDirty(false)
	e.stats.OptionUploads++
	return nil
}

// releaseStages drops the compiled programs, intermediate images and
// option buffer. Destruction waits for the last submission using them.
func (e *Engine) releaseStages() {
	targets := e.intermediates
	programs := e.programs
	optionBuf, optionGroup := e.optionBuf, e.optionGroup
	e.intermediates = nil
	e.programs = nil
	e.optionBuf, e.optionGroup = nil, nil
	e.prevSrc, e.prevDst = sizeKey{}, sizeKey{}

	device := e.device
	e.release.Defer(e.lastSubmit, func() {
		for _, t := range targets {
			t.Destroy(device)
		}
		if optionGroup != nil {
			device.DestroyBindGroup(optionGroup)
		}
		if optionBuf != nil {
			device.DestroyBuffer(optionBuf)
		}
		programs.destroy(device)
	})
}

// Destroy waits for the device to finish and releases every resource.
func (e *Engine) Destroy() {
	if e.res == nil {
		return
	}
	if err := e.device.WaitIdle(); err != nil {
		gxfx.Logger().Warn("postfx: wait idle", slog.Any("error", err))
	}
	e.releaseStages()
	e.release.Flush()
	e.res.destroy(e.device)
	e.res = nil
}
