package postfx

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxfx/internal/gpu"
)

// Compiler turns a WGSL compilation unit into a shader source for the
// device, failing when any of the named entry points is missing.
type Compiler = gpu.ShaderCompiler

// compileCacheSize bounds the compiled units kept by the default compiler:
// the shared vertex program plus recently used presets.
const compileCacheSize = 16

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	compiler     Compiler
	targetFormat gputypes.TextureFormat
	clock        func() time.Time
	label        string
}

func defaultOptions() engineOptions {
	return engineOptions{
		compiler:     gpu.NewCachedCompiler(gpu.NagaCompiler{}, compileCacheSize),
		targetFormat: gputypes.TextureFormatBGRA8Unorm,
		clock:        time.Now,
		label:        "gxfx_postfx",
	}
}

// WithCompiler replaces the naga-based shader compiler.
func WithCompiler(c Compiler) Option {
	return func(o *engineOptions) {
		if c != nil {
			o.compiler = c
		}
	}
}

// WithTargetFormat sets the format of the destination render target.
// The default is BGRA8Unorm.
func WithTargetFormat(f gputypes.TextureFormat) Option {
	return func(o *engineOptions) {
		o.targetFormat = f
	}
}

// WithClock sets the time source for the GetTime intrinsic.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithLabel sets the prefix of GPU object labels.
func WithLabel(label string) Option {
	return func(o *engineOptions) {
		o.label = label
	}
}
