package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx/internal/cache"
)

// ErrMissingEntryPoint is returned when compiled source lacks a requested
// entry point.
var ErrMissingEntryPoint = errors.New("gpu: missing entry point")

// ShaderCompiler turns WGSL source into a shader source for the device,
// checking that the named entry points exist.
type ShaderCompiler interface {
	Compile(label, source string, entryPoints ...string) (hal.ShaderSource, error)
}

// NagaCompiler compiles WGSL with naga before it reaches the device, so
// malformed generated text is reported as an error instead of a device
// failure.
type NagaCompiler struct {
	// SPIRV also attaches the SPIR-V translation to the shader source.
	SPIRV bool
}

// Compile parses, lowers and validates source and checks that every name
// in entryPoints is declared as an entry point.
func (c NagaCompiler) Compile(label, source string, entryPoints ...string) (hal.ShaderSource, error) {
	module, err := c.lower(source)
	if err != nil {
		return hal.ShaderSource{}, fmt.Errorf("%s: %w", label, err)
	}
	declared := make(map[string]ir.ShaderStage, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		declared[ep.Name] = ep.Stage
	}
	for _, name := range entryPoints {
		if _, ok := declared[name]; !ok {
			return hal.ShaderSource{}, fmt.Errorf("%s: %w: %q", label, ErrMissingEntryPoint, name)
		}
	}

	src := hal.ShaderSource{WGSL: source}
	if c.SPIRV {
		code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
		if err != nil {
			return hal.ShaderSource{}, fmt.Errorf("%s: %w", label, err)
		}
		src.SPIRV = words(code)
	}
	slogger().Debug("gpu: shader compiled",
		slog.String("label", label),
		slog.Int("entry_points", len(module.EntryPoints)),
		slog.Int("bytes", len(source)))
	return src, nil
}

// Check validates source without producing a shader source.
func (c NagaCompiler) Check(source string) error {
	_, err := c.lower(source)
	return err
}

func (NagaCompiler) lower(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i := range verrs {
			errs[i] = verrs[i]
		}
		return nil, fmt.Errorf("validate: %w", errors.Join(errs...))
	}
	return module, nil
}

// words converts little-endian SPIR-V bytes to 32-bit words.
func words(code []byte) []uint32 {
	out := make([]uint32, len(code)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	return out
}

// CachedCompiler memoizes successful compilations by source text and entry
// points.
type CachedCompiler struct {
	next  ShaderCompiler
	cache *cache.LRU[string, hal.ShaderSource]
}

// NewCachedCompiler wraps next with a cache of capacity entries.
func NewCachedCompiler(next ShaderCompiler, capacity int) *CachedCompiler {
	return &CachedCompiler{next: next, cache: cache.New[string, hal.ShaderSource](capacity)}
}

// Compile returns the cached result for source and entryPoints or compiles
// it with the wrapped compiler. Failures are not cached.
func (c *CachedCompiler) Compile(label, source string, entryPoints ...string) (hal.ShaderSource, error) {
	key := strings.Join(entryPoints, ",") + "\n" + source
	if src, ok := c.cache.Get(key); ok {
		return src, nil
	}
	src, err := c.next.Compile(label, source, entryPoints...)
	if err != nil {
		return hal.ShaderSource{}, err
	}
	c.cache.Add(key, src)
	return src, nil
}

// Stats returns the cache counters.
func (c *CachedCompiler) Stats() cache.Stats { return c.cache.Stats() }
