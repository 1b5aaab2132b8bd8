package postfx

import (
	"encoding/binary"
	"errors"
	"image"
	"math"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx/internal/gpu"
	"github.com/gogpu/gxfx/internal/gputest"
	"github.com/gogpu/gxfx/preset"
)

const blurPreset = `/*
[configuration]
[[stage]]
entry_point = "blur"
output_scale = 0.5

[[stage]]
entry_point = "main"
inputs = [0]
[/configuration]
*/

fn blur() { SetOutput(Sample()); }
fn main() { SetOutput(SamplePrev(0)); }
`

const tintPreset = `/*
[configuration]
[[option]]
name = "strength"
type = "float"
default = 0.75

[[option]]
name = "invert"
type = "bool"
default = false
[/configuration]
*/

fn main() { SetOutput(Sample() * GetOption_strength()); }
`

const badEntryPreset = `/*
[configuration]
[[stage]]
entry_point = "bloom"
[/configuration]
*/

fn main() { SetOutput(Sample()); }
`

const compileErrorPreset = `// REJECT
fn main() { SetOutput(Sample()); }
`

// testCompiler passes source through, rejecting units that contain any of
// the reject markers.
type testCompiler struct {
	reject []string
	calls  int
}

func (c *testCompiler) Compile(label, source string, entryPoints ...string) (hal.ShaderSource, error) {
	c.calls++
	for _, r := range c.reject {
		if strings.Contains(source, r) {
			return hal.ShaderSource{}, errors.New(label + ": rejected")
		}
	}
	return hal.ShaderSource{WGSL: source}, nil
}

type harness struct {
	device   *gputest.Device
	queue    *gputest.Queue
	comp     *testCompiler
	config   *preset.Config
	settings *preset.Settings
	engine   *Engine
	now      time.Time

	source, target *gpu.Target
}

func newHarness(t *testing.T, shader string, samples int) *harness {
	t.Helper()
	d, q := gputest.NoopDevice(t)
	h := &harness{
		device: gputest.NewDevice(d),
		queue:  gputest.NewQueue(q),
		comp:   &testCompiler{reject: []string{"// REJECT"}},
		now:    time.Unix(1000, 0),
	}
	lib := preset.NewLibrary(fstest.MapFS{
		"blur.wgsl":     {Data: []byte(blurPreset)},
		"tint.wgsl":     {Data: []byte(tintPreset)},
		"badentry.wgsl": {Data: []byte(badEntryPreset)},
		"broken.wgsl":   {Data: []byte(compileErrorPreset)},
	})
	h.config = preset.NewConfig(lib)
	h.settings = preset.NewSettings(shader, samples)

	var err error
	h.engine, err = New(h.device, h.queue, h.config, h.settings,
		WithCompiler(h.comp),
		WithClock(func() time.Time { return h.now }),
		WithLabel("pp"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(h.engine.Destroy)

	h.source = h.newTarget(t, "color", 64, 64, gputypes.TextureViewDimension2DArray)
	h.target = h.newTarget(t, "backbuffer", 200, 200, gputypes.TextureViewDimension2D)
	return h
}

func (h *harness) newTarget(t *testing.T, label string, w, ht uint32, dim gputypes.TextureViewDimension) *gpu.Target {
	t.Helper()
	tgt, err := gpu.NewTarget(h.device, gpu.TargetDescriptor{
		Label:         label,
		Width:         w,
		Height:        ht,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment,
		ViewDimension: dim,
	})
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	t.Cleanup(func() { tgt.Destroy(h.device) })
	return tgt
}

func (h *harness) request(src, dst image.Rectangle) BlitRequest {
	return BlitRequest{
		Src:          src,
		Dst:          dst,
		Source:       h.source.View,
		Target:       h.target.View,
		SourceWidth:  int(h.source.Width),
		SourceHeight: int(h.source.Height),
		Gamma:        2.2,
	}
}

func (h *harness) blit(t *testing.T, src, dst image.Rectangle) {
	t.Helper()
	if err := h.engine.BlitFromTexture(h.request(src, dst)); err != nil {
		t.Fatalf("BlitFromTexture: %v", err)
	}
}

var (
	fullSrc = image.Rect(0, 0, 64, 64)
	fullDst = image.Rect(0, 0, 100, 100)
)

func TestNewNilDevice(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("error = %v, want ErrNilDevice", err)
	}
}

func TestApplyShaderDefault(t *testing.T) {
	h := newHarness(t, "", 1)
	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	st := h.engine.Stats()
	if st.Compiles != 1 || st.Fallbacks != 0 {
		t.Errorf("stats = %+v, want one compile and no fallback", st)
	}
	if stages := h.engine.Stages(); len(stages) != 1 || stages[0].EntryPoint != "main" {
		t.Errorf("stages = %+v", stages)
	}
}

func TestApplyShaderSwitchesPreset(t *testing.T) {
	h := newHarness(t, "", 1)
	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	h.settings.SetPostProcessingShader("blur")
	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	if got := len(h.engine.Stages()); got != 2 {
		t.Errorf("stages = %d, want 2", got)
	}
	if h.config.Shader() != "blur" {
		t.Errorf("loaded preset = %q", h.config.Shader())
	}
	if got := h.engine.Stats().Compiles; got != 2 {
		t.Errorf("compiles = %d, want 2", got)
	}
	if got := len(h.device.Pipelines("_main")); got != 2 {
		t.Errorf("main pipelines = %d, want 2 (default then blur)", got)
	}
}

func TestApplyShaderFallback(t *testing.T) {
	tests := []struct {
		name   string
		preset string
	}{
		{"missing entry point", "badentry"},
		{"compile error", "broken"},
		{"unknown preset", "nonexistent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.preset, 1)
			if err := h.engine.ApplyShader(); err != nil {
				t.Fatalf("ApplyShader: %v", err)
			}
			if got := h.settings.PostProcessingShader(); got != "" {
				t.Errorf("selection = %q, want cleared", got)
			}
			st := h.engine.Stats()
			if st.Fallbacks != 1 || st.Passthroughs != 0 {
				t.Errorf("stats = %+v, want one fallback to the default preset", st)
			}
			stages := h.engine.Stages()
			if len(stages) != 1 || stages[0].EntryPoint != preset.DefaultEntryPoint {
				t.Errorf("stages = %+v, want the default stage", stages)
			}

			// The cleared selection now matches the loaded default preset.
			if err := h.engine.ApplyShader(); err != nil {
				t.Fatalf("ApplyShader: %v", err)
			}
			if got := h.engine.Stats().Compiles; got != 1 {
				t.Errorf("compiles = %d, want 1", got)
			}
		})
	}
}

func TestApplyShaderPassthrough(t *testing.T) {
	h := newHarness(t, "blur", 1)
	// Reject every assembled preset, including the default one.
	h.comp.reject = append(h.comp.reject, "// Preset source.")

	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	st := h.engine.Stats()
	if st.Fallbacks != 1 || st.Passthroughs != 1 {
		t.Errorf("stats = %+v, want fallback and passthrough", st)
	}
	if got := len(h.engine.Stages()); got != 1 {
		t.Errorf("stages = %d, want 1", got)
	}
	h.blit(t, fullSrc, fullDst)
	if got := h.engine.Stats().Draws; got != 1 {
		t.Errorf("draws = %d, want 1", got)
	}
}

func TestApplyShaderSampleCount(t *testing.T) {
	h := newHarness(t, "", 1)
	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	h.settings.SetSampleCount(4)
	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	if got := h.engine.Stats().Compiles; got != 2 {
		t.Errorf("compiles = %d, want 2", got)
	}
	if got := len(h.device.Textures("_placeholder_depth")); got != 2 {
		t.Errorf("depth placeholders = %d, want 2", got)
	}
}

func TestIntermediatesFollowSize(t *testing.T) {
	h := newHarness(t, "blur", 1)

	for range 3 {
		h.blit(t, fullSrc, fullDst)
	}
	if got := len(h.device.Textures("_output")); got != 1 {
		t.Errorf("intermediates created = %d, want 1", got)
	}
	if got := h.engine.Stats().Reallocations; got != 1 {
		t.Errorf("reallocations = %d, want 1", got)
	}
	if im := h.engine.intermediates[0]; im.Width != 50 || im.Height != 50 {
		t.Errorf("intermediate size = %dx%d, want 50x50", im.Width, im.Height)
	}

	h.blit(t, fullSrc, image.Rect(0, 0, 200, 100))
	if got := len(h.device.Textures("_output")); got != 2 {
		t.Errorf("intermediates created = %d, want 2 after resize", got)
	}
	if im := h.engine.intermediates[0]; im.Width != 100 || im.Height != 50 {
		t.Errorf("intermediate size = %dx%d, want 100x50", im.Width, im.Height)
	}
	if got := h.engine.Stats().Draws; got != 8 {
		t.Errorf("draws = %d, want 8", got)
	}
}

func TestSingleStageHasNoIntermediates(t *testing.T) {
	h := newHarness(t, "", 1)
	h.blit(t, fullSrc, fullDst)
	h.blit(t, fullSrc, image.Rect(0, 0, 10, 10))
	if got := len(h.device.Textures("_output")); got != 0 {
		t.Errorf("intermediates created = %d, want 0", got)
	}
}

func TestQuadUploadedOnUVChange(t *testing.T) {
	h := newHarness(t, "", 1)
	for range 3 {
		h.blit(t, fullSrc, fullDst)
	}
	if got := h.engine.Stats().QuadUploads; got != 1 {
		t.Errorf("quad uploads = %d, want 1", got)
	}
	h.blit(t, image.Rect(8, 8, 56, 56), fullDst)
	if got := h.engine.Stats().QuadUploads; got != 2 {
		t.Errorf("quad uploads = %d, want 2", got)
	}
	// A new destination keeps the same source coordinates.
	h.blit(t, image.Rect(8, 8, 56, 56), image.Rect(0, 0, 50, 50))
	if got := h.engine.Stats().QuadUploads; got != 2 {
		t.Errorf("quad uploads = %d, want 2", got)
	}
}

func TestQuadReuploadedAfterWrap(t *testing.T) {
	h := newHarness(t, "", 1)
	// Alternate rectangles until the vertex stream wraps.
	rects := []image.Rectangle{fullSrc, image.Rect(1, 1, 63, 63)}
	quadSize := 4 * quadVertexStride
	n := vertexStreamSize/quadSize + 2
	for i := range n {
		h.blit(t, rects[i%2], fullDst)
	}
	if got := h.engine.Stats().QuadUploads; got != n {
		t.Errorf("quad uploads = %d, want %d", got, n)
	}
	if h.engine.quadStale {
		t.Error("quad still marked stale after upload")
	}
}

func TestBlitFrameParameters(t *testing.T) {
	h := newHarness(t, "", 1)
	h.now = h.now.Add(250 * time.Millisecond)
	h.blit(t, fullSrc, fullDst)

	p := h.engine.LastFrame()
	if p.Time != 250 {
		t.Errorf("Time = %d, want 250", p.Time)
	}
	if math.Abs(float64(p.NativeGamma)-1/2.2) > 1e-4 {
		t.Errorf("NativeGamma = %v, want %v", p.NativeGamma, 1/2.2)
	}
	if p.Resolution != [4]float32{64, 64, 1.0 / 64, 1.0 / 64} {
		t.Errorf("Resolution = %v", p.Resolution)
	}

	writes := h.queue.Writes(h.engine.res.frames.Buffer())
	if len(writes) == 0 {
		t.Fatal("frame parameters not uploaded")
	}
	last := writes[len(writes)-1].Data
	if got := math.Float32frombits(binary.LittleEndian.Uint32(last[16:])); got != 64 {
		t.Errorf("uploaded resolution.x = %v", got)
	}
}

func TestBlitGammaDefault(t *testing.T) {
	h := newHarness(t, "", 1)
	req := h.request(fullSrc, fullDst)
	req.Gamma = 0
	if err := h.engine.BlitFromTexture(req); err != nil {
		t.Fatalf("BlitFromTexture: %v", err)
	}
	if got := h.engine.LastFrame().NativeGamma; got != 1 {
		t.Errorf("NativeGamma = %v, want 1", got)
	}
}

func TestOptionUploads(t *testing.T) {
	h := newHarness(t, "tint", 1)
	h.blit(t, fullSrc, fullDst)
	h.blit(t, fullSrc, fullDst)
	if got := h.engine.Stats().OptionUploads; got != 1 {
		t.Errorf("option uploads = %d, want 1", got)
	}
	if h.config.IsDirty() {
		t.Error("configuration still dirty after upload")
	}

	if err := h.config.SetFloats("strength", 0.25); err != nil {
		t.Fatalf("SetFloats: %v", err)
	}
	h.blit(t, fullSrc, fullDst)
	if got := h.engine.Stats().OptionUploads; got != 2 {
		t.Errorf("option uploads = %d, want 2", got)
	}

	writes := h.queue.Writes(h.engine.optionBuf)
	if len(writes) != 2 {
		t.Fatalf("option buffer writes = %d, want 2", len(writes))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(writes[1].Data)); got != 0.25 {
		t.Errorf("uploaded strength = %v, want 0.25", got)
	}
}

func TestOptionBufferAfterRecompile(t *testing.T) {
	h := newHarness(t, "tint", 1)
	h.blit(t, fullSrc, fullDst)

	// A recompilation creates a new buffer that must be filled even though
	// no option value changed.
	h.settings.SetSampleCount(2)
	h.blit(t, fullSrc, fullDst)
	if got := h.engine.Stats().OptionUploads; got != 2 {
		t.Errorf("option uploads = %d, want 2", got)
	}
	if got := len(h.device.Buffers("_options")); got != 2 {
		t.Errorf("option buffers = %d, want 2", got)
	}
}

func TestBlitValidation(t *testing.T) {
	h := newHarness(t, "", 1)
	tests := []struct {
		name   string
		mutate func(*BlitRequest)
	}{
		{"no source", func(r *BlitRequest) { r.Source = nil }},
		{"no target", func(r *BlitRequest) { r.Target = nil }},
		{"empty src", func(r *BlitRequest) { r.Src = image.Rectangle{} }},
		{"empty dst", func(r *BlitRequest) { r.Dst = image.Rect(5, 5, 5, 9) }},
		{"no source size", func(r *BlitRequest) { r.SourceWidth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.request(fullSrc, fullDst)
			tt.mutate(&req)
			if err := h.engine.BlitFromTexture(req); !errors.Is(err, ErrInvalidBlit) {
				t.Errorf("error = %v, want ErrInvalidBlit", err)
			}
		})
	}
	if got := h.queue.Submits(); got != 0 {
		t.Errorf("submits = %d, want 0", got)
	}
}

func TestBlitSubmitsOncePerDraw(t *testing.T) {
	h := newHarness(t, "blur", 1)
	h.blit(t, fullSrc, fullDst)
	h.blit(t, fullSrc, fullDst)
	if got := h.queue.Submits(); got != 2 {
		t.Errorf("submits = %d, want 2", got)
	}
	if got := h.engine.Stats().Draws; got != 4 {
		t.Errorf("draws = %d, want 4", got)
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	h := newHarness(t, "blur", 1)
	h.blit(t, fullSrc, fullDst)
	h.engine.Destroy()
	if h.engine.release.Len() != 0 {
		t.Errorf("pending releases after Destroy = %d", h.engine.release.Len())
	}
	h.engine.Destroy()
}

func TestOptionBufferFailureFallsBack(t *testing.T) {
	h := newHarness(t, "tint", 1)
	h.device.FailBuffers("_options")

	if err := h.engine.ApplyShader(); err != nil {
		t.Fatalf("ApplyShader: %v", err)
	}
	if got := h.settings.PostProcessingShader(); got != "" {
		t.Errorf("selection = %q, want cleared", got)
	}
	if got := h.engine.Stats().Fallbacks; got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}
	if h.engine.optionBuf != nil || h.engine.optionGroup != nil {
		t.Error("option resources left installed after a failed allocation")
	}
	if stages := h.engine.Stages(); len(stages) != 1 || stages[0].EntryPoint != preset.DefaultEntryPoint {
		t.Errorf("stages = %+v, want the default stage", stages)
	}

	h.device.FailBuffers("")
	h.blit(t, fullSrc, fullDst)
	if got := h.engine.Stats().OptionUploads; got != 0 {
		t.Errorf("option uploads = %d, want 0 for the default pass", got)
	}

	// The preset can be selected again once allocation succeeds.
	h.settings.SetPostProcessingShader("tint")
	h.blit(t, fullSrc, fullDst)
	if h.engine.optionGroup == nil {
		t.Fatal("option bind group missing after reselecting the preset")
	}
	if got := h.engine.Stats().OptionUploads; got != 1 {
		t.Errorf("option uploads = %d, want 1", got)
	}
}

func TestBlitDiscardsEncoderOnBeginFailure(t *testing.T) {
	h := newHarness(t, "", 1)
	h.blit(t, fullSrc, fullDst)

	h.device.FailBeginEncoding(true)
	err := h.engine.BlitFromTexture(h.request(fullSrc, fullDst))
	if !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("BlitFromTexture error = %v, want injected failure", err)
	}
	if got := h.device.Discards(); got != 1 {
		t.Errorf("discarded encoders = %d, want 1", got)
	}
	if got := h.queue.Submits(); got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}

	h.device.FailBeginEncoding(false)
	h.blit(t, fullSrc, fullDst)
	if got := h.queue.Submits(); got != 2 {
		t.Errorf("submits = %d, want 2", got)
	}
}

func TestCallsAfterDestroy(t *testing.T) {
	h := newHarness(t, "", 1)
	h.blit(t, fullSrc, fullDst)
	h.engine.Destroy()

	if err := h.engine.BlitFromTexture(h.request(fullSrc, fullDst)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("BlitFromTexture error = %v, want ErrDestroyed", err)
	}
	if err := h.engine.ApplyShader(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("ApplyShader error = %v, want ErrDestroyed", err)
	}
}

type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (p fakeProvider) Device() gpucontext.Device { return nil }
func (p fakeProvider) Queue() gpucontext.Queue { return nil }
func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p fakeProvider) Adapter() gpucontext.Adapter { return nil }
func (p fakeProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "noop"}
}
func (p fakeProvider) HalDevice() any { return p.device }
func (p fakeProvider) HalQueue() any { return p.queue }

func TestNewFromProvider(t *testing.T) {
	device, queue := gputest.NoopDevice(t)
	config := preset.NewConfig(preset.NewLibrary(nil))
	settings := preset.NewSettings("", 1)

	e, err := NewFromProvider(fakeProvider{device, queue, gputypes.TextureFormatRGBA8Unorm},
		config, settings, WithCompiler(&testCompiler{}))
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	defer e.Destroy()
	if e.opts.targetFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("target format = %v, want the surface format", e.opts.targetFormat)
	}

	if _, err := NewFromProvider(fakeProvider{}, config, settings); !errors.Is(err, ErrNoHALProvider) {
		t.Errorf("error = %v, want ErrNoHALProvider", err)
	}
}
