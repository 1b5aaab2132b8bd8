package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/gogpu/gxfx"
)

// ErrUnknownFormat is returned for a format outside the encodable set.
var ErrUnknownFormat = errors.New("encoder: unknown texture copy format")

// Source framebuffer dimensions the copy rectangle is expressed in.
const (
	EFBWidth  = 640
	EFBHeight = 528
)

// Entry points of every generated program.
const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

// Bindings of every generated program (group 0).
const (
	BindingParams  = 0
	BindingSampler = 1
	BindingSource  = 2
)

// intensityConst holds the RGB weights and the bias of the intensity formats.
var intensityConst = [4]float64{0.257, 0.504, 0.098, 0.0625}

// rgb5a3AlphaThreshold is 224/255, the largest alpha representable in 3 bits.
const rgb5a3AlphaThreshold = 0.878

// Generate returns the WGSL program that encodes a linear source image into
// the tiled byte layout of format f, written as normalized RGBA8 pixels.
//
// The program reads its copy rectangle from a uniform
// position = (left, top, row width in texels, scale) and samples the source
// texture bound at BindingSource with the sampler at BindingSampler.
//
// Generate panics if the generated text exceeds the fixed text budget; that
// indicates a defect in the generator, never bad input.
func Generate(f Format) (string, error) {
	if !f.Valid() {
		gxfx.Logger().Warn("encoder: unknown format", slog.String("format", f.String()))
		return "", fmt.Errorf("%w: 0x%X", ErrUnknownFormat, uint32(f))
	}

	ctx := contextPool.Get().(*genContext)
	defer contextPool.Put(ctx)

	ctx.begin()
	writeEncoder(ctx, f)
	ctx.end()

	if !ctx.buf.intact() {
		gxfx.Logger().Error("encoder: text buffer canary consumed",
			slog.String("format", f.String()),
			slog.Int("budget", textBufferSize))
		panic(fmt.Sprintf("encoder: %v program does not fit in %d bytes", f, textBufferSize))
	}

	out := ctx.buf.String()
	gxfx.Logger().Debug("encoder: generated program",
		slog.String("format", f.String()),
		slog.Int("bytes", len(out)))
	return out, nil
}

// writeEncoder dispatches on the closed format set.
func writeEncoder(c *genContext, f Format) {
	switch f {
	case I4:
		writeI4(c)
	case I8:
		writeI8(c)
	case IA4:
		writeIA4(c)
	case IA8:
		writeIA8(c)
	case RGB565:
		writeRGB565(c)
	case RGB5A3:
		writeRGB5A3(c)
	case RGBA8:
		writeRGBA8(c)
	case CTFR4:
		writeC4(c, f, "r")
	case CTFRA4:
		writeCC4(c, f, "ar")
	case CTFRA8:
		writeCC8(c, f, "ar")
	case CTFA8:
		writeC8(c, f, "a")
	case CTFR8:
		writeC8(c, f, "r")
	case CTFG8:
		writeC8(c, f, "g")
	case CTFB8:
		writeC8(c, f, "b")
	case CTFRG8:
		writeCC8(c, f, "rg")
	case CTFGB8:
		writeCC8(c, f, "gb")
	case Z8:
		writeC8(c, f, "b")
	case Z16:
		writeZ16(c)
	case Z24X8:
		writeZ24(c)
	case CTFZ4:
		writeC4(c, f, "b")
	case CTFZ8M:
		writeZ8(c, f, 256.0)
	case CTFZ8L:
		writeZ8(c, f, 65536.0)
	case CTFZ16L:
		writeZ16L(c)
	}
}

func log2(v int) int { return bits.TrailingZeros(uint(v)) }

// writeSwizzler emits the declarations, the vertex stage and the prologue of
// the fragment stage. After it, uv0 holds the normalized source coordinate of
// the first texel covered by the current output pixel.
func writeSwizzler(c *genContext, f Format) {
	blkW, blkH, samples := f.BlockWidth(), f.BlockHeight(), f.SampleCount()

	c.buf.writef("// %v encoder: %dx%d blocks, %d sample(s) per pixel\n\n", f, blkW, blkH, samples)
	c.buf.write("struct EncodeParams {\n")
	c.buf.write("    // left, top of the copy rectangle, row width in texels, scale (1 or 2)\n")
	c.buf.write("    position: vec4<i32>,\n")
	c.buf.write("}\n\n")
	c.buf.writef("@group(0) @binding(%d) var<uniform> params: EncodeParams;\n", BindingParams)
	c.buf.writef("@group(0) @binding(%d) var samp0: sampler;\n", BindingSampler)
	c.buf.writef("@group(0) @binding(%d) var tex0: texture_2d<f32>;\n\n", BindingSource)

	c.buf.write("@vertex\n")
	c.buf.writef("fn %s(@builtin(vertex_index) vertex_index: u32) -> @builtin(position) vec4<f32> {\n", VertexEntryPoint)
	c.line("let corner = vec2<f32>(f32(vertex_index & 1u), f32(vertex_index >> 1u));")
	c.line("return vec4<f32>(corner.x * 2.0 - 1.0, 1.0 - corner.y * 2.0, 0.0, 1.0);")
	c.buf.write("}\n\n")

	c.buf.write("@fragment\n")
	c.buf.writef("fn %s(@builtin(position) frag_coord: vec4<f32>) -> @location(0) vec4<f32> {\n", FragmentEntryPoint)
	c.line("var ocol0 = vec4<f32>(0.0, 0.0, 0.0, 0.0);")
	c.line("var sampleUv: vec2<i32>;")
	c.line("let uv1 = vec2<i32>(frag_coord.xy);")

	c.linef("let y_block_position = uv1.y & %d;", ^(blkH - 1))
	c.linef("let y_offset_in_block = uv1.y & %d;", blkH-1)
	c.linef("var x_virtual_position = (uv1.x << %du) + y_offset_in_block * params.position.z;", log2(samples))
	c.linef("let x_block_position = (x_virtual_position >> %du) & %d;", log2(blkH), ^(blkW - 1))
	if samples == 1 {
		// 32-bit formats span two cache lines per block; first_half selects the line.
		c.linef("let first_half = (x_virtual_position & %d) == 0;", 8*samples)
		c.line("x_virtual_position = x_virtual_position << 1u;")
	}
	c.linef("let x_offset_in_block = x_virtual_position & %d;", blkW-1)
	c.linef("let y_offset = (x_virtual_position >> %du) & %d;", log2(blkW), blkH-1)

	c.line("sampleUv.x = x_offset_in_block + x_block_position;")
	c.line("sampleUv.y = y_block_position + y_offset;")

	c.line("var uv0 = vec2<f32>(sampleUv);")
	c.line("uv0 = uv0 + vec2<f32>(0.5, 0.5);")
	c.line("uv0 = uv0 * f32(params.position.w);")
	c.line("uv0 = uv0 + vec2<f32>(params.position.xy);")
	c.linef("uv0 = uv0 / vec2<f32>(%s, %s);", flt(EFBWidth), flt(EFBHeight))
	c.linef("let sample_offset = f32(params.position.w) / %s;", flt(EFBWidth))
}

func writeEncoderEnd(c *genContext) {
	c.line("return ocol0;")
	c.buf.write("}\n")
}

// writeSampleColor assigns components comp of the texel xoffset texels to the
// right of uv0 to dest.
func writeSampleColor(c *genContext, comp, dest string, xoffset int) {
	c.linef("%s = textureSampleLevel(tex0, samp0, uv0 + vec2<f32>(%s, 0.0) * sample_offset, 0.0).%s;",
		dest, flt(float64(xoffset)), comp)
}

// writeColorToIntensity declares the intensity constant on first use within
// the current generation. The bias in IntensityConst.a is added by the caller
// once all channels are filled.
func writeColorToIntensity(c *genContext, src, dest string) {
	if !c.intensityEmitted {
		c.linef("let IntensityConst = vec4<f32>(%s, %s, %s, %s);",
			flt(intensityConst[0]), flt(intensityConst[1]), flt(intensityConst[2]), flt(intensityConst[3]))
		c.intensityEmitted = true
	}
	c.linef("%s = dot(IntensityConst.rgb, %s.rgb);", dest, src)
}

// toBitDepth truncates a normalized value to depth bits, as an integer-valued float.
func toBitDepth(depth int, src string) string {
	return fmt.Sprintf("floor(%s * 255.0 / exp2(8.0 - %s))", src, flt(float64(depth)))
}

func writeToBitDepth(c *genContext, depth int, src, dest string) {
	c.linef("%s = %s;", dest, toBitDepth(depth, src))
}

func writeI8(c *genContext) {
	writeSwizzler(c, I8)
	c.line("var texSample: vec3<f32>;")

	for i, dst := range []string{"ocol0.b", "ocol0.g", "ocol0.r", "ocol0.a"} {
		writeSampleColor(c, "rgb", "texSample", i)
		writeColorToIntensity(c, "texSample", dst)
	}
	c.line("ocol0 = ocol0 + IntensityConst.aaaa;")

	writeEncoderEnd(c)
}

func writeI4(c *genContext) {
	writeSwizzler(c, I4)
	c.line("var texSample: vec3<f32>;")
	c.line("var color0: vec4<f32>;")
	c.line("var color1: vec4<f32>;")

	dests := []string{
		"color0.b", "color1.b", "color0.g", "color1.g",
		"color0.r", "color1.r", "color0.a", "color1.a",
	}
	for i, dst := range dests {
		writeSampleColor(c, "rgb", "texSample", i)
		writeColorToIntensity(c, "texSample", dst)
	}

	c.line("color0 = color0 + IntensityConst.aaaa;")
	c.line("color1 = color1 + IntensityConst.aaaa;")
	writeToBitDepth(c, 4, "color0", "color0")
	writeToBitDepth(c, 4, "color1", "color1")
	c.line("ocol0 = (color0 * 16.0 + color1) / 255.0;")

	writeEncoderEnd(c)
}

func writeIA8(c *genContext) {
	writeSwizzler(c, IA8)
	c.line("var texSample: vec4<f32>;")

	writeSampleColor(c, "rgba", "texSample", 0)
	c.line("ocol0.b = texSample.a;")
	writeColorToIntensity(c, "texSample", "ocol0.g")

	writeSampleColor(c, "rgba", "texSample", 1)
	c.line("ocol0.r = texSample.a;")
	writeColorToIntensity(c, "texSample", "ocol0.a")

	c.line("ocol0.g = ocol0.g + IntensityConst.a;")
	c.line("ocol0.a = ocol0.a + IntensityConst.a;")

	writeEncoderEnd(c)
}

func writeIA4(c *genContext) {
	writeSwizzler(c, IA4)
	c.line("var texSample: vec4<f32>;")
	c.line("var color0: vec4<f32>;")
	c.line("var color1: vec4<f32>;")

	for i, ch := range []string{"b", "g", "r", "a"} {
		writeSampleColor(c, "rgba", "texSample", i)
		c.linef("color0.%s = texSample.a;", ch)
		writeColorToIntensity(c, "texSample", "color1."+ch)
	}

	c.line("color1 = color1 + IntensityConst.aaaa;")
	writeToBitDepth(c, 4, "color0", "color0")
	writeToBitDepth(c, 4, "color1", "color1")
	c.line("ocol0 = (color0 * 16.0 + color1) / 255.0;")

	writeEncoderEnd(c)
}

func writeRGB565(c *genContext) {
	writeSwizzler(c, RGB565)

	writeSampleColor(c, "rgb", "let texSample0", 0)
	writeSampleColor(c, "rgb", "let texSample1", 1)
	c.line("let texRs = vec2<f32>(texSample0.r, texSample1.r);")
	c.line("let texGs = vec2<f32>(texSample0.g, texSample1.g);")
	c.line("let texBs = vec2<f32>(texSample0.b, texSample1.b);")

	writeToBitDepth(c, 6, "texGs", "let gInt")
	c.line("let gUpper = floor(gInt / 8.0);")
	c.line("let gLower = gInt - gUpper * 8.0;")

	// Each pair holds (first texel, second texel); the first texel lands in b/g.
	writeToBitDepth(c, 5, "texRs", "var rHigh")
	c.line("rHigh = rHigh * 8.0 + gUpper;")
	writeToBitDepth(c, 5, "texBs", "var bLow")
	c.line("bLow = bLow + gLower * 32.0;")

	c.line("ocol0 = vec4<f32>(rHigh.y, bLow.x, rHigh.x, bLow.y);")
	c.line("ocol0 = ocol0 / 255.0;")

	writeEncoderEnd(c)
}

// writeRGB5A3Texel packs one texel into the two destination channels hi, lo.
// Opaque texels use RGB555 with the top bit set, the rest ARGB3444.
func writeRGB5A3Texel(c *genContext, hi, lo string) {
	c.linef("if (texSample.a > %s) {", flt(rgb5a3AlphaThreshold))
	writeToBitDepth(c, 5, "texSample.g", "color0")
	c.line("gUpper = floor(color0 / 8.0);")
	c.line("gLower = color0 - gUpper * 8.0;")

	writeToBitDepth(c, 5, "texSample.r", hi)
	c.linef("%s = %s * 4.0 + gUpper + 128.0;", hi, hi)
	writeToBitDepth(c, 5, "texSample.b", lo)
	c.linef("%s = %s + gLower * 32.0;", lo, lo)
	c.line("} else {")

	writeToBitDepth(c, 4, "texSample.r", hi)
	writeToBitDepth(c, 4, "texSample.b", lo)

	writeToBitDepth(c, 3, "texSample.a", "color0")
	c.linef("%s = %s + color0 * 16.0;", hi, hi)
	writeToBitDepth(c, 4, "texSample.g", "color0")
	c.linef("%s = %s + color0 * 16.0;", lo, lo)
	c.line("}")
}

func writeRGB5A3(c *genContext) {
	writeSwizzler(c, RGB5A3)
	c.line("var texSample: vec4<f32>;")
	c.line("var color0: f32;")
	c.line("var gUpper: f32;")
	c.line("var gLower: f32;")

	writeSampleColor(c, "rgba", "texSample", 0)
	writeRGB5A3Texel(c, "ocol0.b", "ocol0.g")

	writeSampleColor(c, "rgba", "texSample", 1)
	writeRGB5A3Texel(c, "ocol0.r", "ocol0.a")

	c.line("ocol0 = ocol0 / 255.0;")

	writeEncoderEnd(c)
}

func writeRGBA8(c *genContext) {
	writeSwizzler(c, RGBA8)
	c.line("var texSample: vec4<f32>;")
	c.line("var color0: vec4<f32>;")
	c.line("var color1: vec4<f32>;")

	// color0 collects the AR cache line, color1 the GB cache line.
	writeSampleColor(c, "rgba", "texSample", 0)
	c.line("color0.b = texSample.a;")
	c.line("color0.g = texSample.r;")
	c.line("color1.b = texSample.g;")
	c.line("color1.g = texSample.b;")

	writeSampleColor(c, "rgba", "texSample", 1)
	c.line("color0.r = texSample.a;")
	c.line("color0.a = texSample.r;")
	c.line("color1.r = texSample.g;")
	c.line("color1.a = texSample.b;")

	c.line("ocol0 = select(color1, color0, first_half);")

	writeEncoderEnd(c)
}

func writeC4(c *genContext, f Format, comp string) {
	writeSwizzler(c, f)
	c.line("var color0: vec4<f32>;")
	c.line("var color1: vec4<f32>;")

	dests := []string{
		"color0.b", "color1.b", "color0.g", "color1.g",
		"color0.r", "color1.r", "color0.a", "color1.a",
	}
	for i, dst := range dests {
		writeSampleColor(c, comp, dst, i)
	}

	writeToBitDepth(c, 4, "color0", "color0")
	writeToBitDepth(c, 4, "color1", "color1")
	c.line("ocol0 = (color0 * 16.0 + color1) / 255.0;")

	writeEncoderEnd(c)
}

func writeC8(c *genContext, f Format, comp string) {
	writeSwizzler(c, f)

	for i, dst := range []string{"ocol0.b", "ocol0.g", "ocol0.r", "ocol0.a"} {
		writeSampleColor(c, comp, dst, i)
	}

	writeEncoderEnd(c)
}

func writeCC4(c *genContext, f Format, comp string) {
	writeSwizzler(c, f)
	c.line("var texSample: vec2<f32>;")
	c.line("var color0: vec4<f32>;")
	c.line("var color1: vec4<f32>;")

	for i, ch := range []string{"b", "g", "r", "a"} {
		writeSampleColor(c, comp, "texSample", i)
		c.linef("color0.%s = texSample.x;", ch)
		c.linef("color1.%s = texSample.y;", ch)
	}

	writeToBitDepth(c, 4, "color0", "color0")
	writeToBitDepth(c, 4, "color1", "color1")
	c.line("ocol0 = (color0 * 16.0 + color1) / 255.0;")

	writeEncoderEnd(c)
}

func writeCC8(c *genContext, f Format, comp string) {
	writeSwizzler(c, f)

	writeSampleColor(c, comp, "let texSample0", 0)
	c.line("ocol0.b = texSample0.x;")
	c.line("ocol0.g = texSample0.y;")

	writeSampleColor(c, comp, "let texSample1", 1)
	c.line("ocol0.r = texSample1.x;")
	c.line("ocol0.a = texSample1.y;")

	writeEncoderEnd(c)
}

func writeZ8(c *genContext, f Format, multiplier float64) {
	writeSwizzler(c, f)
	c.line("var depth: f32;")

	for i, dst := range []string{"ocol0.b", "ocol0.g", "ocol0.r", "ocol0.a"} {
		writeSampleColor(c, "b", "depth", i)
		c.linef("%s = fract(depth * %s);", dst, flt(multiplier))
	}

	writeEncoderEnd(c)
}

// writeDepthExpand splits depth (normalized) into 8-bit parts of a 24-bit value.
// With full set, expanded.b receives the low byte as well.
func writeDepthExpand(c *genContext, depth, expanded string, full bool) {
	c.linef("%s = %s * 16777215.0;", depth, depth)
	c.linef("%s.r = floor(%s / (256.0 * 256.0));", expanded, depth)
	c.linef("%s = %s - %s.r * 256.0 * 256.0;", depth, depth, expanded)
	c.linef("%s.g = floor(%s / 256.0);", expanded, depth)
	if full {
		c.linef("%s = %s - %s.g * 256.0;", depth, depth, expanded)
		c.linef("%s.b = %s;", expanded, depth)
	}
}

func writeZ16(c *genContext) {
	writeSwizzler(c, Z16)
	c.line("var depth: f32;")
	c.line("var expanded: vec3<f32>;")

	// The high byte follows the low byte in this format; the swap is intended.
	c.line("// byte order is reversed")

	writeSampleColor(c, "b", "depth", 0)
	writeDepthExpand(c, "depth", "expanded", false)
	c.line("ocol0.b = expanded.g / 255.0;")
	c.line("ocol0.g = expanded.r / 255.0;")

	writeSampleColor(c, "b", "depth", 1)
	writeDepthExpand(c, "depth", "expanded", false)
	c.line("ocol0.r = expanded.g / 255.0;")
	c.line("ocol0.a = expanded.r / 255.0;")

	writeEncoderEnd(c)
}

func writeZ16L(c *genContext) {
	writeSwizzler(c, CTFZ16L)
	c.line("var depth: f32;")
	c.line("var expanded: vec3<f32>;")

	c.line("// byte order is reversed")

	writeSampleColor(c, "b", "depth", 0)
	writeDepthExpand(c, "depth", "expanded", true)
	c.line("ocol0.b = expanded.b / 255.0;")
	c.line("ocol0.g = expanded.g / 255.0;")

	writeSampleColor(c, "b", "depth", 1)
	writeDepthExpand(c, "depth", "expanded", true)
	c.line("ocol0.r = expanded.b / 255.0;")
	c.line("ocol0.a = expanded.g / 255.0;")

	writeEncoderEnd(c)
}

func writeZ24(c *genContext) {
	writeSwizzler(c, Z24X8)
	c.line("var depth0: f32;")
	c.line("var depth1: f32;")
	c.line("var expanded0: vec3<f32>;")
	c.line("var expanded1: vec3<f32>;")

	writeSampleColor(c, "b", "depth0", 0)
	writeSampleColor(c, "b", "depth1", 1)

	writeDepthExpand(c, "depth0", "expanded0", true)
	writeDepthExpand(c, "depth1", "expanded1", true)

	// The second cache line carries the middle and low bytes, the first one
	// the high byte next to a constant 0xFF.
	c.line("if (!first_half) {")
	c.line("    ocol0.b = expanded0.g / 255.0;")
	c.line("    ocol0.g = expanded0.b / 255.0;")
	c.line("    ocol0.r = expanded1.g / 255.0;")
	c.line("    ocol0.a = expanded1.b / 255.0;")
	c.line("} else {")
	c.line("    ocol0.b = 1.0;")
	c.line("    ocol0.g = expanded0.r / 255.0;")
	c.line("    ocol0.r = 1.0;")
	c.line("    ocol0.a = expanded1.r / 255.0;")
	c.line("}")

	writeEncoderEnd(c)
}
