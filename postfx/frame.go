package postfx

import (
	"image"
	"time"
)

// frameLayout is the layout of the per-draw parameter block PPFrame.
var frameLayout = PackLayout([]Field{
	{Name: "time", Kind: KindUint, Components: 1},
	{Name: "layer", Kind: KindInt, Components: 1},
	{Name: "native_gamma", Kind: KindFloat, Components: 1},
	{Name: "padding", Kind: KindFloat, Components: 1},
	{Name: "resolution", Kind: KindFloat, Components: 4},
	{Name: "targetscale", Kind: KindFloat, Components: 4},
})

// FrameParameters is the per-draw scalar block shared by the vertex and
// fragment programs of every stage.
type FrameParameters struct {
	// Time is the elapsed time since the engine was created, in milliseconds.
	Time  uint32
	Layer int32
	// NativeGamma is the reciprocal of the requested gamma.
	NativeGamma float32
	// Resolution is (width, height, 1/width, 1/height) of the source image.
	Resolution [4]float32
	// TargetScale maps a UV in the source rectangle to [0,1] of a stage
	// output: (u0, v0, 1/(u1-u0), 1/(v1-v0)).
	TargetScale [4]float32
}

// NewFrameParameters computes the parameter block for a draw of the src
// rectangle out of a srcW x srcH image.
func NewFrameParameters(src image.Rectangle, srcW, srcH int, layer int, gamma float32, elapsed time.Duration) FrameParameters {
	uv := normalizedRect(src, srcW, srcH)
	p := FrameParameters{
		Time:        uint32(elapsed.Milliseconds()),
		Layer:       int32(layer),
		NativeGamma: 1 / gamma,
		Resolution:  [4]float32{float32(srcW), float32(srcH), 1 / float32(srcW), 1 / float32(srcH)},
	}
	p.TargetScale = [4]float32{uv.u0, uv.v0, 1 / (uv.u1 - uv.u0), 1 / (uv.v1 - uv.v0)}
	return p
}

// Bytes returns the packed block.
func (p *FrameParameters) Bytes() []byte {
	b := newBlock(frameLayout)
	b.putUint32(frameOffset("time"), p.Time)
	b.putInt32(frameOffset("layer"), p.Layer)
	b.putFloat32(frameOffset("native_gamma"), p.NativeGamma)
	b.putFloat32(frameOffset("resolution"), p.Resolution[:]...)
	b.putFloat32(frameOffset("targetscale"), p.TargetScale[:]...)
	return b
}

func frameOffset(name string) int {
	pl, _ := frameLayout.Lookup(name)
	return pl.Offset
}

// uvRect is a source rectangle in normalized texture coordinates.
type uvRect struct {
	u0, v0, u1, v1 float32
}

func normalizedRect(r image.Rectangle, w, h int) uvRect {
	sw := 1 / float32(w)
	sh := 1 / float32(h)
	return uvRect{
		u0: float32(r.Min.X) * sw,
		v0: float32(r.Min.Y) * sh,
		u1: float32(r.Max.X) * sw,
		v1: float32(r.Max.Y) * sh,
	}
}
