package postfx

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// quadVertexStride is the byte size of one quad vertex: position
// (vec3<f32>) then uv (vec2<f32>).
const quadVertexStride = 20

// quadVertex is one corner of the full-screen strip.
type quadVertex struct {
	x, y, z float32
	u, v    float32
}

// quadVertices returns the four strip corners covering clip space with
// texture coordinates spanning uv.
func quadVertices(uv uvRect) [4]quadVertex {
	return [4]quadVertex{
		{-1, 1, 0, uv.u0, uv.v0},
		{1, 1, 0, uv.u1, uv.v0},
		{-1, -1, 0, uv.u0, uv.v1},
		{1, -1, 0, uv.u1, uv.v1},
	}
}

func quadBytes(vs [4]quadVertex) []byte {
	b := make([]byte, 0, len(vs)*quadVertexStride)
	for _, v := range vs {
		for _, f := range [5]float32{v.x, v.y, v.z, v.u, v.v} {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	}
	return b
}

func quadVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{{
		ArrayStride: quadVertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
		},
	}}
}

// quadUnit returns the vertex program shared by all stages.
func quadUnit() string {
	return frameLayout.Declaration("PPFrame") + "\n" + quadSource
}

// passthroughUnit returns the self-contained single-stage copy program.
func passthroughUnit() string {
	return frameLayout.Declaration("PPFrame") + "\n" + passthroughSource
}
