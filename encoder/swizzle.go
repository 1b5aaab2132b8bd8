package encoder

// Texel is a source coordinate produced by the block decomposition.
type Texel struct {
	X, Y int

	// First reports whether the output pixel belongs to the first cache line
	// of its block. It is always true for formats with more than one sample
	// per pixel.
	First bool
}

// Swizzle computes, on the CPU, the first source texel read by the encoder of
// format f for output pixel (x, y) when each source row holds rowTexels
// texels. It evaluates the same integer decomposition the generated program
// evaluates per fragment.
func Swizzle(f Format, x, y, rowTexels int) Texel {
	blkW, blkH, samples := f.BlockWidth(), f.BlockHeight(), f.SampleCount()
	if blkW == 0 {
		return Texel{}
	}

	yBlock := y &^ (blkH - 1)
	yInBlock := y & (blkH - 1)
	xVirtual := (x << log2(samples)) + yInBlock*rowTexels
	xBlock := (xVirtual >> log2(blkH)) &^ (blkW - 1)

	first := true
	if samples == 1 {
		first = xVirtual&(8*samples) == 0
		xVirtual <<= 1
	}

	xInBlock := xVirtual & (blkW - 1)
	yOffset := (xVirtual >> log2(blkW)) & (blkH - 1)

	return Texel{
		X:     xInBlock + xBlock,
		Y:     yBlock + yOffset,
		First: first,
	}
}
