// Package encoder generates the WGSL programs that convert a rendered frame
// region into the tiled texture formats of the console's texture unit.
//
// Each program draws a full-target quad; every output pixel packs four
// bytes of the destination format, so the render target holds the encoded
// texture in its native block order. [Swizzle] exposes the same block
// decomposition on the CPU.
package encoder
