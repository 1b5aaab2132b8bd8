// Package gpu holds the HAL plumbing shared by postfx and texconv: shader
// compilation through naga, uniform rings, streamed vertex data, render
// targets, deferred release and the font atlas.
package gpu
