// Package postfx runs post-processing presets over a rendered frame.
//
// An [Engine] owns the compiled programs of the active preset, the
// intermediate targets of its stage graph and the uniform buffers of the
// frame parameters and user options. [Engine.ApplyShader] reconciles the
// compiled state with the settings before each frame, and
// [Engine.BlitFromTexture] draws the source region through every stage
// into the destination.
//
// A preset that fails to load or compile is replaced by the default
// preset, and that by a built-in passthrough, so a frame is always drawn.
package postfx
