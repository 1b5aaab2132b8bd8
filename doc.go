// Package gxfx provides the GPU post-processing and texture-copy encoding
// stages of a console video backend, built on gogpu/wgpu.
//
// # Overview
//
// The module is organized into:
//   - encoder: WGSL generator for the tiled console texture formats
//   - texconv: compiles and runs encoder programs against a HAL device
//   - preset: post-processing preset sources, stage graphs and user options
//   - postfx: the post-processing engine that blits a frame through a preset
//
// The root package carries the logger shared by all of them.
//
// # Quick Start
//
//	lib := preset.NewLibrary(os.DirFS("shaders"))
//	cfg := preset.NewConfig(lib)
//	settings := preset.NewSettings("crt", 1)
//
//	eng, err := postfx.NewFromProvider(provider, cfg, settings)
//	if err != nil {
//	    return err
//	}
//	defer eng.Destroy()
//
//	// once per frame
//	if err := eng.ApplyShader(); err != nil {
//	    return err
//	}
//	err = eng.BlitFromTexture(postfx.BlitRequest{ /* ... */ })
//
// # Logging
//
// gxfx is silent by default. Call [SetLogger] to route its records to a
// [log/slog] handler.
package gxfx

// Version is the current version of the module.
const Version = "0.1.0"
