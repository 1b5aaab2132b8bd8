// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// TargetDescriptor describes a 2D image and the view the engine samples or
// renders through.
type TargetDescriptor struct {
	Label         string
	Width, Height uint32
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	// Layers is the array layer count; 0 means 1.
	Layers uint32
	// SampleCount is the multisample count; 0 means 1.
	SampleCount uint32
	// ViewDimension defaults to 2D.
	ViewDimension gputypes.TextureViewDimension
}

// Target is a texture with one view.
type Target struct {
	Texture hal.Texture
	View    hal.TextureView
	Width   uint32
	Height  uint32
	Format  gputypes.TextureFormat
}

// NewTarget creates a texture and its view.
func NewTarget(device hal.Device, desc TargetDescriptor) (*Target, error) {
	layers := max(desc.Layers, 1)
	samples := max(desc.SampleCount, 1)
	dim := desc.ViewDimension
	if dim == gputypes.TextureViewDimensionUndefined {
		dim = gputypes.TextureViewDimension2D
	}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: layers},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", desc.Label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label + "_view",
		Format:          desc.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: layers,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view %s: %w", desc.Label, err)
	}
	return &Target{
		Texture: tex,
		View:    view,
		Width:   desc.Width,
		Height:  desc.Height,
		Format:  desc.Format,
	}, nil
}

// Destroy releases the view and the texture. Safe on a nil target.
func (t *Target) Destroy(device hal.Device) {
	if t == nil {
		return
	}
	if t.View != nil {
		device.DestroyTextureView(t.View)
		t.View = nil
	}
	if t.Texture != nil {
		device.DestroyTexture(t.Texture)
		t.Texture = nil
	}
}
