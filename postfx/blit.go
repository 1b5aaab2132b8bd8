package postfx

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxfx"
	"github.com/gogpu/gxfx/internal/gpu"
	"github.com/gogpu/gxfx/preset"
)

// ErrInvalidBlit is returned for a draw request missing an image or with
// an empty rectangle.
var ErrInvalidBlit = errors.New("postfx: invalid blit request")

// BlitRequest is one post-processed copy of a rendered frame.
type BlitRequest struct {
	// Src is the processed region in source image pixels.
	Src image.Rectangle
	// Dst is the output region in target pixels.
	Dst image.Rectangle

	// Source is a 2D array view of the color image.
	Source hal.TextureView
	// Depth is an optional depth view: a 2D array view, or a multisampled
	// 2D view when the sample count is above 1.
	Depth hal.TextureView
	// Target is the destination render target view.
	Target hal.TextureView

	SourceWidth, SourceHeight int
	Layer                     int
	// Gamma is the display gamma; values <= 0 mean 1.
	Gamma float32
}

func (r *BlitRequest) validate() error {
	switch {
	case r.Source == nil || r.Target == nil:
		return fmt.Errorf("%w: missing source or target view", ErrInvalidBlit)
	case r.Src.Empty() || r.Dst.Empty():
		return fmt.Errorf("%w: empty rectangle src=%v dst=%v", ErrInvalidBlit, r.Src, r.Dst)
	case r.SourceWidth <= 0 || r.SourceHeight <= 0:
		return fmt.Errorf("%w: source size %dx%d", ErrInvalidBlit, r.SourceWidth, r.SourceHeight)
	}
	return nil
}

// BlitFromTexture draws the stage list from req.Source into req.Target.
// Every stage but the last renders into an intermediate image; the last
// renders into req.Dst of the target.
func (e *Engine) BlitFromTexture(req BlitRequest) error {
	if e.res == nil {
		return ErrDestroyed
	}
	if err := req.validate(); err != nil {
		return err
	}
	if err := e.ApplyShader(); err != nil {
		return err
	}
	e.release.Collect(e.queue.PollCompleted())

	if err := e.uploadOptions(); err != nil {
		return err
	}

	gamma := req.Gamma
	if gamma <= 0 {
		gamma = 1
	}
	e.lastFrame = NewFrameParameters(req.Src, req.SourceWidth, req.SourceHeight, req.Layer, gamma, e.opts.clock().Sub(e.start))
	frameOffset, err := e.res.frames.Write(e.lastFrame.Bytes())
	if err != nil {
		return err
	}
	if err := e.ensureQuad(normalizedRect(req.Src, req.SourceWidth, req.SourceHeight)); err != nil {
		return err
	}
	if err := e.ensureIntermediates(req.Src.Size(), req.Dst.Size()); err != nil {
		return err
	}
	return e.draw(req, frameOffset)
}

// ensureQuad appends the strip when the UV rectangle changed or the stream
// wrapped since it was last appended.
func (e *Engine) ensureQuad(uv uvRect) error {
	if !e.quadStale && uv == e.quad {
		return nil
	}
	off, err := e.res.vertices.Append(quadBytes(quadVertices(uv)), quadVertexStride)
	if err != nil {
		return err
	}
	e.quad = uv
	e.quadOffset = off
	e.quadStale = false
	e.stats.QuadUploads++
	return nil
}

// ensureIntermediates recreates the stage outputs when the source or
// destination size or the stage count changed.
func (e *Engine) ensureIntermediates(src, dst image.Point) error {
	n := len(e.stages) - 1
	if n <= 0 {
		return nil
	}
	srcKey, dstKey := sizeKey{src.X, src.Y}, sizeKey{dst.X, dst.Y}
	if srcKey == e.prevSrc && dstKey == e.prevDst && len(e.intermediates) == n {
		return nil
	}

	old := e.intermediates
	e.intermediates = nil
	device := e.device
	e.release.Defer(e.lastSubmit, func() {
		for _, t := range old {
			t.Destroy(device)
		}
	})

	targets := make([]*gpu.Target, 0, n)
	for i := range n {
		w, h := e.stages[i].OutputSize(src.X, src.Y, dst.X, dst.Y)
		t, err := gpu.NewTarget(e.device, gpu.TargetDescriptor{
			Label:  fmt.Sprintf("%s_stage_%d_output", e.opts.label, i),
			Width:  uint32(max(w, 1)),
			Height: uint32(max(h, 1)),
			Format: gputypes.TextureFormatRGBA8Unorm,
			Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			for _, t := range targets {
				t.Destroy(e.device)
			}
			gxfx.Logger().Error("postfx: intermediate creation failed", slog.Any("error", err))
			return err
		}
		targets = append(targets, t)
	}
	e.intermediates = targets
	e.prevSrc, e.prevDst = srcKey, dstKey
	e.stats.Reallocations++
	gxfx.Logger().Debug("postfx: intermediates allocated",
		slog.Int("count", n), slog.Any("src", src), slog.Any("dst", dst))
	return nil
}

// draw records one render pass per stage and submits them.
func (e *Engine) draw(req BlitRequest, frameOffset uint64) error {
	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: e.opts.label + "_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(e.opts.label + "_blit"); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("begin encoding: %w", err)
	}

	var groups []hal.BindGroup
	destroyGroups := func() {
		for _, g := range groups {
			e.device.DestroyBindGroup(g)
		}
	}

	final := len(e.stages) - 1
	for i, st := range e.stages {
		bg, err := e.createStageBindGroup(fmt.Sprintf("%s_stage_%d", e.opts.label, i), e.stageViews(i, st, req), frameOffset)
		if err != nil {
			encoder.DiscardEncoding()
			destroyGroups()
			return err
		}
		groups = append(groups, bg)

		attachment := hal.RenderPassColorAttachment{
			View:    req.Target,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}
		vp := req.Dst
		if i != final {
			t := e.intermediates[i]
			attachment.View = t.View
			attachment.LoadOp = gputypes.LoadOpClear
			vp = image.Rect(0, 0, int(t.Width), int(t.Height))
		}

		rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
			Label:            fmt.Sprintf("%s_stage_%d_pass", e.opts.label, i),
			ColorAttachments: []hal.RenderPassColorAttachment{attachment},
		})
		rp.SetPipeline(e.programs.pipelines[i])
		rp.SetBindGroup(0, bg, nil)
		if e.optionGroup != nil {
			rp.SetBindGroup(optionGroup, e.optionGroup, nil)
		}
		rp.SetVertexBuffer(0, e.res.vertices.Buffer(), e.quadOffset)
		rp.SetViewport(float32(vp.Min.X), float32(vp.Min.Y), float32(vp.Dx()), float32(vp.Dy()), 0, 1)
		rp.Draw(4, 1, 0, 0)
		rp.End()
		e.stats.Draws++
	}

	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		destroyGroups()
		return fmt.Errorf("end encoding: %w", err)
	}
	idx, err := e.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		e.device.FreeCommandBuffer(cmd)
		destroyGroups()
		return fmt.Errorf("submit: %w", err)
	}
	e.lastSubmit = idx
	device := e.device
	e.release.Defer(idx, func() {
		device.FreeCommandBuffer(cmd)
		destroyGroups()
	})
	return nil
}

// stageViews selects the textures bound for stage i. Declared inputs bind
// to prev0..prev3 in order; unused slots and a missing depth image bind
// placeholders.
func (e *Engine) stageViews(i int, st preset.Stage, req BlitRequest) stageViews {
	v := stageViews{color: req.Source, depth: req.Depth}
	if v.depth == nil {
		v.depth = e.programs.depth.View
	}
	for k := range v.prev {
		v.prev[k] = e.res.prev.View
	}
	if i > 0 && len(e.intermediates) > 0 {
		for k, in := range st.Inputs {
			v.prev[k] = e.intermediates[in].View
		}
	}
	return v
}
