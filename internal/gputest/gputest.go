// Package gputest provides noop-backed devices for tests, with wrappers
// that record what the code under test creates, writes and submits.
package gputest

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// NoopDevice opens a device and queue on the noop backend. They are
// destroyed when the test ends.
func NoopDevice(tb testing.TB) (hal.Device, hal.Queue) {
	tb.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		tb.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		tb.Fatal("noop backend exposes no adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		tb.Fatalf("Open failed: %v", err)
	}
	tb.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return open.Device, open.Queue
}

// ErrInjected is returned by the calls a Device was told to fail.
var ErrInjected = errors.New("gputest: injected failure")

// Device records the labels of created objects and can be told to fail
// buffer creation or command recording.
type Device struct {
	hal.Device

	mu        sync.Mutex
	textures  []string
	buffers   []string
	pipelines []string
	modules   []string
	groups    int

	failBuffers string
	failBegin   bool
	discards    int
}

// NewDevice wraps d.
func NewDevice(d hal.Device) *Device { return &Device{Device: d} }

func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.mu.Lock()
	d.textures = append(d.textures, desc.Label)
	d.mu.Unlock()
	return d.Device.CreateTexture(desc)
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	d.buffers = append(d.buffers, desc.Label)
	fail := d.failBuffers != "" && strings.HasSuffix(desc.Label, d.failBuffers)
	d.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return d.Device.CreateBuffer(desc)
}

func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &commandEncoder{CommandEncoder: enc, device: d}, nil
}

// FailBuffers makes CreateBuffer fail for labels ending in suffix. The
// empty suffix turns the failure off.
func (d *Device) FailBuffers(suffix string) {
	d.mu.Lock()
	d.failBuffers = suffix
	d.mu.Unlock()
}

// FailBeginEncoding makes BeginEncoding fail on command encoders created
// by d.
func (d *Device) FailBeginEncoding(fail bool) {
	d.mu.Lock()
	d.failBegin = fail
	d.mu.Unlock()
}

// Discards returns the number of DiscardEncoding calls.
func (d *Device) Discards() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discards
}

type commandEncoder struct {
	hal.CommandEncoder
	device *Device
}

func (e *commandEncoder) BeginEncoding(label string) error {
	e.device.mu.Lock()
	fail := e.device.failBegin
	e.device.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *commandEncoder) DiscardEncoding() {
	e.device.mu.Lock()
	e.device.discards++
	e.device.mu.Unlock()
	e.CommandEncoder.DiscardEncoding()
}

func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.mu.Lock()
	d.modules = append(d.modules, desc.Label)
	d.mu.Unlock()
	return d.Device.CreateShaderModule(desc)
}

func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.mu.Lock()
	d.pipelines = append(d.pipelines, desc.Label)
	d.mu.Unlock()
	return d.Device.CreateRenderPipeline(desc)
}

func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.mu.Lock()
	d.groups++
	d.mu.Unlock()
	return d.Device.CreateBindGroup(desc)
}

// Textures returns the labels of created textures ending in suffix.
func (d *Device) Textures(suffix string) []string { return d.matching(&d.textures, suffix) }

// Buffers returns the labels of created buffers ending in suffix.
func (d *Device) Buffers(suffix string) []string { return d.matching(&d.buffers, suffix) }

// Pipelines returns the labels of created render pipelines ending in suffix.
func (d *Device) Pipelines(suffix string) []string { return d.matching(&d.pipelines, suffix) }

// Modules returns the labels of created shader modules ending in suffix.
func (d *Device) Modules(suffix string) []string { return d.matching(&d.modules, suffix) }

// BindGroups returns the number of created bind groups.
func (d *Device) BindGroups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.groups
}

func (d *Device) matching(list *[]string, suffix string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, l := range *list {
		if strings.HasSuffix(l, suffix) {
			out = append(out, l)
		}
	}
	return out
}

// BufferWrite is one recorded Queue.WriteBuffer call.
type BufferWrite struct {
	Buffer hal.Buffer
	Offset uint64
	Data   []byte
}

// Queue records buffer writes and submissions.
type Queue struct {
	hal.Queue

	mu      sync.Mutex
	writes  []BufferWrite
	submits int
}

// NewQueue wraps q.
func NewQueue(q hal.Queue) *Queue { return &Queue{Queue: q} }

func (q *Queue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	q.writes = append(q.writes, BufferWrite{Buffer: buf, Offset: offset, Data: bytes.Clone(data)})
	q.mu.Unlock()
	return q.Queue.WriteBuffer(buf, offset, data)
}

func (q *Queue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	q.submits++
	q.mu.Unlock()
	return q.Queue.Submit(cmds)
}

// Writes returns the recorded writes to buf, or all writes when buf is nil.
func (q *Queue) Writes(buf hal.Buffer) []BufferWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []BufferWrite
	for _, w := range q.writes {
		if buf == nil || w.Buffer == buf {
			out = append(out, w)
		}
	}
	return out
}

// Submits returns the number of Submit calls.
func (q *Queue) Submits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits
}
