package gpu

import (
	"bytes"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ConstantAlignment is the uniform buffer offset alignment guaranteed by
// every backend.
const ConstantAlignment = 256

// ConstantRing hands out fixed-size uniform slots from one buffer. A slot
// is only consumed when the data differs from the previous write; after the
// last slot writing rolls over to the first.
type ConstantRing struct {
	device   hal.Device
	queue    hal.Queue
	buf      hal.Buffer
	slotSize uint64
	slots    int
	next     int

	last       []byte
	lastOffset uint64
	written    bool
}

// NewConstantRing creates a ring of slots blocks of blockSize bytes each.
func NewConstantRing(device hal.Device, queue hal.Queue, label string, blockSize, slots int) (*ConstantRing, error) {
	slotSize := uint64(blockSize+ConstantAlignment-1) / ConstantAlignment * ConstantAlignment
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  slotSize * uint64(slots),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create constant ring %s: %w", label, err)
	}
	return &ConstantRing{device: device, queue: queue, buf: buf, slotSize: slotSize, slots: slots}, nil
}

// Buffer returns the underlying uniform buffer.
func (r *ConstantRing) Buffer() hal.Buffer { return r.buf }

// Write stores data in a slot and returns the slot offset. Writing the same
// bytes twice in a row returns the previous slot.
func (r *ConstantRing) Write(data []byte) (uint64, error) {
	if uint64(len(data)) > r.slotSize {
		return 0, fmt.Errorf("constant ring: %d bytes exceed slot size %d", len(data), r.slotSize)
	}
	if r.written && bytes.Equal(data, r.last) {
		return r.lastOffset, nil
	}
	off := uint64(r.next) * r.slotSize
	if err := r.queue.WriteBuffer(r.buf, off, data); err != nil {
		return 0, fmt.Errorf("write constant ring: %w", err)
	}
	r.next = (r.next + 1) % r.slots
	r.last = append(r.last[:0], data...)
	r.lastOffset = off
	r.written = true
	return off, nil
}

// Destroy releases the buffer.
func (r *ConstantRing) Destroy() {
	if r.buf != nil {
		r.device.DestroyBuffer(r.buf)
		r.buf = nil
	}
}
