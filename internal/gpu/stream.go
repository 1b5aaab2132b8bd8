package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrStreamOverflow is returned when a single append exceeds the buffer.
var ErrStreamOverflow = errors.New("gpu: stream buffer overflow")

// StreamBuffer is an append-only GPU buffer. Appends are placed after the
// previous one; when the end is reached writing restarts at offset zero and
// the wrap observers run, since data appended earlier may be overwritten.
type StreamBuffer struct {
	device hal.Device
	queue  hal.Queue
	buf    hal.Buffer
	size   uint64
	offset uint64

	observers []func()
}

// NewStreamBuffer creates a stream buffer of size bytes. CopyDst is added
// to usage.
func NewStreamBuffer(device hal.Device, queue hal.Queue, label string, size uint64, usage gputypes.BufferUsage) (*StreamBuffer, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream buffer %s: %w", label, err)
	}
	return &StreamBuffer{device: device, queue: queue, buf: buf, size: size}, nil
}

// Buffer returns the underlying buffer.
func (s *StreamBuffer) Buffer() hal.Buffer { return s.buf }

// Size returns the capacity in bytes.
func (s *StreamBuffer) Size() uint64 { return s.size }

// OnWrap registers fn to run whenever writing restarts at offset zero.
func (s *StreamBuffer) OnWrap(fn func()) {
	s.observers = append(s.observers, fn)
}

// Append writes data aligned to stride and returns its byte offset.
func (s *StreamBuffer) Append(data []byte, stride uint64) (uint64, error) {
	n := uint64(len(data))
	if n > s.size {
		return 0, fmt.Errorf("%w: %d bytes, capacity %d", ErrStreamOverflow, n, s.size)
	}
	off := s.offset
	if stride > 1 {
		off = (off + stride - 1) / stride * stride
	}
	if off+n > s.size {
		off = 0
		slogger().Debug("gpu: stream buffer wrapped", "size", s.size)
		for _, fn := range s.observers {
			fn()
		}
	}
	if err := s.queue.WriteBuffer(s.buf, off, data); err != nil {
		return 0, fmt.Errorf("write stream buffer: %w", err)
	}
	s.offset = off + n
	return off, nil
}

// Destroy releases the buffer.
func (s *StreamBuffer) Destroy() {
	if s.buf != nil {
		s.device.DestroyBuffer(s.buf)
		s.buf = nil
	}
}
