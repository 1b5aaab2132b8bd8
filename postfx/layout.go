package postfx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ScalarKind is the component type of a uniform field.
type ScalarKind uint8

// Scalar kinds.
const (
	KindInt ScalarKind = iota
	KindUint
	KindFloat
)

func (k ScalarKind) wgsl() string {
	switch k {
	case KindUint:
		return "u32"
	case KindFloat:
		return "f32"
	default:
		return "i32"
	}
}

// Field is one member of a uniform block: a scalar or a vector of two to
// four 32-bit components.
type Field struct {
	Name       string
	Kind       ScalarKind
	Components int
}

// Size returns the byte size of the field.
func (f Field) Size() int { return 4 * f.Components }

// Align returns the alignment of the field in the uniform address space.
func (f Field) Align() int {
	switch f.Components {
	case 1:
		return 4
	case 2:
		return 8
	default:
		return 16
	}
}

// WGSLType returns the declared type of the field, e.g. "f32" or "vec3<i32>".
func (f Field) WGSLType() string {
	if f.Components <= 1 {
		return f.Kind.wgsl()
	}
	return fmt.Sprintf("vec%d<%s>", f.Components, f.Kind.wgsl())
}

// Placement is a field together with its byte offset.
type Placement struct {
	Field
	Offset int
}

// Layout is the packed placement of a uniform block.
type Layout struct {
	Fields []Placement
	// Size is the block size rounded up to 16 bytes; zero for an empty block.
	Size int
}

// PackLayout assigns offsets to fields in order. Each field is aligned to
// its natural alignment and moved to the next 16-byte boundary when it
// would otherwise straddle one.
func PackLayout(fields []Field) Layout {
	l := Layout{Fields: make([]Placement, 0, len(fields))}
	offset := 0
	for _, f := range fields {
		offset = alignUp(offset, f.Align())
		if remaining := alignUp(offset, 16) - offset; remaining > 0 && remaining < f.Size() {
			offset += remaining
		}
		l.Fields = append(l.Fields, Placement{Field: f, Offset: offset})
		offset += f.Size()
	}
	l.Size = alignUp(offset, 16)
	return l
}

// Lookup returns the placement of the named field.
func (l Layout) Lookup(name string) (Placement, bool) {
	for _, p := range l.Fields {
		if p.Name == name {
			return p, true
		}
	}
	return Placement{}, false
}

// Declaration returns the WGSL struct declaration matching the layout.
func (l Layout) Declaration(structName string) string {
	var b []byte
	b = fmt.Appendf(b, "struct %s {\n", structName)
	for _, p := range l.Fields {
		b = fmt.Appendf(b, "    %s: %s,\n", p.Name, p.WGSLType())
	}
	b = append(b, "}\n"...)
	return string(b)
}

func alignUp(v, a int) int {
	return (v + a - 1) &^ (a - 1)
}

// block is a byte image of a uniform block.
type block []byte

func newBlock(l Layout) block { return make(block, l.Size) }

func (b block) putInt32(off int, v ...int32) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[off+4*i:], uint32(x))
	}
}

func (b block) putUint32(off int, v ...uint32) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[off+4*i:], x)
	}
}

func (b block) putFloat32(off int, v ...float32) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[off+4*i:], math.Float32bits(x))
	}
}
