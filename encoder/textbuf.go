package encoder

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	// textBufferSize is the fixed budget for one generated program.
	textBufferSize = 16384

	// canaryByte occupies the last byte of the buffer. Any write that reaches
	// the end of the buffer overwrites it.
	canaryByte = 0x7C
)

// textBuffer is a fixed-size append buffer guarded by a trailing canary.
// Writes past the end are dropped, and the canary is consumed, so an
// overflow is always detected after generation instead of truncating silently.
type textBuffer struct {
	data [textBufferSize]byte
	n    int
}

func (b *textBuffer) reset() {
	b.n = 0
	b.data[textBufferSize-1] = canaryByte
}

func (b *textBuffer) write(s string) {
	if b.n >= textBufferSize {
		return
	}
	b.n += copy(b.data[b.n:], s)
}

func (b *textBuffer) writef(format string, args ...any) {
	b.write(fmt.Sprintf(format, args...))
}

// intact reports whether the canary survived. A buffer filled up to the
// canary slot counts as overflowed even when the last character written
// happens to equal the canary value.
func (b *textBuffer) intact() bool {
	return b.n < textBufferSize && b.data[textBufferSize-1] == canaryByte
}

func (b *textBuffer) String() string { return string(b.data[:b.n]) }

// genContext is the scratch state of one generation call. Contexts are
// pooled; begin and end bracket every use.
type genContext struct {
	buf              textBuffer
	intensityEmitted bool
}

var contextPool = sync.Pool{
	New: func() any { return new(genContext) },
}

func (c *genContext) begin() {
	c.buf.reset()
	c.intensityEmitted = false
}

func (c *genContext) end() {
	c.intensityEmitted = false
}

func (c *genContext) line(s string) {
	c.buf.write("    ")
	c.buf.write(s)
	c.buf.write("\n")
}

func (c *genContext) linef(format string, args ...any) {
	c.line(fmt.Sprintf(format, args...))
}

// flt formats a float literal for WGSL. The result never depends on the host
// locale and always carries a decimal point so it parses as an f32 literal.
func flt(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
