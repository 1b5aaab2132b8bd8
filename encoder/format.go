package encoder

import (
	"fmt"
	"strings"
)

// Format identifies a console-native texture or depth copy format.
//
// Values match the console's texture-format register encoding: the low nibble
// is the base texel format, bit 0x10 marks a depth (Z) source and bit 0x20
// marks a copy-only ("CTF") format.
type Format uint32

const (
	ctfFlag Format = 0x20
	ztfFlag Format = 0x10
)

// Color formats.
const (
	I4     Format = 0x0
	I8     Format = 0x1
	IA4    Format = 0x2
	IA8    Format = 0x3
	RGB565 Format = 0x4
	RGB5A3 Format = 0x5
	RGBA8  Format = 0x6
)

// Copy-only color formats.
const (
	CTFR4  Format = 0x0 | ctfFlag
	CTFRA4 Format = 0x2 | ctfFlag
	CTFRA8 Format = 0x3 | ctfFlag
	CTFA8  Format = 0x7 | ctfFlag
	CTFR8  Format = 0x8 | ctfFlag
	CTFG8  Format = 0x9 | ctfFlag
	CTFB8  Format = 0xA | ctfFlag
	CTFRG8 Format = 0xB | ctfFlag
	CTFGB8 Format = 0xC | ctfFlag
)

// Depth formats.
const (
	Z8    Format = 0x1 | ztfFlag
	Z16   Format = 0x3 | ztfFlag
	Z24X8 Format = 0x6 | ztfFlag
)

// Copy-only depth formats.
const (
	CTFZ4   Format = 0x0 | ztfFlag | ctfFlag
	CTFZ8M  Format = 0x9 | ztfFlag | ctfFlag
	CTFZ8L  Format = 0xA | ztfFlag | ctfFlag
	CTFZ16L Format = 0xC | ztfFlag | ctfFlag
)

// formatInfo describes the tiling of a format in console memory.
type formatInfo struct {
	name        string
	blockWidth  int
	blockHeight int
	samples     int
}

var formatTable = map[Format]formatInfo{
	I4:      {"I4", 8, 8, 8},
	I8:      {"I8", 8, 4, 4},
	IA4:     {"IA4", 8, 4, 4},
	IA8:     {"IA8", 4, 4, 2},
	RGB565:  {"RGB565", 4, 4, 2},
	RGB5A3:  {"RGB5A3", 4, 4, 2},
	RGBA8:   {"RGBA8", 4, 4, 1},
	CTFR4:   {"CTF_R4", 8, 8, 8},
	CTFRA4:  {"CTF_RA4", 8, 4, 4},
	CTFRA8:  {"CTF_RA8", 4, 4, 2},
	CTFA8:   {"CTF_A8", 8, 4, 4},
	CTFR8:   {"CTF_R8", 8, 4, 4},
	CTFG8:   {"CTF_G8", 8, 4, 4},
	CTFB8:   {"CTF_B8", 8, 4, 4},
	CTFRG8:  {"CTF_RG8", 4, 4, 2},
	CTFGB8:  {"CTF_GB8", 4, 4, 2},
	Z8:      {"Z8", 8, 4, 4},
	Z16:     {"Z16", 4, 4, 2},
	Z24X8:   {"Z24X8", 4, 4, 1},
	CTFZ4:   {"CTF_Z4", 8, 8, 8},
	CTFZ8M:  {"CTF_Z8M", 8, 4, 4},
	CTFZ8L:  {"CTF_Z8L", 8, 4, 4},
	CTFZ16L: {"CTF_Z16L", 4, 4, 2},
}

// allFormats lists the closed set in register order.
var allFormats = []Format{
	I4, I8, IA4, IA8, RGB565, RGB5A3, RGBA8,
	Z8, Z16, Z24X8,
	CTFR4, CTFRA4, CTFRA8, CTFA8, CTFR8, CTFG8, CTFB8, CTFRG8, CTFGB8,
	CTFZ4, CTFZ8M, CTFZ8L, CTFZ16L,
}

// Formats returns every format the generator can encode.
func Formats() []Format {
	out := make([]Format, len(allFormats))
	copy(out, allFormats)
	return out
}

// Valid reports whether f belongs to the encodable set.
func (f Format) Valid() bool {
	_, ok := formatTable[f]
	return ok
}

// String returns the register name of the format, e.g. "RGB5A3" or "CTF_Z8M".
func (f Format) String() string {
	if info, ok := formatTable[f]; ok {
		return info.name
	}
	return fmt.Sprintf("Format(0x%02X)", uint32(f))
}

// IsDepth reports whether the format reads from the depth buffer.
func (f Format) IsDepth() bool { return f&ztfFlag != 0 }

// BlockWidth returns the width of one memory block in texels, or 0 for an
// unknown format.
func (f Format) BlockWidth() int { return formatTable[f].blockWidth }

// BlockHeight returns the height of one memory block in texels, or 0 for an
// unknown format.
func (f Format) BlockHeight() int { return formatTable[f].blockHeight }

// SampleCount returns how many source texels are packed into one RGBA8
// output pixel. 32-bit formats return 1 and are written in two passes.
func (f Format) SampleCount() int { return formatTable[f].samples }

// ParseFormat resolves a format by register name. Matching is case-insensitive
// and accepts names with or without the "GX_TF_"/"GX_CTF_" prefix.
func ParseFormat(name string) (Format, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(n, "GX_CTF_"):
		n = "CTF_" + strings.TrimPrefix(n, "GX_CTF_")
	case strings.HasPrefix(n, "GX_TF_"):
		n = strings.TrimPrefix(n, "GX_TF_")
	}
	for _, f := range allFormats {
		if formatTable[f].name == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}
