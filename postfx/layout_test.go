package postfx

import (
	"encoding/binary"
	"image"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gxfx/preset"
)

func TestPackLayout(t *testing.T) {
	tests := []struct {
		name    string
		fields  []Field
		offsets []int
		size    int
	}{
		{
			name: "vector moves to next boundary",
			fields: []Field{
				{Name: "enabled", Kind: KindInt, Components: 1},
				{Name: "tint", Kind: KindFloat, Components: 3},
				{Name: "radius", Kind: KindInt, Components: 1},
			},
			offsets: []int{0, 16, 28},
			size:    32,
		},
		{
			name: "scalars pack tightly",
			fields: []Field{
				{Name: "a", Kind: KindFloat, Components: 1},
				{Name: "b", Kind: KindFloat, Components: 1},
				{Name: "c", Kind: KindFloat, Components: 1},
			},
			offsets: []int{0, 4, 8},
			size:    16,
		},
		{
			name: "vec2 aligns to 8",
			fields: []Field{
				{Name: "a", Kind: KindFloat, Components: 1},
				{Name: "b", Kind: KindFloat, Components: 2},
				{Name: "c", Kind: KindFloat, Components: 1},
				{Name: "d", Kind: KindFloat, Components: 2},
			},
			offsets: []int{0, 8, 16, 24},
			size:    32,
		},
		{
			name: "scalar after vec3 fills the gap",
			fields: []Field{
				{Name: "a", Kind: KindFloat, Components: 3},
				{Name: "b", Kind: KindUint, Components: 1},
				{Name: "c", Kind: KindFloat, Components: 4},
			},
			offsets: []int{0, 12, 16},
			size:    32,
		},
		{
			name: "empty",
			size: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := PackLayout(tt.fields)
			if l.Size != tt.size {
				t.Errorf("Size = %d, want %d", l.Size, tt.size)
			}
			if len(l.Fields) != len(tt.offsets) {
				t.Fatalf("got %d fields, want %d", len(l.Fields), len(tt.offsets))
			}
			for i, p := range l.Fields {
				if p.Offset != tt.offsets[i] {
					t.Errorf("%s offset = %d, want %d", p.Name, p.Offset, tt.offsets[i])
				}
			}
		})
	}
}

func TestLayoutDeclaration(t *testing.T) {
	l := PackLayout([]Field{
		{Name: "flag", Kind: KindInt, Components: 1},
		{Name: "color", Kind: KindFloat, Components: 4},
	})
	want := "struct Params {\n    flag: i32,\n    color: vec4<f32>,\n}\n"
	if got := l.Declaration("Params"); got != want {
		t.Errorf("Declaration =\n%s\nwant\n%s", got, want)
	}
	if _, ok := l.Lookup("missing"); ok {
		t.Error("Lookup found a missing field")
	}
}

func TestFrameLayout(t *testing.T) {
	if frameLayout.Size != 48 {
		t.Errorf("frame block size = %d, want 48", frameLayout.Size)
	}
	want := map[string]int{"time": 0, "layer": 4, "native_gamma": 8, "padding": 12, "resolution": 16, "targetscale": 32}
	for name, off := range want {
		if got := frameOffset(name); got != off {
			t.Errorf("%s offset = %d, want %d", name, got, off)
		}
	}
}

func TestNewFrameParameters(t *testing.T) {
	p := NewFrameParameters(image.Rect(0, 0, 64, 64), 64, 64, 2, 2.2, 1500*time.Millisecond)

	if p.Time != 1500 {
		t.Errorf("Time = %d, want 1500", p.Time)
	}
	if p.Layer != 2 {
		t.Errorf("Layer = %d, want 2", p.Layer)
	}
	if math.Abs(float64(p.NativeGamma)-0.4545) > 1e-3 {
		t.Errorf("NativeGamma = %v, want ~0.4545", p.NativeGamma)
	}
	if p.Resolution != [4]float32{64, 64, 1.0 / 64, 1.0 / 64} {
		t.Errorf("Resolution = %v", p.Resolution)
	}
	if p.TargetScale != [4]float32{0, 0, 1, 1} {
		t.Errorf("TargetScale = %v", p.TargetScale)
	}

	sub := NewFrameParameters(image.Rect(16, 32, 48, 64), 64, 64, 0, 1, 0)
	if sub.TargetScale != [4]float32{0.25, 0.5, 2, 2} {
		t.Errorf("sub-rectangle TargetScale = %v", sub.TargetScale)
	}
}

func TestFrameParametersBytes(t *testing.T) {
	p := FrameParameters{
		Time:        7,
		Layer:       -1,
		NativeGamma: 0.5,
		Resolution:  [4]float32{640, 480, 1.0 / 640, 1.0 / 480},
		TargetScale: [4]float32{0, 0, 1, 1},
	}
	b := p.Bytes()
	if len(b) != 48 {
		t.Fatalf("len = %d, want 48", len(b))
	}
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	f32 := func(off int) float32 { return math.Float32frombits(u32(off)) }

	if u32(0) != 7 || int32(u32(4)) != -1 || f32(8) != 0.5 {
		t.Errorf("scalars = %d %d %v", u32(0), int32(u32(4)), f32(8))
	}
	if f32(16) != 640 || f32(20) != 480 {
		t.Errorf("resolution = %v %v", f32(16), f32(20))
	}
	if f32(40) != 1 || f32(44) != 1 {
		t.Errorf("targetscale.zw = %v %v", f32(40), f32(44))
	}
}

func testOptions(t *testing.T) *preset.OptionSet {
	t.Helper()
	set, err := preset.NewOptionSet(
		preset.Option{Name: "enabled", Type: preset.OptionBool, Bool: true},
		preset.Option{Name: "tint", Type: preset.OptionFloat, Floats: []float32{1, 0.5, 0.25}},
		preset.Option{Name: "radius", Type: preset.OptionInt, Ints: []int32{3}},
	)
	if err != nil {
		t.Fatalf("NewOptionSet: %v", err)
	}
	return set
}

func TestOptionLayout(t *testing.T) {
	l := OptionLayout(testOptions(t))
	want := map[string]int{"option_enabled": 0, "option_tint": 16, "option_radius": 28}
	for name, off := range want {
		p, ok := l.Lookup(name)
		if !ok {
			t.Fatalf("%s missing from layout", name)
		}
		if p.Offset != off {
			t.Errorf("%s offset = %d, want %d", name, p.Offset, off)
		}
	}
	if l.Size != 32 {
		t.Errorf("Size = %d, want 32", l.Size)
	}
}

func TestPackOptions(t *testing.T) {
	set := testOptions(t)
	b := packOptions(set, OptionLayout(set))
	if len(b) != 32 {
		t.Fatalf("len = %d, want 32", len(b))
	}
	i32 := func(off int) int32 { return int32(binary.LittleEndian.Uint32(b[off:])) }
	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }

	if i32(0) != 1 {
		t.Errorf("enabled = %d, want 1", i32(0))
	}
	if f32(16) != 1 || f32(20) != 0.5 || f32(24) != 0.25 {
		t.Errorf("tint = %v %v %v", f32(16), f32(20), f32(24))
	}
	if i32(28) != 3 {
		t.Errorf("radius = %d, want 3", i32(28))
	}
}

func TestOptionDeclarations(t *testing.T) {
	set := testOptions(t)
	got := optionDeclarations(set, OptionLayout(set))
	for _, want := range []string{
		"struct PPOptions {",
		"    option_tint: vec3<f32>,",
		"@group(1) @binding(0) var<uniform> pp_options: PPOptions;",
		"fn GetOption_enabled() -> i32 { return pp_options.option_enabled; }",
		"fn OptionEnabled_enabled() -> bool { return pp_options.option_enabled != 0; }",
		"fn GetOption_tint() -> vec3<f32> { return pp_options.option_tint; }",
		"fn GetOption_radius() -> i32 { return pp_options.option_radius; }",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("declarations missing %q", want)
		}
	}
	if strings.Contains(got, "OptionEnabled_tint") {
		t.Error("non-bool option has an enabled accessor")
	}

	empty, _ := preset.NewOptionSet()
	if got := optionDeclarations(empty, OptionLayout(empty)); got != "" {
		t.Errorf("empty set declarations = %q", got)
	}
}
