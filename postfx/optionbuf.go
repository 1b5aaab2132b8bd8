package postfx

import (
	"fmt"
	"strings"

	"github.com/gogpu/gxfx/preset"
)

const (
	optionPrefix = "option_"
	optionStruct = "PPOptions"
	optionGroup  = 1
)

// optionFields maps each option to one uniform field in declaration order:
// bool to i32, int vectors to i32 vectors, float vectors to f32 vectors.
func optionFields(set *preset.OptionSet) []Field {
	fields := make([]Field, 0, set.Len())
	for _, o := range set.All() {
		f := Field{Name: optionPrefix + o.Name, Components: o.Components()}
		switch o.Type {
		case preset.OptionFloat:
			f.Kind = KindFloat
		default:
			f.Kind = KindInt
		}
		fields = append(fields, f)
	}
	return fields
}

// OptionLayout returns the uniform layout of an option set.
func OptionLayout(set *preset.OptionSet) Layout {
	return PackLayout(optionFields(set))
}

// optionDeclarations returns the option block declaration with its binding
// and one accessor per option, or "" when the block is empty.
func optionDeclarations(set *preset.OptionSet, l Layout) string {
	if l.Size == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(l.Declaration(optionStruct))
	fmt.Fprintf(&b, "@group(%d) @binding(0) var<uniform> pp_options: %s;\n\n", optionGroup, optionStruct)
	for _, o := range set.All() {
		pl, _ := l.Lookup(optionPrefix + o.Name)
		fmt.Fprintf(&b, "fn GetOption_%s() -> %s { return pp_options.%s; }\n", o.Name, pl.WGSLType(), pl.Name)
		if o.Type == preset.OptionBool {
			fmt.Fprintf(&b, "fn OptionEnabled_%s() -> bool { return pp_options.%s != 0; }\n", o.Name, pl.Name)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// packOptions writes the current option values at their layout offsets.
func packOptions(set *preset.OptionSet, l Layout) []byte {
	b := newBlock(l)
	for _, o := range set.All() {
		pl, ok := l.Lookup(optionPrefix + o.Name)
		if !ok {
			continue
		}
		switch o.Type {
		case preset.OptionBool:
			var v int32
			if o.Bool {
				v = 1
			}
			b.putInt32(pl.Offset, v)
		case preset.OptionInt:
			b.putInt32(pl.Offset, o.Ints...)
		case preset.OptionFloat:
			b.putFloat32(pl.Offset, o.Floats...)
		}
	}
	return b
}
