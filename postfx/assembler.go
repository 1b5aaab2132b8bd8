package postfx

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/scanner"

	"github.com/gogpu/gxfx/preset"
)

var (
	// ErrEntryPointNotFound is returned when a stage entry point has no
	// function declaration in the preset source.
	ErrEntryPointNotFound = errors.New("postfx: entry point not found")

	// ErrEntryPointSignature is returned when a stage entry point declares
	// parameters or a return type.
	ErrEntryPointSignature = errors.New("postfx: entry point must be declared as fn name()")
)

var (
	//go:embed shaders/header.wgsl
	headerSource string

	//go:embed shaders/depth.wgsl
	depthSource string

	//go:embed shaders/depth_msaa.wgsl
	depthMSAASource string

	//go:embed shaders/quad.wgsl
	quadSource string

	//go:embed shaders/passthrough.wgsl
	passthroughSource string
)

// stageBodyPrefix prefixes the renamed authored function of every stage.
const stageBodyPrefix = "pp_stage_"

// HeaderOptions selects the header variant and the option block.
type HeaderOptions struct {
	// Samples is the anti-aliasing sample count of the depth input. Values
	// above 1 select the multisampled depth variant.
	Samples int
	// Options declares the option block; nil declares none.
	Options *preset.OptionSet
}

// Header returns the declarations and intrinsics prepended to preset source.
func Header(opts HeaderOptions) string {
	var b strings.Builder
	b.WriteString(frameLayout.Declaration("PPFrame"))
	b.WriteByte('\n')
	b.WriteString(headerSource)
	b.WriteByte('\n')
	if opts.Samples > 1 {
		fmt.Fprintf(&b, "const PP_DEPTH_SAMPLES: i32 = %d;\n\n", opts.Samples)
		b.WriteString(depthMSAASource)
	} else {
		b.WriteString(depthSource)
	}
	b.WriteByte('\n')
	if opts.Options.Len() > 0 {
		b.WriteString(optionDeclarations(opts.Options, OptionLayout(opts.Options)))
	}
	return b.String()
}

// Assemble turns preset source into one compilation unit holding a fragment
// entry point per stage. Each authored stage function, declared as
// `fn <entry>()`, is renamed and called from a generated entry point of the
// same name that stores the interpolated inputs in the globals read by the
// intrinsics and returns the value passed to SetOutput.
//
// On failure Assemble returns "" and an error wrapping ErrEntryPointNotFound
// or ErrEntryPointSignature.
func Assemble(source string, stages []preset.Stage, opts HeaderOptions) (string, error) {
	decls := functionDecls(source)

	renames := make([]fnDecl, 0, len(stages))
	for _, st := range stages {
		d, ok := decls[st.EntryPoint]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrEntryPointNotFound, st.EntryPoint)
		}
		if !d.bare {
			return "", fmt.Errorf("%w: %q", ErrEntryPointSignature, st.EntryPoint)
		}
		renames = append(renames, d)
	}
	sort.Slice(renames, func(i, j int) bool { return renames[i].start < renames[j].start })

	var b strings.Builder
	b.WriteString(Header(opts))
	b.WriteString("\n// Preset source.\n\n")
	last := 0
	for _, d := range renames {
		b.WriteString(source[last:d.start])
		b.WriteString(stageBodyPrefix)
		b.WriteString(d.name)
		last = d.end
	}
	b.WriteString(source[last:])
	b.WriteString("\n\n// Stage entry points.\n")
	for _, st := range stages {
		writeEntryWrapper(&b, st.EntryPoint)
	}
	return b.String(), nil
}

func writeEntryWrapper(b *strings.Builder, entry string) {
	fmt.Fprintf(b, `
@fragment
fn %s(@builtin(position) frag_pos: vec4<f32>, @location(0) in_uv0: vec2<f32>, @location(1) in_uv1: vec4<f32>, @location(2) in_uv2: vec4<f32>) -> @location(0) vec4<f32> {
    fragment_pos = frag_pos;
    uv0 = in_uv0;
    uv1 = in_uv1;
    uv2 = in_uv2;
    ocol0 = vec4<f32>(0.0);
    %s%s();
    return ocol0;
}
`, entry, stageBodyPrefix, entry)
}

// fnDecl is the name of a function declaration in preset source.
type fnDecl struct {
	name       string
	start, end int
	// bare is set for `fn name() {`.
	bare bool
}

type token struct {
	tok    rune
	text   string
	offset int
}

// functionDecls returns the first declaration of every function in src.
// Comments are skipped, so commented-out code and identifiers that merely
// contain a name never match.
func functionDecls(src string) map[string]fnDecl {
	var s scanner.Scanner
	s.Init(strings.NewReader(blankComments(src)))
	s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanComments | scanner.SkipComments
	s.Error = func(*scanner.Scanner, string) {}

	var toks []token
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		toks = append(toks, token{tok: tok, text: s.TokenText(), offset: s.Position.Offset})
	}

	decls := make(map[string]fnDecl)
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].tok != scanner.Ident || toks[i].text != "fn" || toks[i+1].tok != scanner.Ident {
			continue
		}
		name := toks[i+1]
		if _, seen := decls[name.text]; seen {
			continue
		}
		decls[name.text] = fnDecl{
			name:  name.text,
			start: name.offset,
			end:   name.offset + len(name.text),
			bare:  punctAt(toks, i+2, '(') && punctAt(toks, i+3, ')') && punctAt(toks, i+4, '{'),
		}
	}
	return decls
}

func punctAt(toks []token, i int, r rune) bool {
	return i < len(toks) && toks[i].tok == r
}

// blankComments replaces the comments of src with spaces, keeping line
// breaks and byte offsets. Block comments nest as in WGSL, which
// text/scanner does not handle.
func blankComments(src string) string {
	out := []byte(src)
	depth := 0
	for i := 0; i < len(out); i++ {
		switch {
		case depth == 0 && out[i] == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			depth++
			out[i], out[i+1] = ' ', ' '
			i++
		case depth > 0 && out[i] == '*' && i+1 < len(out) && out[i+1] == '/':
			depth--
			out[i], out[i+1] = ' ', ' '
			i++
		case depth > 0 && out[i] != '\n':
			out[i] = ' '
		}
	}
	return string(out)
}
