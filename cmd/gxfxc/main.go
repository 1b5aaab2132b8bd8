// Command gxfxc prints and checks the WGSL programs built by gxfx.
//
// Usage:
//
//	gxfxc [options]
//
// Examples:
//
//	gxfxc -format RGB565              # Print the RGB565 encoder program
//	gxfxc -format all -check          # Validate every encoder program
//	gxfxc -preset shaders/crt.wgsl    # Print an assembled preset
//	gxfxc -list shaders               # List the presets in a directory
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gxfx"
	"github.com/gogpu/gxfx/encoder"
	"github.com/gogpu/gxfx/internal/gpu"
	"github.com/gogpu/gxfx/postfx"
	"github.com/gogpu/gxfx/preset"
)

var (
	format  = flag.String("format", "", "encoder format name, or \"all\"")
	presetF = flag.String("preset", "", "post-processing preset file")
	samples = flag.Int("samples", 1, "depth sample count for -preset")
	list    = flag.String("list", "", "list the presets under a directory")
	check   = flag.Bool("check", false, "compile the program and print nothing on success")
	output  = flag.String("o", "", "output file (default: stdout)")
	verbose = flag.Bool("v", false, "log debug output to stderr")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		gxfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	var err error
	switch {
	case *list != "":
		err = listPresets(os.Stdout, *list)
	case *format != "":
		err = run(encoderPrograms(*format))
	case *presetF != "":
		err = run(presetProgram(*presetF, *samples))
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "gxfxc: %v\n", err)
		os.Exit(1)
	}
}

// program is one compilation unit with the entry points it must declare.
type program struct {
	name    string
	source  string
	entries []string
}

func run(progs []program, err error) error {
	if err != nil {
		return err
	}
	if *check {
		var c gpu.NagaCompiler
		failed := 0
		for _, p := range progs {
			if _, err := c.Compile(p.name, p.source, p.entries...); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p.name, err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d programs failed", failed, len(progs))
		}
		return nil
	}

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	for _, p := range progs {
		if len(progs) > 1 {
			fmt.Fprintf(w, "// ---- %s ----\n", p.name)
		}
		if _, err := io.WriteString(w, p.source); err != nil {
			return err
		}
	}
	return nil
}

func encoderPrograms(name string) ([]program, error) {
	var formats []encoder.Format
	if strings.EqualFold(name, "all") {
		formats = encoder.Formats()
	} else {
		f, err := encoder.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = []encoder.Format{f}
	}

	progs := make([]program, 0, len(formats))
	for _, f := range formats {
		src, err := encoder.Generate(f)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", f, err)
		}
		progs = append(progs, program{
			name:    f.String(),
			source:  src,
			entries: []string{encoder.VertexEntryPoint, encoder.FragmentEntryPoint},
		})
	}
	return progs, nil
}

func presetProgram(file string, samples int) ([]program, error) {
	name := strings.TrimSuffix(filepath.Base(file), preset.Extension)
	lib := preset.NewLibrary(os.DirFS(filepath.Dir(file)))
	src, err := lib.Source(name)
	if err != nil {
		return nil, err
	}
	stages, opts, err := preset.ParseConfiguration(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out, err := postfx.Assemble(src, stages, postfx.HeaderOptions{Samples: samples, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	entries := make([]string, len(stages))
	for i, s := range stages {
		entries[i] = s.EntryPoint
	}
	return []program{{name: name, source: out, entries: entries}}, nil
}

func listPresets(w io.Writer, dir string) error {
	names, err := preset.NewLibrary(os.DirFS(dir)).List()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: gxfxc [options]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nFormats:\n ")
	for _, f := range encoder.Formats() {
		fmt.Fprintf(os.Stderr, " %v", f)
	}
	fmt.Fprintln(os.Stderr)
}
