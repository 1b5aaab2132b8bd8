// Package preset holds the data model of post-processing presets: the ordered
// stage graph, the typed user options, and the loading of preset sources.
//
// A preset is a WGSL source file whose leading block comment carries a TOML
// configuration section:
//
//	/*
//	[configuration]
//	[[stage]]
//	entry_point = "blur_h"
//	output_scale = 0.5
//
//	[[stage]]
//	entry_point = "main"
//	inputs = [0]
//
//	[[option]]
//	name = "strength"
//	type = "float"
//	default = [0.75]
//	[/configuration]
//	*/
//
// A preset without stages has a single stage with entry point "main".
package preset

import (
	"errors"
	"fmt"
)

// MaxStageInputs is the number of previous-stage outputs one stage can read.
const MaxStageInputs = 4

// DefaultEntryPoint is the entry point of the implicit single stage.
const DefaultEntryPoint = "main"

// ErrInvalidStage is returned for a stage list that breaks the graph rules.
var ErrInvalidStage = errors.New("preset: invalid stage")

// Stage is one pass of the post-processing graph.
type Stage struct {
	// EntryPoint names the WGSL function implementing the pass.
	EntryPoint string

	// Inputs lists earlier stages whose outputs this pass samples,
	// in the order they are exposed as SamplePrev(0..3).
	Inputs []int

	// UseSourceResolution sizes the output from the source rectangle
	// instead of the destination rectangle.
	UseSourceResolution bool

	// OutputScale multiplies the base resolution; the result is truncated.
	OutputScale float64
}

// OutputSize returns the pixel size of the stage output for the given
// source and destination sizes.
func (s Stage) OutputSize(srcW, srcH, dstW, dstH int) (int, int) {
	w, h := dstW, dstH
	if s.UseSourceResolution {
		w, h = srcW, srcH
	}
	return int(float64(w) * s.OutputScale), int(float64(h) * s.OutputScale)
}

// DefaultStages returns the stage list of a preset that declares none.
func DefaultStages() []Stage {
	return []Stage{{EntryPoint: DefaultEntryPoint, OutputScale: 1}}
}

// ValidateStages checks that every stage has an entry point and a positive
// scale, and that inputs only reference earlier stages.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidStage)
	}
	seen := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.EntryPoint == "" {
			return fmt.Errorf("%w: stage %d has no entry point", ErrInvalidStage, i)
		}
		if prev, dup := seen[s.EntryPoint]; dup {
			return fmt.Errorf("%w: stages %d and %d share entry point %q", ErrInvalidStage, prev, i, s.EntryPoint)
		}
		seen[s.EntryPoint] = i
		if !(s.OutputScale > 0) {
			return fmt.Errorf("%w: stage %d (%s) output scale %v", ErrInvalidStage, i, s.EntryPoint, s.OutputScale)
		}
		if len(s.Inputs) > MaxStageInputs {
			return fmt.Errorf("%w: stage %d (%s) has %d inputs, max %d",
				ErrInvalidStage, i, s.EntryPoint, len(s.Inputs), MaxStageInputs)
		}
		for _, in := range s.Inputs {
			if in < 0 || in >= i {
				return fmt.Errorf("%w: stage %d (%s) reads stage %d", ErrInvalidStage, i, s.EntryPoint, in)
			}
		}
	}
	return nil
}
