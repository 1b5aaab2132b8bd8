package preset

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/gxfx"
)

const (
	configBegin = "[configuration]"
	configEnd   = "[/configuration]"
)

// ErrConfiguration is returned for a malformed configuration section.
var ErrConfiguration = errors.New("preset: bad configuration")

type fileConfig struct {
	Stages  []stageConfig  `toml:"stage"`
	Options []optionConfig `toml:"option"`
}

type stageConfig struct {
	EntryPoint          string   `toml:"entry_point"`
	Inputs              []int    `toml:"inputs"`
	OutputScale         *float64 `toml:"output_scale"`
	UseSourceResolution bool     `toml:"use_source_resolution"`
}

type optionConfig struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	GUIName    string `toml:"gui_name"`
	Dependency string `toml:"dependent_option"`
	Default    any    `toml:"default"`
	Min        any    `toml:"min"`
	Max        any    `toml:"max"`
	Step       any    `toml:"step"`
}

// ExtractConfiguration returns the text between the [configuration] and
// [/configuration] markers, or "" when the source has no such section.
func ExtractConfiguration(source string) (string, error) {
	begin := strings.Index(source, configBegin)
	if begin < 0 {
		return "", nil
	}
	body := source[begin+len(configBegin):]
	end := strings.Index(body, configEnd)
	if end < 0 {
		return "", fmt.Errorf("%w: %s without %s", ErrConfiguration, configBegin, configEnd)
	}
	return body[:end], nil
}

// ParseConfiguration decodes the configuration section of a preset source.
// A source without stages yields DefaultStages.
func ParseConfiguration(source string) ([]Stage, *OptionSet, error) {
	text, err := ExtractConfiguration(source)
	if err != nil {
		return nil, nil, err
	}

	var fc fileConfig
	md, err := toml.Decode(text, &fc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		gxfx.Logger().Warn("preset: ignoring unknown configuration keys", slog.Any("keys", keys))
	}

	stages := make([]Stage, 0, len(fc.Stages))
	for _, sc := range fc.Stages {
		scale := 1.0
		if sc.OutputScale != nil {
			scale = *sc.OutputScale
		}
		stages = append(stages, Stage{
			EntryPoint:          sc.EntryPoint,
			Inputs:              sc.Inputs,
			UseSourceResolution: sc.UseSourceResolution,
			OutputScale:         scale,
		})
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if err := ValidateStages(stages); err != nil {
		return nil, nil, err
	}

	opts := make([]Option, 0, len(fc.Options))
	for _, oc := range fc.Options {
		o, err := oc.option()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, o)
	}
	set, err := NewOptionSet(opts...)
	if err != nil {
		return nil, nil, err
	}
	return stages, set, nil
}

func (oc optionConfig) option() (Option, error) {
	o := Option{Name: oc.Name, GUIName: oc.GUIName, Dependency: oc.Dependency}
	if o.GUIName == "" {
		o.GUIName = oc.Name
	}

	switch strings.ToLower(oc.Type) {
	case "bool":
		o.Type = OptionBool
		if oc.Default != nil {
			v, ok := oc.Default.(bool)
			if !ok {
				return o, fmt.Errorf("%w: option %q default %v is not a bool", ErrConfiguration, oc.Name, oc.Default)
			}
			o.Bool = v
		}
		return o, nil

	case "int", "integer":
		o.Type = OptionInt
		vals, err := numbers(oc.Name, "default", oc.Default)
		if err != nil {
			return o, err
		}
		o.Ints = toInts(vals)
		if o.MinInts, o.MaxInts, o.StepInts, err = intRange(oc, len(vals)); err != nil {
			return o, err
		}
		return o, nil

	case "float":
		o.Type = OptionFloat
		vals, err := numbers(oc.Name, "default", oc.Default)
		if err != nil {
			return o, err
		}
		o.Floats = toFloats(vals)
		if o.MinFloats, o.MaxFloats, o.StepFloats, err = floatRange(oc, len(vals)); err != nil {
			return o, err
		}
		return o, nil

	default:
		return o, fmt.Errorf("%w: option %q has type %q", ErrConfiguration, oc.Name, oc.Type)
	}
}

// numbers converts a TOML scalar or array of numbers into float64 values.
func numbers(option, key string, v any) ([]float64, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: option %q has no %s", ErrConfiguration, option, key)
	case int64:
		return []float64{float64(x)}, nil
	case float64:
		return []float64{x}, nil
	case []any:
		out := make([]float64, 0, len(x))
		for _, e := range x {
			vals, err := numbers(option, key, e)
			if err != nil || len(vals) != 1 {
				return nil, fmt.Errorf("%w: option %q %s element %v", ErrConfiguration, option, key, e)
			}
			out = append(out, vals[0])
		}
		if len(out) < 1 || len(out) > 4 {
			return nil, fmt.Errorf("%w: option %q %s has %d values", ErrConfiguration, option, key, len(out))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: option %q %s %v is not numeric", ErrConfiguration, option, key, v)
	}
}

// rangeValues decodes an optional min/max/step entry with the width of the value.
func rangeValues(oc optionConfig, key string, v any, width int) ([]float64, error) {
	if v == nil {
		return nil, nil
	}
	vals, err := numbers(oc.Name, key, v)
	if err != nil {
		return nil, err
	}
	if len(vals) != width {
		return nil, fmt.Errorf("%w: option %q %s has %d values, want %d", ErrConfiguration, oc.Name, key, len(vals), width)
	}
	return vals, nil
}

func intRange(oc optionConfig, width int) (minV, maxV, step []int32, err error) {
	var raw [3][]float64
	for i, kv := range []struct {
		key string
		v   any
	}{{"min", oc.Min}, {"max", oc.Max}, {"step", oc.Step}} {
		if raw[i], err = rangeValues(oc, kv.key, kv.v, width); err != nil {
			return nil, nil, nil, err
		}
	}
	return toInts(raw[0]), toInts(raw[1]), toInts(raw[2]), nil
}

func floatRange(oc optionConfig, width int) (minV, maxV, step []float32, err error) {
	var raw [3][]float64
	for i, kv := range []struct {
		key string
		v   any
	}{{"min", oc.Min}, {"max", oc.Max}, {"step", oc.Step}} {
		if raw[i], err = rangeValues(oc, kv.key, kv.v, width); err != nil {
			return nil, nil, nil, err
		}
	}
	return toFloats(raw[0]), toFloats(raw[1]), toFloats(raw[2]), nil
}

func toInts(v []float64) []int32 {
	if v == nil {
		return nil
	}
	out := make([]int32, len(v))
	for i, f := range v {
		out[i] = int32(f)
	}
	return out
}

func toFloats(v []float64) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
