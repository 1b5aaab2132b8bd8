package preset

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
	"unicode/utf16"
)

const bloomSource = `/*
[configuration]

[[stage]]
entry_point = "bright"
output_scale = 0.5

[[stage]]
entry_point = "blur"
inputs = [0]
output_scale = 0.25
use_source_resolution = true

[[stage]]
entry_point = "main"
inputs = [0, 1]

[[option]]
name = "enabled"
type = "bool"
default = true

[[option]]
name = "tint"
type = "float"
gui_name = "Tint"
default = [1.0, 0.9, 0.8]
min = [0.0, 0.0, 0.0]
max = [2.0, 2.0, 2.0]
step = [0.1, 0.1, 0.1]

[[option]]
name = "radius"
type = "int"
default = 3
dependent_option = "enabled"

[/configuration]
*/

fn bright() { SetOutput(Sample()); }
fn blur() { SetOutput(SamplePrev(0)); }
fn main() { SetOutput(SamplePrev(1)); }
`

func TestParseConfiguration(t *testing.T) {
	stages, opts, err := ParseConfiguration(bloomSource)
	if err != nil {
		t.Fatalf("ParseConfiguration: %v", err)
	}

	wantStages := []Stage{
		{EntryPoint: "bright", OutputScale: 0.5},
		{EntryPoint: "blur", Inputs: []int{0}, OutputScale: 0.25, UseSourceResolution: true},
		{EntryPoint: "main", Inputs: []int{0, 1}, OutputScale: 1},
	}
	if !reflect.DeepEqual(stages, wantStages) {
		t.Errorf("stages = %+v\nwant %+v", stages, wantStages)
	}

	if opts.Len() != 3 {
		t.Fatalf("got %d options, want 3", opts.Len())
	}
	var names []string
	for _, o := range opts.All() {
		names = append(names, o.Name)
	}
	if want := []string{"enabled", "tint", "radius"}; !reflect.DeepEqual(names, want) {
		t.Errorf("option order = %v, want %v", names, want)
	}

	enabled, _ := opts.Lookup("enabled")
	if enabled.Type != OptionBool || !enabled.Bool || enabled.Components() != 1 {
		t.Errorf("enabled = %+v", enabled)
	}
	tint, _ := opts.Lookup("tint")
	if tint.Type != OptionFloat || tint.Components() != 3 || tint.GUIName != "Tint" {
		t.Errorf("tint = %+v", tint)
	}
	if !reflect.DeepEqual(tint.MaxFloats, []float32{2, 2, 2}) {
		t.Errorf("tint max = %v", tint.MaxFloats)
	}
	radius, _ := opts.Lookup("radius")
	if radius.Type != OptionInt || !reflect.DeepEqual(radius.Ints, []int32{3}) || radius.Dependency != "enabled" {
		t.Errorf("radius = %+v", radius)
	}
}

func TestParseConfigurationDefaults(t *testing.T) {
	stages, opts, err := ParseConfiguration("fn main() { SetOutput(Sample()); }")
	if err != nil {
		t.Fatalf("ParseConfiguration: %v", err)
	}
	if !reflect.DeepEqual(stages, DefaultStages()) {
		t.Errorf("stages = %+v, want default", stages)
	}
	if opts.Len() != 0 {
		t.Errorf("got %d options, want 0", opts.Len())
	}
}

func TestParseConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unterminated", "/*[configuration]\n[[stage]]\nentry_point = \"main\"\n*/", ErrConfiguration},
		{"bad toml", "/*[configuration]\n[[stage]\n[/configuration]*/", ErrConfiguration},
		{"forward input", "/*[configuration]\n[[stage]]\nentry_point = \"a\"\ninputs = [1]\n[[stage]]\nentry_point = \"b\"\n[/configuration]*/", ErrInvalidStage},
		{"zero scale", "/*[configuration]\n[[stage]]\nentry_point = \"a\"\noutput_scale = 0.0\n[/configuration]*/", ErrInvalidStage},
		{"unknown type", "/*[configuration]\n[[option]]\nname = \"x\"\ntype = \"string\"\n[/configuration]*/", ErrConfiguration},
		{"wide vector", "/*[configuration]\n[[option]]\nname = \"x\"\ntype = \"float\"\ndefault = [1.0, 2.0, 3.0, 4.0, 5.0]\n[/configuration]*/", ErrConfiguration},
		{"range width", "/*[configuration]\n[[option]]\nname = \"x\"\ntype = \"int\"\ndefault = [1, 2]\nmin = [0]\n[/configuration]*/", ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseConfiguration(tt.src)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateStages(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
		ok     bool
	}{
		{"single", DefaultStages(), true},
		{"empty", nil, false},
		{"self input", []Stage{{EntryPoint: "a", OutputScale: 1, Inputs: []int{0}}}, false},
		{"duplicate entry", []Stage{{EntryPoint: "a", OutputScale: 1}, {EntryPoint: "a", OutputScale: 1}}, false},
		{"too many inputs", []Stage{
			{EntryPoint: "a", OutputScale: 1}, {EntryPoint: "b", OutputScale: 1},
			{EntryPoint: "c", OutputScale: 1, Inputs: []int{0, 1, 0, 1, 0}},
		}, false},
		{"chain", []Stage{{EntryPoint: "a", OutputScale: 1}, {EntryPoint: "b", OutputScale: 2, Inputs: []int{0}}}, true},
	}
	for _, tt := range tests {
		err := ValidateStages(tt.stages)
		if (err == nil) != tt.ok {
			t.Errorf("%s: ValidateStages error = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestStageOutputSize(t *testing.T) {
	tests := []struct {
		stage Stage
		w, h  int
	}{
		{Stage{OutputScale: 1}, 1280, 720},
		{Stage{OutputScale: 0.5}, 640, 360},
		{Stage{OutputScale: 0.75}, 960, 540},
		{Stage{OutputScale: 1, UseSourceResolution: true}, 640, 528},
		{Stage{OutputScale: 0.25, UseSourceResolution: true}, 160, 132},
	}
	for _, tt := range tests {
		w, h := tt.stage.OutputSize(640, 528, 1280, 720)
		if w != tt.w || h != tt.h {
			t.Errorf("%+v: OutputSize = %dx%d, want %dx%d", tt.stage, w, h, tt.w, tt.h)
		}
	}
}

func utf16WithBOM(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := []byte{0xFF, 0xFE}
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

func TestLibrary(t *testing.T) {
	fsys := fstest.MapFS{
		"bloom.wgsl":        {Data: []byte(bloomSource)},
		"crt/scanline.wgsl": {Data: append([]byte{0xEF, 0xBB, 0xBF}, "fn main() {}"...)},
		"wide.wgsl":         {Data: utf16WithBOM("fn main() { SetOutput(Sample()); }")},
		"readme.txt":        {Data: []byte("not a preset")},
	}
	lib := NewLibrary(fsys)

	names, err := lib.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"bloom", "crt/scanline", "wide"}; !reflect.DeepEqual(names, want) {
		t.Errorf("List = %v, want %v", names, want)
	}

	src, err := lib.Source("crt/scanline")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if src != "fn main() {}" {
		t.Errorf("UTF-8 BOM not stripped: %q", src)
	}

	src, err = lib.Source("wide")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if src != "fn main() { SetOutput(Sample()); }" {
		t.Errorf("UTF-16 source decoded as %q", src)
	}

	if src, _ := lib.Source(""); src != DefaultSource {
		t.Error("empty name did not select the default source")
	}
	if _, err := lib.Source("missing"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("Source(missing) error = %v, want ErrPresetNotFound", err)
	}
	if _, err := NewLibrary(nil).Source("bloom"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("nil library error = %v, want ErrPresetNotFound", err)
	}
}

func TestDefaultSourceParses(t *testing.T) {
	stages, opts, err := ParseConfiguration(DefaultSource)
	if err != nil {
		t.Fatalf("default source: %v", err)
	}
	if len(stages) != 1 || stages[0].EntryPoint != DefaultEntryPoint {
		t.Errorf("default stages = %+v", stages)
	}
	if opts.Len() != 0 {
		t.Errorf("default source declares %d options", opts.Len())
	}
	if !strings.Contains(DefaultSource, "fn main()") {
		t.Error("default source has no main function")
	}
}

func TestConfigLoadAndDirty(t *testing.T) {
	cfg := NewConfig(NewLibrary(fstest.MapFS{"bloom.wgsl": {Data: []byte(bloomSource)}}))
	if cfg.Shader() != "" || len(cfg.Stages()) != 1 || cfg.HasOptions() {
		t.Fatalf("fresh config = %q %+v", cfg.Shader(), cfg.Stages())
	}

	src, err := cfg.LoadShader("bloom")
	if err != nil {
		t.Fatalf("LoadShader: %v", err)
	}
	if src != bloomSource {
		t.Error("LoadShader did not return the raw source")
	}
	if cfg.Shader() != "bloom" || len(cfg.Stages()) != 3 || !cfg.HasOptions() {
		t.Fatalf("loaded config = %q stages=%d options=%v", cfg.Shader(), len(cfg.Stages()), cfg.HasOptions())
	}
	if !cfg.IsDirty() {
		t.Error("freshly loaded options are not dirty")
	}

	cfg.SetDirty(false)
	if err := cfg.SetFloats("tint", 1, 0.9, 0.8); err != nil {
		t.Fatalf("SetFloats: %v", err)
	}
	if cfg.IsDirty() {
		t.Error("setting an unchanged value marked the config dirty")
	}

	if err := cfg.SetFloats("tint", 0.5, 0.5, 0.5); err != nil {
		t.Fatalf("SetFloats: %v", err)
	}
	tint, _ := cfg.Options().Lookup("tint")
	if !cfg.IsDirty() || !tint.Dirty() {
		t.Error("changing a value did not mark config and option dirty")
	}
	cfg.SetDirty(false)
	if tint.Dirty() {
		t.Error("SetDirty(false) left the option dirty")
	}

	if err := cfg.SetInts("tint", 1, 2, 3); !errors.Is(err, ErrOptionType) {
		t.Errorf("SetInts on float option error = %v", err)
	}
	if err := cfg.SetFloats("tint", 1); !errors.Is(err, ErrOptionType) {
		t.Errorf("SetFloats with wrong width error = %v", err)
	}
	if err := cfg.SetBool("missing", true); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("SetBool on missing option error = %v", err)
	}
	if err := cfg.SetBool("enabled", false); err != nil || !cfg.IsDirty() {
		t.Errorf("SetBool: err=%v dirty=%v", err, cfg.IsDirty())
	}

	if _, err := cfg.LoadShader("missing"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("LoadShader(missing) error = %v", err)
	}
	if cfg.Shader() != "bloom" {
		t.Error("failed load replaced the loaded preset")
	}
}

func TestSettings(t *testing.T) {
	var s Settings
	if s.PostProcessingShader() != "" || s.SampleCount() != 1 {
		t.Errorf("zero Settings = %q/%d", s.PostProcessingShader(), s.SampleCount())
	}

	s2 := NewSettings("bloom", 4)
	if s2.PostProcessingShader() != "bloom" || s2.SampleCount() != 4 {
		t.Errorf("NewSettings = %q/%d", s2.PostProcessingShader(), s2.SampleCount())
	}
	s2.SetSampleCount(0)
	s2.SetPostProcessingShader("")
	if s2.PostProcessingShader() != "" || s2.SampleCount() != 1 {
		t.Errorf("after reset = %q/%d", s2.PostProcessingShader(), s2.SampleCount())
	}
}

func TestNewOptionSetNames(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"strength", true},
		{"_private", true},
		{"radius2", true},
		{"", false},
		{"_", false},
		{"__reserved", false},
		{"2fast", false},
		{"with space", false},
		{"dash-name", false},
	}
	for _, tt := range tests {
		_, err := NewOptionSet(Option{Name: tt.name, Type: OptionBool})
		if (err == nil) != tt.ok {
			t.Errorf("NewOptionSet(%q) error = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}

	if _, err := NewOptionSet(Option{Name: "a", Type: OptionBool}, Option{Name: "a", Type: OptionBool}); err == nil {
		t.Error("duplicate option names accepted")
	}
	if _, err := NewOptionSet(Option{Name: "v", Type: OptionFloat}); !errors.Is(err, ErrOptionType) {
		t.Errorf("float option without values: error = %v, want ErrOptionType", err)
	}
}
