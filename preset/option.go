package preset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownOption is returned when setting an option the preset does not declare.
	ErrUnknownOption = errors.New("preset: unknown option")

	// ErrOptionType is returned for a value of the wrong type or width.
	ErrOptionType = errors.New("preset: option type mismatch")
)

// OptionType is the value type of an option.
type OptionType uint8

const (
	// OptionBool is a toggle, stored as a 32-bit integer on the GPU.
	OptionBool OptionType = iota
	// OptionInt is a vector of one to four 32-bit integers.
	OptionInt
	// OptionFloat is a vector of one to four 32-bit floats.
	OptionFloat
)

func (t OptionType) String() string {
	switch t {
	case OptionBool:
		return "bool"
	case OptionInt:
		return "int"
	case OptionFloat:
		return "float"
	default:
		return fmt.Sprintf("OptionType(%d)", uint8(t))
	}
}

// Option is a user-configurable value of a preset.
type Option struct {
	Name string
	Type OptionType

	// GUIName is the label shown to the user.
	GUIName string
	// Dependency names a bool option that must be enabled for this one to apply.
	Dependency string

	Bool   bool
	Ints   []int32
	Floats []float32

	// Range metadata for int and float options, same width as the value.
	MinInts, MaxInts, StepInts       []int32
	MinFloats, MaxFloats, StepFloats []float32

	dirty bool
}

// Components returns the number of scalar components of the value.
func (o *Option) Components() int {
	switch o.Type {
	case OptionInt:
		return len(o.Ints)
	case OptionFloat:
		return len(o.Floats)
	default:
		return 1
	}
}

// Dirty reports whether the value changed since the last upload.
func (o *Option) Dirty() bool { return o.dirty }

// OptionSet is an ordered collection of options keyed by name. Iteration
// order is declaration order and fixes the GPU buffer layout.
type OptionSet struct {
	order  []*Option
	byName map[string]*Option
}

// NewOptionSet builds a set from options in declaration order.
func NewOptionSet(opts ...Option) (*OptionSet, error) {
	s := &OptionSet{byName: make(map[string]*Option, len(opts))}
	for i := range opts {
		o := opts[i]
		o.Ints = append([]int32(nil), o.Ints...)
		o.Floats = append([]float32(nil), o.Floats...)
		if !isIdentifier(o.Name) {
			return nil, fmt.Errorf("preset: option %d has invalid name %q", i, o.Name)
		}
		if _, dup := s.byName[o.Name]; dup {
			return nil, fmt.Errorf("preset: duplicate option %q", o.Name)
		}
		if n := o.Components(); n < 1 || n > 4 {
			return nil, fmt.Errorf("%w: %q has %d components", ErrOptionType, o.Name, n)
		}
		s.order = append(s.order, &o)
		s.byName[o.Name] = &o
	}
	return s, nil
}

// Len returns the number of options.
func (s *OptionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// All returns the options in declaration order. The returned options are
// owned by the set.
func (s *OptionSet) All() []*Option {
	if s == nil {
		return nil
	}
	return s.order
}

// Lookup returns the option with the given name.
func (s *OptionSet) Lookup(name string) (*Option, bool) {
	if s == nil {
		return nil, false
	}
	o, ok := s.byName[name]
	return o, ok
}

func (s *OptionSet) lookupType(name string, t OptionType) (*Option, error) {
	o, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	if o.Type != t {
		return nil, fmt.Errorf("%w: %q is %v, not %v", ErrOptionType, name, o.Type, t)
	}
	return o, nil
}

func (s *OptionSet) setBool(name string, v bool) (bool, error) {
	o, err := s.lookupType(name, OptionBool)
	if err != nil {
		return false, err
	}
	if o.Bool == v {
		return false, nil
	}
	o.Bool = v
	o.dirty = true
	return true, nil
}

func (s *OptionSet) setInts(name string, v []int32) (bool, error) {
	o, err := s.lookupType(name, OptionInt)
	if err != nil {
		return false, err
	}
	if len(v) != len(o.Ints) {
		return false, fmt.Errorf("%w: %q takes %d values, got %d", ErrOptionType, name, len(o.Ints), len(v))
	}
	changed := false
	for i := range v {
		if o.Ints[i] != v[i] {
			o.Ints[i] = v[i]
			changed = true
		}
	}
	o.dirty = o.dirty || changed
	return changed, nil
}

func (s *OptionSet) setFloats(name string, v []float32) (bool, error) {
	o, err := s.lookupType(name, OptionFloat)
	if err != nil {
		return false, err
	}
	if len(v) != len(o.Floats) {
		return false, fmt.Errorf("%w: %q takes %d values, got %d", ErrOptionType, name, len(o.Floats), len(v))
	}
	changed := false
	for i := range v {
		if o.Floats[i] != v[i] {
			o.Floats[i] = v[i]
			changed = true
		}
	}
	o.dirty = o.dirty || changed
	return changed, nil
}

func (s *OptionSet) markClean() {
	for _, o := range s.All() {
		o.dirty = false
	}
}

// isIdentifier reports whether name can be spliced into shader identifiers.
func isIdentifier(name string) bool {
	if name == "" || name == "_" || strings.HasPrefix(name, "__") {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
