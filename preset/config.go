package preset

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gxfx"
)

// Config is the loaded state of one preset: its stage graph, its options and
// the dirty flag that schedules an option upload.
//
// Config is not safe for concurrent use; it belongs to the rendering thread.
type Config struct {
	lib *Library

	name    string
	stages  []Stage
	options *OptionSet
	dirty   bool
}

// NewConfig returns a Config resolving presets through lib. Until LoadShader
// is called it describes the default pass.
func NewConfig(lib *Library) *Config {
	set, _ := NewOptionSet()
	return &Config{
		lib:     lib,
		stages:  DefaultStages(),
		options: set,
	}
}

// Shader returns the identifier of the loaded preset ("" for the default pass).
func (c *Config) Shader() string { return c.name }

// Stages returns the stage graph of the loaded preset.
func (c *Config) Stages() []Stage { return c.stages }

// Options returns the options of the loaded preset.
func (c *Config) Options() *OptionSet { return c.options }

// HasOptions reports whether the loaded preset declares any option.
func (c *Config) HasOptions() bool { return c.options.Len() > 0 }

// IsDirty reports whether option values changed since the last upload.
func (c *Config) IsDirty() bool { return c.dirty }

// SetDirty sets the configuration dirty flag. Clearing it also clears the
// per-option flags.
func (c *Config) SetDirty(dirty bool) {
	c.dirty = dirty
	if !dirty {
		c.options.markClean()
	}
}

// LoadShader loads the named preset, replacing stages and options, and
// returns its raw source. On error the previous state is kept.
func (c *Config) LoadShader(name string) (string, error) {
	src, err := c.lib.Source(name)
	if err != nil {
		return "", err
	}
	stages, options, err := ParseConfiguration(src)
	if err != nil {
		return "", fmt.Errorf("preset %q: %w", name, err)
	}

	c.name = name
	c.stages = stages
	c.options = options
	c.dirty = true

	gxfx.Logger().Debug("preset: loaded",
		slog.String("preset", name),
		slog.Int("stages", len(stages)),
		slog.Int("options", options.Len()))
	return src, nil
}

// SetBool changes a bool option.
func (c *Config) SetBool(name string, v bool) error {
	changed, err := c.options.setBool(name, v)
	c.dirty = c.dirty || changed
	return err
}

// SetInts changes an int option. The width must match the declaration.
func (c *Config) SetInts(name string, v ...int32) error {
	changed, err := c.options.setInts(name, v)
	c.dirty = c.dirty || changed
	return err
}

// SetFloats changes a float option. The width must match the declaration.
func (c *Config) SetFloats(name string, v ...float32) error {
	changed, err := c.options.setFloats(name, v)
	c.dirty = c.dirty || changed
	return err
}
