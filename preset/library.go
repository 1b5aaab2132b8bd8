package preset

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Extension is the file extension of preset sources.
const Extension = ".wgsl"

// ErrPresetNotFound is returned when a library has no preset with the given name.
var ErrPresetNotFound = errors.New("preset: not found")

// DefaultSource is the built-in pass used when no preset is selected: a
// single stage that copies the source image.
//
//go:embed shaders/default.wgsl
var DefaultSource string

// Library resolves preset identifiers to sources in a file system.
// The identifier of a preset is its path without the extension.
type Library struct {
	fsys fs.FS
}

// NewLibrary returns a library reading from fsys. A nil fsys yields a
// library that only knows the default pass.
func NewLibrary(fsys fs.FS) *Library {
	return &Library{fsys: fsys}
}

// Source returns the text of the named preset. The empty name selects
// DefaultSource. Files may be UTF-8 or UTF-16 with a byte order mark.
func (l *Library) Source(name string) (string, error) {
	if name == "" {
		return DefaultSource, nil
	}
	if l == nil || l.fsys == nil {
		return "", fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}

	file := name + Extension
	if !fs.ValidPath(file) {
		return "", fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	f, err := l.fsys.Open(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrPresetNotFound, name)
		}
		return "", fmt.Errorf("open preset %q: %w", name, err)
	}
	defer f.Close()

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(f, dec))
	if err != nil {
		return "", fmt.Errorf("read preset %q: %w", name, err)
	}
	return string(data), nil
}

// List returns the identifiers of all presets in the library, sorted.
func (l *Library) List() ([]string, error) {
	if l == nil || l.fsys == nil {
		return nil, nil
	}
	var names []string
	err := fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != Extension {
			return nil
		}
		names = append(names, strings.TrimSuffix(p, Extension))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
