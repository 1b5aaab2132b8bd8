package gxfx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Enabled reports false, so callers skip
// attribute formatting and a disabled logger costs one atomic load.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used by gxfx and its sub-packages
// (encoder, preset, postfx, texconv). gxfx is silent until SetLogger is
// called; passing nil makes it silent again.
//
// Levels:
//   - [slog.LevelDebug]: generated program sizes, buffer layouts, target reallocation
//   - [slog.LevelInfo]: preset compiled, device adopted from a provider
//   - [slog.LevelWarn]: preset rejected and replaced by the default pass
//   - [slog.LevelError]: resource creation failures, generator defects
//
// Example:
//
//	gxfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger installed with SetLogger. It is safe for
// concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
