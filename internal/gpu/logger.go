package gpu

import (
	"log/slog"

	"github.com/gogpu/gxfx"
)

// slogger returns the module logger.
// All logging in internal/gpu goes through this function.
func slogger() *slog.Logger { return gxfx.Logger() }
