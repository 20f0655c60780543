// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"log/slog"

	"github.com/gogpu/docview/internal/logging"
	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/persist"
	"github.com/gogpu/docview/render"
)

// logger stores the active logger. Accessed atomically so that SetLogger
// can be called concurrently with logging from any goroutine.
var logger = logging.NewHolder()

// SetLogger configures the logger for docview and all its sub-packages.
// By default, docview produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by docview:
//   - [slog.LevelDebug]: per-page lifecycle (accepted, promoted, evicted)
//   - [slog.LevelInfo]: documents opened and closed
//   - [slog.LevelWarn]: rasterization failures, persistence failures
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	docview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logger.Set(l)
	l = logger.Get()

	pagecache.SetLogger(l)
	render.SetLogger(l)
	persist.SetLogger(l)
}

// Logger returns the current logger used by docview.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logger.Get()
}
