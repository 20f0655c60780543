// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package logging holds the silent slog handler shared by docview and its
// sub-packages, and a small helper for per-package logger storage.
package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Nop creates a logger that silently discards all output.
func Nop() *slog.Logger { return slog.New(nopHandler{}) }

// IsNop reports whether l discards everything.
func IsNop(l *slog.Logger) bool {
	_, ok := l.Handler().(nopHandler)
	return ok
}

// Holder stores a logger that can be swapped concurrently with use.
// The zero value is not ready; use NewHolder.
type Holder struct {
	ptr atomic.Pointer[slog.Logger]
}

// NewHolder returns a Holder initialized with a silent logger.
func NewHolder() *Holder {
	h := &Holder{}
	h.ptr.Store(Nop())
	return h
}

// Set stores l. Passing nil restores the silent logger.
func (h *Holder) Set(l *slog.Logger) {
	if l == nil {
		l = Nop()
	}
	h.ptr.Store(l)
}

// Get returns the current logger. It never returns nil.
func (h *Holder) Get() *slog.Logger {
	return h.ptr.Load()
}
