// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"log/slog"
	"time"

	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/persist"
)

// Option configures a Viewer during creation.
// Use functional options to customize Viewer behavior.
//
// Example:
//
//	// Annotations saved under cfg.DataDir
//	v, err := docview.New(cfg)
//
//	// In-memory annotations (dependency injection)
//	v, err := docview.New(cfg, docview.WithPersister(persist.NewMemoryStore()))
type Option func(*options)

// options holds optional configuration for Viewer creation.
type options struct {
	persister persist.Persister
	clock     func() int64
	now       func() time.Time
	logger    *slog.Logger
	onFailure func(pagecache.Key, error)
}

// defaultOptions returns the default viewer options.
func defaultOptions() options {
	return options{
		persister: nil, // Will be a FileStore under Config.DataDir if nil
		now:       time.Now,
	}
}

// WithPersister sets where annotations are saved.
func WithPersister(p persist.Persister) Option {
	return func(o *options) {
		o.persister = p
	}
}

// WithClock replaces the page cache access clock. The clock must be
// monotonically non-decreasing.
func WithClock(clock func() int64) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithTimeSource replaces the wall clock used for annotation timestamps.
func WithTimeSource(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger configures logging for docview and its sub-packages, as
// SetLogger does. The logger is process-wide.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithFailureHandler registers a function called when a page fails to
// rasterize. It runs on a worker goroutine and must not block.
func WithFailureHandler(fn func(key pagecache.Key, err error)) Option {
	return func(o *options) {
		o.onFailure = fn
	}
}
