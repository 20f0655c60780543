// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/docview/internal/logging"
	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/raster"
)

var logger = logging.NewHolder()

// SetLogger configures the package logger. Pass nil to disable logging.
func SetLogger(l *slog.Logger) { logger.Set(l) }

// Resolver maps an open document to its raster source. It returns false for
// documents that have been closed.
type Resolver interface {
	Source(doc pagecache.DocID) (raster.Source, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(doc pagecache.DocID) (raster.Source, bool)

// Source calls f(doc).
func (f ResolverFunc) Source(doc pagecache.DocID) (raster.Source, bool) { return f(doc) }

// Sink receives worker results. *pagecache.Cache implements Sink.
type Sink interface {
	// AcceptRaw takes ownership of buf, or returns false for a stale key.
	AcceptRaw(key pagecache.Key, buf *raster.Buffer) bool
	// ReportFailure records a per-page failure.
	ReportFailure(key pagecache.Key, err error)
	// DrainRaw hands back buffers that must be released on a worker.
	DrainRaw() []*raster.Buffer
	// RawReady is signalled when DrainRaw has buffers to hand back.
	RawReady() <-chan struct{}
}

// Workers is a pool of goroutines that rasterize queued pages.
//
// Each worker pulls the next request, rasterizes it with the document's
// source and hands the buffer to the sink. A page that fails, or a source
// that panics, is reported and the worker moves on. One more goroutine
// releases the buffers the sink hands back while the workers are idle.
//
// Thread safety: Workers is safe for concurrent use.
type Workers struct {
	queue    *Queue
	resolver Resolver
	sink     Sink
	workers  int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	rendered atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewWorkers creates a pool of n workers. If n is 0 or negative, one worker
// is used. The pool does nothing until Start.
func NewWorkers(queue *Queue, resolver Resolver, sink Sink, n int) *Workers {
	if n <= 0 {
		n = 1
	}
	return &Workers{
		queue:    queue,
		resolver: resolver,
		sink:     sink,
		workers:  n,
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled,
// Close is called, or the queue is closed. Start is a no-op if already
// running.
func (w *Workers) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(w.workers + 1)
	for i := range w.workers {
		go w.loop(ctx, i)
	}
	go w.reclaim(ctx)
}

// Close stops the workers and waits for them to finish the page they are
// rasterizing. Close is safe to call multiple times.
func (w *Workers) Close() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.releaseGarbage()
}

// Workers returns the number of worker goroutines.
func (w *Workers) Workers() int {
	return w.workers
}

// IsRunning returns true between Start and Close.
func (w *Workers) IsRunning() bool {
	return w.running.Load()
}

// loop is the main loop for each worker goroutine.
func (w *Workers) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	log := logger.Get().With("worker", id)
	for {
		key, err := w.queue.TakeNext(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				log.Warn("render: worker stopped", "err", err)
			}
			return
		}
		w.process(log, key)
		w.releaseGarbage()
	}
}

// reclaim releases buffers as soon as the sink signals them.
func (w *Workers) reclaim(ctx context.Context) {
	defer w.wg.Done()

	ready := w.sink.RawReady()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			w.releaseGarbage()
		}
	}
}

// process rasterizes one key and delivers the outcome.
func (w *Workers) process(log *slog.Logger, key pagecache.Key) {
	defer w.queue.Done(key)

	src, ok := w.resolver.Source(key.Doc)
	if !ok {
		w.dropped.Add(1)
		log.Debug("render: document closed, request dropped", "key", key.String())
		return
	}

	buf, err := rasterize(src, key)
	if err != nil {
		w.failed.Add(1)
		var rerr *raster.RasterizeError
		if !errors.As(err, &rerr) {
			err = &raster.RasterizeError{Page: key.Page, Zoom: key.Zoom, Err: err}
		}
		log.Debug("render: rasterize failed", "key", key.String(), "err", err)
		w.sink.ReportFailure(key, err)
		return
	}

	w.rendered.Add(1)
	if !w.sink.AcceptRaw(key, buf) {
		w.dropped.Add(1)
		buf.Release()
	}
}

// rasterize calls the source, turning a panic into ErrDecodeFailure.
func rasterize(src raster.Source, key pagecache.Key) (buf *raster.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: source panicked: %v", raster.ErrDecodeFailure, r)
		}
	}()

	buf, err = src.Rasterize(key.Page, key.Zoom)
	if err == nil && buf == nil {
		err = fmt.Errorf("%w: source returned no buffer", raster.ErrDecodeFailure)
	}
	return buf, err
}

// releaseGarbage frees raw buffers the cache no longer needs. Buffers are
// always released here, on a worker goroutine.
func (w *Workers) releaseGarbage() {
	for _, buf := range w.sink.DrainRaw() {
		buf.Release()
	}
}

// Stats reports worker activity.
type Stats struct {
	// Rendered counts successful rasterizations.
	Rendered uint64
	// Failed counts rasterization failures, including panics.
	Failed uint64
	// Dropped counts results discarded because the key went stale.
	Dropped uint64
}

// Stats returns a snapshot of the worker counters.
func (w *Workers) Stats() Stats {
	return Stats{
		Rendered: w.rendered.Load(),
		Failed:   w.failed.Load(),
		Dropped:  w.dropped.Load(),
	}
}
