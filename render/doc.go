// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render schedules page rasterization off the UI goroutine.
//
// The UI submits page keys to a Queue while it draws a frame. A pool of
// Workers takes the most urgent request, rasterizes the page with the
// document's raster.Source and hands the raw buffer to the page cache. The
// UI never waits for a worker.
//
// # Key Principle
//
// Workers produce CPU buffers only. They never touch the GPU context; the
// cache holds their output as Pending until the render goroutine promotes it
// to a texture.
//
// # Core Types
//
//   - Queue: priority queue of page keys, at most one request per key
//   - Workers: goroutines draining the queue into a Sink
//   - Sink: where results go (implemented by *pagecache.Cache)
//   - Resolver: maps a DocID to its raster.Source
//
// # Ordering
//
// Requests are served highest priority first. Requests with equal priority
// are served in submission order. A key that is queued or being rasterized
// is not queued again.
//
// # Usage
//
//	queue := render.NewQueue()
//	workers := render.NewWorkers(queue, resolver, cache, 2)
//	workers.Start(ctx)
//	defer workers.Close()
//
//	if cache.Expect(key) {
//	    queue.Submit(key, priority)
//	}
//
// # Failures
//
// A source error or panic becomes a *raster.RasterizeError reported to the
// sink for that key. The worker goes on with the next request.
//
// # Shutdown
//
// Close the queue to wake idle workers, then Close the pool to wait for the
// page in progress. Buffers for documents closed in the meantime are
// discarded by the cache and released on the worker.
package render
