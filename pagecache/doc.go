// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package pagecache holds rendered document pages between the worker
// goroutines that rasterize them and the render goroutine that draws them.
//
// Every page passes through two ownership domains:
//
//	worker: Source.Rasterize -> raster.Buffer -> AcceptRaw   (Pending)
//	render: Lookup -> Promote -> gpucontext.Texture          (Ready)
//
// GPU textures may only be created and destroyed on the render goroutine,
// which owns the GPU context. Raw buffers are released on worker goroutines.
// The cache never releases a resource itself on the wrong side: it moves it
// to a deferred release queue under its lock, and the owning side drains that
// queue (DrainGPU on the render goroutine, DrainRaw on a worker).
//
// # Thread Safety
//
// Cache is safe for concurrent use. The key→entry map is guarded by a single
// mutex; buffers and textures change owner only while it is held.
package pagecache
