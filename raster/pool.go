// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package raster

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Pool recycles pixel memory between rasterizations of equally sized pages.
// Buffers taken from a Pool return their memory through Buffer.Release.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	sizes map[int]*sync.Pool

	allocated atomic.Uint64
	reused    atomic.Uint64
	returned  atomic.Uint64
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{sizes: make(map[int]*sync.Pool)}
}

// Get returns an RGBA buffer of the given size. Reused memory is not
// cleared; sources overwrite every pixel.
func (p *Pool) Get(width, height int) *Buffer {
	size := width * height * 4
	data := p.take(size)
	return &Buffer{
		width:  width,
		height: height,
		stride: width * 4,
		format: gputypes.TextureFormatRGBA8Unorm,
		data:   data,
		pool:   p,
	}
}

func (p *Pool) take(size int) []byte {
	p.mu.Lock()
	sp := p.sizes[size]
	p.mu.Unlock()
	if sp != nil {
		if v, ok := sp.Get().(*[]byte); ok && v != nil {
			p.reused.Add(1)
			return *v
		}
	}
	p.allocated.Add(1)
	return make([]byte, size)
}

func (p *Pool) put(data []byte) {
	if len(data) == 0 {
		return
	}
	p.mu.Lock()
	sp := p.sizes[len(data)]
	if sp == nil {
		sp = &sync.Pool{}
		p.sizes[len(data)] = sp
	}
	p.mu.Unlock()
	p.returned.Add(1)
	sp.Put(&data)
}

// PoolStats reports pool activity.
type PoolStats struct {
	Allocated uint64
	Reused    uint64
	Returned  uint64
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Returned:  p.returned.Load(),
	}
}
