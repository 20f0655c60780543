// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package raster

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// Buffer is a rectangular CPU pixel buffer produced by a Source.
//
// A Buffer has exactly one owner at a time. Workers create it, the page cache
// holds it while the page is pending, and the worker side releases it once
// the GPU texture exists or the page became stale.
type Buffer struct {
	width  int
	height int
	stride int
	format gputypes.TextureFormat
	data   []byte

	pool     *Pool
	released atomic.Bool
}

// NewBuffer creates an unpooled RGBA buffer with the given dimensions.
func NewBuffer(width, height int) *Buffer {
	b, _ := NewBufferFormat(width, height, gputypes.TextureFormatRGBA8Unorm)
	return b
}

// NewBufferFormat creates an unpooled buffer in the given pixel format.
// Only 8-bit four-channel formats are supported.
func NewBufferFormat(width, height int, format gputypes.TextureFormat) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: buffer size %dx%d", ErrUnsupported, width, height)
	}
	bpp, ok := BytesPerPixel(format)
	if !ok {
		return nil, fmt.Errorf("%w: pixel format %s", ErrUnsupported, format)
	}
	return &Buffer{
		width:  width,
		height: height,
		stride: width * bpp,
		format: format,
		data:   make([]byte, width*height*bpp),
	}, nil
}

// BytesPerPixel returns the pixel size of format, or false if buffers cannot
// hold that format.
func BytesPerPixel(format gputypes.TextureFormat) (int, bool) {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return 4, true
	default:
		return 0, false
	}
}

// Width returns the width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Buffer) Height() int { return b.height }

// Stride returns the number of bytes between the starts of two rows.
func (b *Buffer) Stride() int { return b.stride }

// Format returns the pixel format.
func (b *Buffer) Format() gputypes.TextureFormat { return b.format }

// Data returns the raw pixel bytes. The slice is invalid after Release.
func (b *Buffer) Data() []byte { return b.data }

// Size returns the number of bytes held by the buffer.
func (b *Buffer) Size() int { return len(b.data) }

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b.released.Load() }

// Pooled reports whether the buffer's memory returns to a Pool on Release.
func (b *Buffer) Pooled() bool { return b.pool != nil }

// Release gives the pixel memory back to the pool the buffer came from.
// Release is idempotent; the buffer must not be used afterwards.
func (b *Buffer) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	data := b.data
	b.data = nil
	if b.pool != nil {
		b.pool.put(data)
	}
}

// RGBA returns tightly packed RGBA bytes suitable for
// gpucontext.TextureCreator.NewTextureFromRGBA.
//
// RGBA buffers without row padding are returned as is. BGRA buffers are
// swizzled in place, so the buffer's format becomes RGBA afterwards.
func (b *Buffer) RGBA() ([]byte, error) {
	if b.released.Load() {
		return nil, fmt.Errorf("%w: buffer already released", ErrUnsupported)
	}
	switch b.format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	case gputypes.TextureFormatBGRA8Unorm:
		swizzleBR(b.data)
		b.format = gputypes.TextureFormatRGBA8Unorm
	case gputypes.TextureFormatBGRA8UnormSrgb:
		swizzleBR(b.data)
		b.format = gputypes.TextureFormatRGBA8UnormSrgb
	default:
		return nil, fmt.Errorf("%w: pixel format %s", ErrUnsupported, b.format)
	}

	rowBytes := b.width * 4
	if b.stride == rowBytes {
		return b.data[:rowBytes*b.height], nil
	}
	packed := make([]byte, rowBytes*b.height)
	for y := 0; y < b.height; y++ {
		copy(packed[y*rowBytes:(y+1)*rowBytes], b.data[y*b.stride:y*b.stride+rowBytes])
	}
	return packed, nil
}

func swizzleBR(data []byte) {
	for i := 0; i+3 < len(data); i += 4 {
		data[i], data[i+2] = data[i+2], data[i]
	}
}

// ToImage copies the buffer into a new image.RGBA.
func (b *Buffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	bgra := b.format == gputypes.TextureFormatBGRA8Unorm || b.format == gputypes.TextureFormatBGRA8UnormSrgb
	for y := 0; y < b.height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.width*4]
		copy(row, b.data[y*b.stride:])
		if bgra {
			swizzleBR(row)
		}
	}
	return img
}

// view exposes an RGBA buffer as an image.RGBA sharing its memory.
func (b *Buffer) view() *image.RGBA {
	return &image.RGBA{
		Pix:    b.data,
		Stride: b.stride,
		Rect:   image.Rect(0, 0, b.width, b.height),
	}
}

// FromImage converts img into a buffer taken from pool. A nil pool
// allocates an unpooled buffer.
func FromImage(img image.Image, pool *Pool) *Buffer {
	bounds := img.Bounds()
	var b *Buffer
	if pool != nil {
		b = pool.Get(bounds.Dx(), bounds.Dy())
	} else {
		b = NewBuffer(bounds.Dx(), bounds.Dy())
	}

	if rgba, ok := img.(*image.RGBA); ok {
		rowBytes := bounds.Dx() * 4
		for y := 0; y < bounds.Dy(); y++ {
			off := rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(b.data[y*b.stride:y*b.stride+rowBytes], rgba.Pix[off:off+rowBytes])
		}
		return b
	}

	draw.Draw(b.view(), b.view().Bounds(), img, bounds.Min, draw.Src)
	return b
}
