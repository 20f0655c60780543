// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package raster defines the page rasterization contract used by docview and
// the pixel buffers that travel from worker goroutines to the page cache.
//
// A Source turns (page, zoom) into a Buffer, synchronously. Rasterization is
// expensive (tens to hundreds of milliseconds), so it only ever runs on
// worker goroutines; see package render.
//
// Two sources are provided:
//   - ImageSource rasterizes pre-rendered page images, scaling them with
//     golang.org/x/image/draw.
//   - FitzSource rasterizes PDF, EPUB and XPS files through MuPDF
//     (github.com/gen2brain/go-fitz).
package raster

import (
	"errors"
	"fmt"
)

// Rasterization errors. Sources wrap one of these so callers can classify a
// failure with errors.Is.
var (
	// ErrPageOutOfRange is returned for a page index outside the document.
	ErrPageOutOfRange = errors.New("raster: page out of range")

	// ErrDecodeFailure is returned when page content cannot be decoded.
	ErrDecodeFailure = errors.New("raster: decode failure")

	// ErrUnsupported is returned for zoom levels, sizes or formats a source
	// cannot produce.
	ErrUnsupported = errors.New("raster: unsupported")
)

// Source produces pixel buffers for document pages.
//
// Implementations must be safe for concurrent use when more than one worker
// is configured.
type Source interface {
	// PageCount returns the number of pages in the document.
	PageCount() int

	// Rasterize renders page (0-based) at zoom (1 = 72 DPI).
	Rasterize(page int, zoom float32) (*Buffer, error)
}

// RasterizeError is the per-page failure marker reported to the UI when a
// page cannot be rasterized. It is not retried automatically.
type RasterizeError struct {
	Page int
	Zoom float32
	Err  error
}

func (e *RasterizeError) Error() string {
	return fmt.Sprintf("raster: page %d at zoom %g: %v", e.Page, e.Zoom, e.Err)
}

func (e *RasterizeError) Unwrap() error { return e.Err }

// CheckPage validates page against a page count.
func CheckPage(page, count int) error {
	if page < 0 || page >= count {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, count)
	}
	return nil
}

// maxDimension bounds a rasterized page side in pixels.
const maxDimension = 1 << 14

// scaledSize computes the pixel size of a w×h page at zoom.
func scaledSize(w, h int, zoom float32) (int, int, error) {
	if !(zoom > 0) || zoom > 64 {
		return 0, 0, fmt.Errorf("%w: zoom %g", ErrUnsupported, zoom)
	}
	sw := int(float32(w)*zoom + 0.5)
	sh := int(float32(h)*zoom + 0.5)
	if sw < 1 || sh < 1 || sw > maxDimension || sh > maxDimension {
		return 0, 0, fmt.Errorf("%w: %dx%d at zoom %g", ErrUnsupported, w, h, zoom)
	}
	return sw, sh, nil
}
