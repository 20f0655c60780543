// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package raster

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// pointsPerInch is the resolution of zoom level 1.
const pointsPerInch = 72

// FitzSource rasterizes documents through MuPDF.
//
// go-fitz serializes calls on one document, so several workers sharing a
// FitzSource take turns.
type FitzSource struct {
	doc   *fitz.Document
	path  string
	pages int
	pool  *Pool
}

// OpenFitz opens a PDF, EPUB, XPS or CBZ document.
func OpenFitz(path string, pool *Pool) (*FitzSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailure, path, err)
	}
	return &FitzSource{
		doc:   doc,
		path:  path,
		pages: doc.NumPage(),
		pool:  pool,
	}, nil
}

// Path returns the document path.
func (s *FitzSource) Path() string { return s.path }

// PageCount returns the number of pages.
func (s *FitzSource) PageCount() int { return s.pages }

// Rasterize renders page at zoom × 72 DPI.
func (s *FitzSource) Rasterize(page int, zoom float32) (*Buffer, error) {
	if err := CheckPage(page, s.pages); err != nil {
		return nil, err
	}
	bounds, err := s.doc.Bound(page)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrDecodeFailure, page, err)
	}
	if _, _, err := scaledSize(bounds.Dx(), bounds.Dy(), zoom); err != nil {
		return nil, err
	}

	img, err := s.doc.ImageDPI(page, float64(zoom)*pointsPerInch)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrDecodeFailure, page, err)
	}
	return FromImage(img, s.pool), nil
}

// Close releases the MuPDF document.
func (s *FitzSource) Close() error {
	return s.doc.Close()
}
