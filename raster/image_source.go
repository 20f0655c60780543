// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package raster

import (
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG page images
	_ "image/png"  // register PNG page images
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP page images
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF page images
	_ "golang.org/x/image/webp" // register WebP page images
)

// imageExtensions lists the page image files OpenImageDir picks up.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

// ImageSource rasterizes documents whose pages are images at zoom 1.
// Pages are either held in memory or decoded from disk on every call.
//
// ImageSource is safe for concurrent use.
type ImageSource struct {
	pages  []image.Image
	paths  []string
	pool   *Pool
	scaler draw.Scaler
}

// NewImageSource creates a source over in-memory page images.
// A nil pool allocates fresh buffers for every page.
func NewImageSource(pool *Pool, pages ...image.Image) *ImageSource {
	return &ImageSource{
		pages:  pages,
		pool:   pool,
		scaler: draw.CatmullRom,
	}
}

// OpenImageDir creates a source over the image files in dir, ordered by
// file name. Images are decoded lazily, on each Rasterize call.
func OpenImageDir(dir string, pool *Pool) (*ImageSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("raster: open image dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if slices.Contains(imageExtensions, ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no page images in %s", ErrDecodeFailure, dir)
	}
	slices.Sort(paths)
	return &ImageSource{
		paths:  paths,
		pool:   pool,
		scaler: draw.CatmullRom,
	}, nil
}

// SetFastScaling switches to bilinear scaling, trading quality for speed.
func (s *ImageSource) SetFastScaling(fast bool) {
	if fast {
		s.scaler = draw.ApproxBiLinear
	} else {
		s.scaler = draw.CatmullRom
	}
}

// PageCount returns the number of pages.
func (s *ImageSource) PageCount() int {
	if s.paths != nil {
		return len(s.paths)
	}
	return len(s.pages)
}

// Rasterize renders page at zoom by scaling its image.
func (s *ImageSource) Rasterize(page int, zoom float32) (*Buffer, error) {
	if err := CheckPage(page, s.PageCount()); err != nil {
		return nil, err
	}
	src, err := s.page(page)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h, err := scaledSize(bounds.Dx(), bounds.Dy(), zoom)
	if err != nil {
		return nil, err
	}

	if w == bounds.Dx() && h == bounds.Dy() {
		return FromImage(src, s.pool), nil
	}

	var buf *Buffer
	if s.pool != nil {
		buf = s.pool.Get(w, h)
	} else {
		buf = NewBuffer(w, h)
	}
	dst := buf.view()
	s.scaler.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return buf, nil
}

func (s *ImageSource) page(i int) (image.Image, error) {
	if s.paths == nil {
		if s.pages[i] == nil {
			return nil, fmt.Errorf("%w: page %d has no image", ErrDecodeFailure, i)
		}
		return s.pages[i], nil
	}

	f, err := os.Open(s.paths[i])
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrDecodeFailure, i, err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrDecodeFailure, i, err)
	}
	return img, nil
}
