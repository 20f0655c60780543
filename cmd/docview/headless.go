// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"image"

	"github.com/gogpu/gpucontext"
	"golang.org/x/image/draw"
)

// headlessTexture is a CPU-side stand-in for a GPU texture.
type headlessTexture struct {
	img *image.RGBA
}

func (t *headlessTexture) Width() int  { return t.img.Rect.Dx() }
func (t *headlessTexture) Height() int { return t.img.Rect.Dy() }

// Destroy drops the pixels.
func (t *headlessTexture) Destroy() { t.img = &image.RGBA{} }

// headlessCreator implements gpucontext.TextureCreator in memory.
type headlessCreator struct {
	created int
}

func (c *headlessCreator) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	if width <= 0 || height <= 0 || len(data) < width*height*4 {
		return nil, errors.New("headless: invalid texture data")
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data)
	c.created++
	return &headlessTexture{img: img}, nil
}

// headlessDrawer implements gpucontext.TextureDrawer onto an image.
type headlessDrawer struct {
	img     *image.RGBA
	creator headlessCreator
}

func newHeadlessDrawer(width, height int) *headlessDrawer {
	return &headlessDrawer{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (d *headlessDrawer) DrawTexture(tex gpucontext.Texture, x, y float32) error {
	t, ok := tex.(*headlessTexture)
	if !ok {
		return errors.New("headless: foreign texture")
	}
	dp := image.Pt(int(x), int(y))
	draw.Copy(d.img, dp, t.img, t.img.Bounds(), draw.Over, nil)
	return nil
}

func (d *headlessDrawer) TextureCreator() gpucontext.TextureCreator { return &d.creator }
