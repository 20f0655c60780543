// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package annotation

import "slices"

// AreSame reports whether a and b have the same content. Ids and timestamps
// are ignored, so a bookmark or highlight synced in from another copy of the
// document compares equal to the local one. Presentation attributes of
// bookmarks (color, font) are ignored as well.
//
// Bodies of different kinds are never the same.
func AreSame(a, b Annotation) bool {
	switch x := a.Body.(type) {
	case *Mark:
		y, ok := b.Body.(*Mark)
		return ok && *x == *y
	case *BookMark:
		y, ok := b.Body.(*BookMark)
		return ok && x.Description == y.Description &&
			x.YOffset == y.YOffset && rectPtrEqual(x.Rect, y.Rect)
	case *Highlight:
		y, ok := b.Body.(*Highlight)
		return ok && x.Type == y.Type && x.Begin == y.Begin && x.End == y.End &&
			x.Description == y.Description && x.TextAnnot == y.TextAnnot &&
			slices.Equal(x.Rects, y.Rects)
	case *Portal:
		y, ok := b.Body.(*Portal)
		return ok && x.SrcOffsetY == y.SrcOffsetY &&
			floatPtrEqual(x.SrcOffsetX, y.SrcOffsetX) && x.Dst.Equal(y.Dst)
	}
	return false
}

// Equal reports whether a and b are identical, metadata included.
func Equal(a, b Annotation) bool {
	if a.ID != b.ID || !a.Created.Equal(b.Created) || !a.Modified.Equal(b.Modified) {
		return false
	}
	if !AreSame(a, b) {
		return false
	}
	if x, ok := a.Body.(*BookMark); ok {
		y := b.Body.(*BookMark)
		return x.Color == y.Color && x.FontSize == y.FontSize && x.FontFace == y.FontFace
	}
	return true
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
