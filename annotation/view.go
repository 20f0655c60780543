// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package annotation

import "seehuhn.de/go/geom/rect"

// OpenedBookState is the view of an open document: zoom, scroll offset and
// the optional reading ruler.
type OpenedBookState struct {
	Zoom      float32
	OffsetX   float64
	OffsetY   float64
	RulerMode bool
	RulerRect *rect.Rect
	RulerPos  float64
	LineIndex int
}

// DefaultBookState returns the state of a freshly opened document.
func DefaultBookState() OpenedBookState {
	return OpenedBookState{Zoom: 1, LineIndex: -1}
}

// Clone returns a deep copy of s.
func (s OpenedBookState) Clone() OpenedBookState {
	if s.RulerRect != nil {
		r := *s.RulerRect
		s.RulerRect = &r
	}
	return s
}

// Equal reports whether s and o describe the same view. The ruler rectangle
// is compared by value.
func (s OpenedBookState) Equal(o OpenedBookState) bool {
	if s.Zoom != o.Zoom || s.OffsetX != o.OffsetX || s.OffsetY != o.OffsetY ||
		s.RulerMode != o.RulerMode || s.RulerPos != o.RulerPos || s.LineIndex != o.LineIndex {
		return false
	}
	return rectPtrEqual(s.RulerRect, o.RulerRect)
}

// DocumentViewState is an open document and its view, used for session
// restore.
type DocumentViewState struct {
	Path string
	Book OpenedBookState
}

// Equal compares path and book state exactly.
func (s DocumentViewState) Equal(o DocumentViewState) bool {
	return s.Path == o.Path && s.Book.Equal(o.Book)
}

// PortalViewState is the destination of a portal. The document is named by
// content checksum rather than path.
type PortalViewState struct {
	DocumentChecksum string
	Book             OpenedBookState
}

// Clone returns a deep copy of s.
func (s PortalViewState) Clone() PortalViewState {
	s.Book = s.Book.Clone()
	return s
}

// Equal compares checksum and book state exactly.
func (s PortalViewState) Equal(o PortalViewState) bool {
	return s.DocumentChecksum == o.DocumentChecksum && s.Book.Equal(o.Book)
}

func rectPtrEqual(a, b *rect.Rect) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
