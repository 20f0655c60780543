// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package annotation holds the per-document annotation model: marks,
// bookmarks, highlights and portals.
//
// An Annotation is shared metadata (id, creation and modification time) plus
// a Body holding one of the four variants. Stores serialize annotations to
// flat records keyed by document checksum, so annotations stay attached to
// document content when files are moved or renamed.
//
// Coordinates are in document space: y grows downward from the top of the
// first page, and a rect.Rect stores its minimum corner in LLx/LLy.
package annotation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"
)

// Errors returned by stores and registries.
var (
	// ErrNotFound is returned for an unknown id or mark symbol.
	ErrNotFound = errors.New("annotation: not found")

	// ErrDuplicateID is returned when adding an annotation whose id is taken.
	ErrDuplicateID = errors.New("annotation: duplicate id")

	// ErrInvalidSymbol is returned for mark symbols outside a-z and A-Z.
	ErrInvalidSymbol = errors.New("annotation: invalid mark symbol")

	// ErrInvalidRecord is returned for malformed annotations or records.
	ErrInvalidRecord = errors.New("annotation: invalid record")
)

// Kind names an annotation variant.
type Kind string

// Annotation kinds.
const (
	KindMark      Kind = "mark"
	KindBookMark  Kind = "bookmark"
	KindHighlight Kind = "highlight"
	KindPortal    Kind = "portal"
)

// Meta is the metadata shared by every annotation.
type Meta struct {
	ID       string
	Created  time.Time
	Modified time.Time
}

// Body is the variant payload of an annotation: *Mark, *BookMark,
// *Highlight or *Portal.
type Body interface {
	Kind() Kind
	clone() Body
}

// Annotation is a user annotation attached to a document.
type Annotation struct {
	Meta
	Body Body
}

// Kind returns the variant kind, or "" if Body is nil.
func (a Annotation) Kind() Kind {
	if a.Body == nil {
		return ""
	}
	return a.Body.Kind()
}

// Clone returns a deep copy of a.
func (a Annotation) Clone() Annotation {
	c := a
	if a.Body != nil {
		c.Body = a.Body.clone()
	}
	return c
}

// Mark returns the body as a *Mark, or nil.
func (a Annotation) Mark() *Mark {
	m, _ := a.Body.(*Mark)
	return m
}

// BookMark returns the body as a *BookMark, or nil.
func (a Annotation) BookMark() *BookMark {
	b, _ := a.Body.(*BookMark)
	return b
}

// Highlight returns the body as a *Highlight, or nil.
func (a Annotation) Highlight() *Highlight {
	h, _ := a.Body.(*Highlight)
	return h
}

// Portal returns the body as a *Portal, or nil.
func (a Annotation) Portal() *Portal {
	p, _ := a.Body.(*Portal)
	return p
}

// Mark is a named vertical position. Lowercase symbols are local to a
// document, uppercase symbols are global across documents.
type Mark struct {
	Symbol  byte
	YOffset float64
}

// Kind implements Body.
func (*Mark) Kind() Kind { return KindMark }

func (m *Mark) clone() Body {
	c := *m
	return &c
}

// IsGlobal reports whether the mark is visible from other documents.
func (m *Mark) IsGlobal() bool {
	return IsGlobalSymbol(m.Symbol)
}

// IsGlobalSymbol reports whether s is an uppercase mark symbol.
func IsGlobalSymbol(s byte) bool {
	return s >= 'A' && s <= 'Z'
}

// ValidSymbol reports whether s can name a mark.
func ValidSymbol(s byte) bool {
	return (s >= 'a' && s <= 'z') || IsGlobalSymbol(s)
}

// BookMark is a described position, optionally anchored to a rectangle.
// A bookmark with a zero-area rectangle marks a point; one with an area and
// a description is drawn as free text.
type BookMark struct {
	Description string
	YOffset     float64
	Rect        *rect.Rect
	Color       [3]float32
	FontSize    float32
	FontFace    string
}

// Kind implements Body.
func (*BookMark) Kind() Kind { return KindBookMark }

func (b *BookMark) clone() Body {
	c := *b
	if b.Rect != nil {
		r := *b.Rect
		c.Rect = &r
	}
	return &c
}

// IsMarked reports whether the bookmark is anchored to a single point.
func (b *BookMark) IsMarked() bool {
	return b.Rect != nil && width(*b.Rect) == 0 && height(*b.Rect) == 0
}

// IsFreetext reports whether the bookmark is a free-text box.
func (b *BookMark) IsFreetext() bool {
	return b.Rect != nil && width(*b.Rect) > 0 && height(*b.Rect) > 0 && b.Description != ""
}

// YPosition returns the top of the rectangle if present, else YOffset.
func (b *BookMark) YPosition() float64 {
	if b.Rect != nil {
		return b.Rect.LLy
	}
	return b.YOffset
}

// Highlight is a highlighted text selection.
type Highlight struct {
	Begin       vec.Vec2
	End         vec.Vec2
	Rects       []rect.Rect
	Type        byte
	Description string
	TextAnnot   string
}

// Kind implements Body.
func (*Highlight) Kind() Kind { return KindHighlight }

func (h *Highlight) clone() Body {
	c := *h
	c.Rects = append([]rect.Rect(nil), h.Rects...)
	return &c
}

// Top returns the smallest y coordinate of the selection.
func (h *Highlight) Top() float64 {
	return min(h.Begin.Y, h.End.Y)
}

// Contains reports whether p lies inside one of the highlight rectangles.
func (h *Highlight) Contains(p vec.Vec2) bool {
	for _, r := range h.Rects {
		if contains(r, p) {
			return true
		}
	}
	return false
}

// PortalIconSize is the side length of the icon drawn for a visible portal.
const PortalIconSize = 20

// Portal links a source position in one document to a view in another (or
// the same) document. A portal with an x offset is drawn as an icon.
type Portal struct {
	Dst        PortalViewState
	SrcOffsetY float64
	SrcOffsetX *float64
}

// Kind implements Body.
func (*Portal) Kind() Kind { return KindPortal }

func (p *Portal) clone() Body {
	c := *p
	c.Dst = p.Dst.Clone()
	if p.SrcOffsetX != nil {
		x := *p.SrcOffsetX
		c.SrcOffsetX = &x
	}
	return &c
}

// IsVisible reports whether the portal has an icon position.
func (p *Portal) IsVisible() bool {
	return p.SrcOffsetX != nil
}

// Rectangle returns the icon box centred on the source position. It returns
// false for portals that are not visible.
func (p *Portal) Rectangle() (rect.Rect, bool) {
	if p.SrcOffsetX == nil {
		return rect.Rect{}, false
	}
	const half = PortalIconSize / 2
	x := *p.SrcOffsetX
	return rect.Rect{
		LLx: x - half, LLy: p.SrcOffsetY - half,
		URx: x + half, URy: p.SrcOffsetY + half,
	}, true
}

// NewMark returns a mark annotation. Id and timestamps are filled in by
// Store.Add.
func NewMark(symbol byte, y float64) Annotation {
	return Annotation{Body: &Mark{Symbol: symbol, YOffset: y}}
}

// NewBookMark returns a bookmark at y.
func NewBookMark(description string, y float64) Annotation {
	return Annotation{Body: &BookMark{Description: description, YOffset: y}}
}

// NewFreetextBookMark returns a bookmark spanning the box between two corners.
func NewFreetextBookMark(description string, begin, end vec.Vec2) Annotation {
	r := boxOf(begin, end)
	return Annotation{Body: &BookMark{Description: description, YOffset: r.LLy, Rect: &r}}
}

// NewHighlight returns a highlight of the selection between begin and end.
func NewHighlight(begin, end vec.Vec2, typ byte, rects []rect.Rect) Annotation {
	return Annotation{Body: &Highlight{Begin: begin, End: end, Type: typ, Rects: rects}}
}

// NewPortal returns a portal from srcY to dst.
func NewPortal(srcY float64, dst PortalViewState) Annotation {
	return Annotation{Body: &Portal{SrcOffsetY: srcY, Dst: dst}}
}

// newID returns a fresh time-ordered id.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("annotation: generate id: %w", err)
	}
	return id.String(), nil
}

// validate checks the variant fields of a.
func validate(a Annotation) error {
	switch b := a.Body.(type) {
	case nil:
		return fmt.Errorf("%w: missing body", ErrInvalidRecord)
	case *Mark:
		if !ValidSymbol(b.Symbol) {
			return fmt.Errorf("%w: %q", ErrInvalidSymbol, b.Symbol)
		}
		return finite("mark offset", b.YOffset)
	case *BookMark:
		if err := finite("bookmark offset", b.YOffset); err != nil {
			return err
		}
		if b.Rect != nil {
			if err := finiteRect("bookmark rect", *b.Rect); err != nil {
				return err
			}
		}
		return finite("bookmark font size", float64(b.FontSize))
	case *Highlight:
		if b.Type < 'a' || b.Type > 'z' {
			return fmt.Errorf("%w: highlight type %q", ErrInvalidRecord, b.Type)
		}
		if err := finite("highlight bounds", b.Begin.X, b.Begin.Y, b.End.X, b.End.Y); err != nil {
			return err
		}
		for _, r := range b.Rects {
			if err := finiteRect("highlight rect", r); err != nil {
				return err
			}
		}
	case *Portal:
		if err := finite("portal source", b.SrcOffsetY); err != nil {
			return err
		}
		if b.SrcOffsetX != nil {
			if err := finite("portal source", *b.SrcOffsetX); err != nil {
				return err
			}
		}
		return validateBookState("portal destination", b.Dst.Book)
	default:
		return fmt.Errorf("%w: unknown body %T", ErrInvalidRecord, b)
	}
	return nil
}

// validateBookState rejects view states that cannot be encoded.
func validateBookState(what string, s OpenedBookState) error {
	if s.Zoom < 0 {
		return fmt.Errorf("%w: %s zoom %g", ErrInvalidRecord, what, s.Zoom)
	}
	if err := finite(what, float64(s.Zoom), s.OffsetX, s.OffsetY, s.RulerPos); err != nil {
		return err
	}
	if s.RulerRect != nil {
		return finiteRect(what, *s.RulerRect)
	}
	return nil
}

// finite returns ErrInvalidRecord if any value is NaN or infinite; JSON has
// no encoding for them.
func finite(what string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %g", ErrInvalidRecord, what, v)
		}
	}
	return nil
}

func finiteRect(what string, r rect.Rect) error {
	return finite(what, r.LLx, r.LLy, r.URx, r.URy)
}

// boxOf returns the rectangle spanned by two corners.
func boxOf(a, b vec.Vec2) rect.Rect {
	return rect.Rect{
		LLx: min(a.X, b.X), LLy: min(a.Y, b.Y),
		URx: max(a.X, b.X), URy: max(a.Y, b.Y),
	}
}

func width(r rect.Rect) float64  { return r.URx - r.LLx }
func height(r rect.Rect) float64 { return r.URy - r.LLy }

func contains(r rect.Rect, p vec.Vec2) bool {
	return p.X >= r.LLx && p.X <= r.URx && p.Y >= r.LLy && p.Y <= r.URy
}
