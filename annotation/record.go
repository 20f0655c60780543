// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package annotation

import (
	"errors"
	"fmt"
	"time"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"
)

// Record is the serialized form of one annotation: a flat object with the
// shared metadata, the checksum of the document it belongs to, and the
// fields of its variant. Rectangles are stored as [llx, lly, urx, ury] and
// points as [x, y].
type Record struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	CreationTime     time.Time `json:"creation_time"`
	ModificationTime time.Time `json:"modification_time"`
	DocumentChecksum string    `json:"document_checksum"`

	// Mark
	Symbol string `json:"symbol,omitempty"`

	// Mark and BookMark
	YOffset float64 `json:"y_offset,omitempty"`

	// BookMark and Highlight
	Description string `json:"description,omitempty"`

	// BookMark
	Rect     *[4]float64 `json:"rect,omitempty"`
	Color    *[3]float32 `json:"color,omitempty"`
	FontSize float32     `json:"font_size,omitempty"`
	FontFace string      `json:"font_face,omitempty"`

	// Highlight
	Begin     *[2]float64  `json:"begin,omitempty"`
	End       *[2]float64  `json:"end,omitempty"`
	Rects     [][4]float64 `json:"rects,omitempty"`
	Type      string       `json:"type,omitempty"`
	TextAnnot string       `json:"text_annot,omitempty"`

	// Portal
	Destination *ViewRecord `json:"destination,omitempty"`
	SrcOffsetY  float64     `json:"src_offset_y,omitempty"`
	SrcOffsetX  *float64    `json:"src_offset_x,omitempty"`
}

// ViewRecord is the serialized form of a portal destination.
type ViewRecord struct {
	DocumentChecksum string      `json:"document_checksum"`
	Zoom             float32     `json:"zoom"`
	OffsetX          float64     `json:"offset_x"`
	OffsetY          float64     `json:"offset_y"`
	RulerMode        bool        `json:"ruler_mode,omitempty"`
	RulerRect        *[4]float64 `json:"ruler_rect,omitempty"`
	RulerPos         float64     `json:"ruler_pos,omitempty"`
	LineIndex        int         `json:"line_index"`
}

// ToRecord serializes a for the document with the given checksum.
// Timestamps are stored in UTC.
func ToRecord(a Annotation, checksum string) Record {
	r := Record{
		ID:               a.ID,
		Kind:             a.Kind(),
		CreationTime:     a.Created.UTC(),
		ModificationTime: a.Modified.UTC(),
		DocumentChecksum: checksum,
	}
	switch b := a.Body.(type) {
	case *Mark:
		r.Symbol = string(b.Symbol)
		r.YOffset = b.YOffset
	case *BookMark:
		r.Description = b.Description
		r.YOffset = b.YOffset
		r.Rect = boxRecord(b.Rect)
		if b.Color != ([3]float32{}) {
			c := b.Color
			r.Color = &c
		}
		r.FontSize = b.FontSize
		r.FontFace = b.FontFace
	case *Highlight:
		r.Begin = &[2]float64{b.Begin.X, b.Begin.Y}
		r.End = &[2]float64{b.End.X, b.End.Y}
		for _, hr := range b.Rects {
			r.Rects = append(r.Rects, [4]float64{hr.LLx, hr.LLy, hr.URx, hr.URy})
		}
		r.Type = string(b.Type)
		r.Description = b.Description
		r.TextAnnot = b.TextAnnot
	case *Portal:
		r.Destination = &ViewRecord{
			DocumentChecksum: b.Dst.DocumentChecksum,
			Zoom:             b.Dst.Book.Zoom,
			OffsetX:          b.Dst.Book.OffsetX,
			OffsetY:          b.Dst.Book.OffsetY,
			RulerMode:        b.Dst.Book.RulerMode,
			RulerRect:        boxRecord(b.Dst.Book.RulerRect),
			RulerPos:         b.Dst.Book.RulerPos,
			LineIndex:        b.Dst.Book.LineIndex,
		}
		r.SrcOffsetY = b.SrcOffsetY
		if b.SrcOffsetX != nil {
			x := *b.SrcOffsetX
			r.SrcOffsetX = &x
		}
	}
	return r
}

// FromRecord rebuilds an annotation from r. It fails with ErrInvalidRecord
// for unknown kinds, missing ids or missing variant fields.
func FromRecord(r Record) (Annotation, error) {
	if r.ID == "" {
		return Annotation{}, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	a := Annotation{Meta: Meta{ID: r.ID, Created: r.CreationTime, Modified: r.ModificationTime}}

	switch r.Kind {
	case KindMark:
		if len(r.Symbol) != 1 {
			return Annotation{}, fmt.Errorf("%w: %s: mark symbol %q", ErrInvalidRecord, r.ID, r.Symbol)
		}
		a.Body = &Mark{Symbol: r.Symbol[0], YOffset: r.YOffset}
	case KindBookMark:
		b := &BookMark{
			Description: r.Description,
			YOffset:     r.YOffset,
			Rect:        boxFromRecord(r.Rect),
			FontSize:    r.FontSize,
			FontFace:    r.FontFace,
		}
		if r.Color != nil {
			b.Color = *r.Color
		}
		a.Body = b
	case KindHighlight:
		if r.Begin == nil || r.End == nil || len(r.Type) != 1 {
			return Annotation{}, fmt.Errorf("%w: %s: incomplete highlight", ErrInvalidRecord, r.ID)
		}
		h := &Highlight{
			Begin:       vec.Vec2{X: r.Begin[0], Y: r.Begin[1]},
			End:         vec.Vec2{X: r.End[0], Y: r.End[1]},
			Type:        r.Type[0],
			Description: r.Description,
			TextAnnot:   r.TextAnnot,
		}
		for _, box := range r.Rects {
			h.Rects = append(h.Rects, *boxFromRecord(&box))
		}
		a.Body = h
	case KindPortal:
		if r.Destination == nil {
			return Annotation{}, fmt.Errorf("%w: %s: portal without destination", ErrInvalidRecord, r.ID)
		}
		d := r.Destination
		p := &Portal{
			Dst: PortalViewState{
				DocumentChecksum: d.DocumentChecksum,
				Book: OpenedBookState{
					Zoom:      d.Zoom,
					OffsetX:   d.OffsetX,
					OffsetY:   d.OffsetY,
					RulerMode: d.RulerMode,
					RulerRect: boxFromRecord(d.RulerRect),
					RulerPos:  d.RulerPos,
					LineIndex: d.LineIndex,
				},
			},
			SrcOffsetY: r.SrcOffsetY,
		}
		if r.SrcOffsetX != nil {
			x := *r.SrcOffsetX
			p.SrcOffsetX = &x
		}
		a.Body = p
	default:
		return Annotation{}, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRecord, r.ID, r.Kind)
	}

	if err := validate(a); err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			return Annotation{}, fmt.Errorf("%s: %w", r.ID, err)
		}
		return Annotation{}, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, r.ID, err)
	}
	return a, nil
}

func boxRecord(r *rect.Rect) *[4]float64 {
	if r == nil {
		return nil
	}
	return &[4]float64{r.LLx, r.LLy, r.URx, r.URy}
}

func boxFromRecord(b *[4]float64) *rect.Rect {
	if b == nil {
		return nil
	}
	return &rect.Rect{LLx: b[0], LLy: b[1], URx: b[2], URy: b[3]}
}
