// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"errors"
	"testing"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"github.com/gogpu/docview/annotation"
)

func TestDocumentGotoMark(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	first := openTest(t, v, "first", &scriptedSource{pages: 5})
	second := openTest(t, v, "second", &scriptedSource{pages: 5})

	if _, err := first.AddMark('a', 120); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	if _, err := first.AddMark('B', 840); err != nil {
		t.Fatalf("AddMark: %v", err)
	}

	// Local lowercase mark moves the view.
	target, err := first.GotoMark('a')
	if err != nil {
		t.Fatalf("GotoMark: %v", err)
	}
	if !target.Local || target.YOffset != 120 {
		t.Errorf("unexpected target %+v", target)
	}
	if got := first.State().OffsetY; got != 120 {
		t.Errorf("expected view at 120, got %v", got)
	}

	// Uppercase marks are visible from other documents.
	target, err = second.GotoMark('B')
	if err != nil {
		t.Fatalf("GotoMark: %v", err)
	}
	if target.Local || target.Checksum != "first" || target.YOffset != 840 {
		t.Errorf("unexpected target %+v", target)
	}
	if got := second.State().OffsetY; got != 0 {
		t.Errorf("a remote mark must not move this view, got %v", got)
	}

	// Lowercase marks are not.
	if _, err := second.GotoMark('a'); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A local mark wins over the global one.
	if _, err := second.AddMark('B', 10); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	target, err = second.GotoMark('B')
	if err != nil {
		t.Fatalf("GotoMark: %v", err)
	}
	if !target.Local || target.YOffset != 10 {
		t.Errorf("expected the local mark, got %+v", target)
	}
	if g, _ := v.Registry().Get('B'); g.Checksum != "second" {
		t.Errorf("newer global mark should replace the old one, got %q", g.Checksum)
	}

	if _, err := first.AddMark('#', 0); !errors.Is(err, annotation.ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestDocumentBookmarks(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "bookmarks", &scriptedSource{pages: 3})

	for _, b := range []struct {
		desc string
		y    float64
	}{{"Introduction", 0}, {"Related work", 400}, {"Results", 900}} {
		if _, err := d.AddBookmark(b.desc, b.y); err != nil {
			t.Fatalf("AddBookmark: %v", err)
		}
	}
	free, err := d.AddFreetextBookmark("margin: check proof", vec.Vec2{X: 10, Y: 610}, vec.Vec2{X: 200, Y: 650})
	if err != nil {
		t.Fatalf("AddFreetextBookmark: %v", err)
	}
	if !free.BookMark().IsFreetext() {
		t.Error("expected a freetext bookmark")
	}

	if got := d.SearchBookmarks("RESULT"); len(got) != 1 || got[0].BookMark().Description != "Results" {
		t.Errorf("unexpected search result %v", got)
	}

	removed, err := d.DeleteClosestBookmark(420)
	if err != nil {
		t.Fatalf("DeleteClosestBookmark: %v", err)
	}
	if removed.BookMark().Description != "Related work" {
		t.Errorf("removed the wrong bookmark: %q", removed.BookMark().Description)
	}
	if n := len(d.Annotations().List(annotation.KindBookMark)); n != 3 {
		t.Errorf("expected 3 bookmarks left, got %d", n)
	}

	empty := openTest(t, v, "empty", &scriptedSource{pages: 1})
	if _, err := empty.DeleteClosestBookmark(0); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentHighlightsAndPortals(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "hl", &scriptedSource{pages: 3})

	h, err := d.AddHighlight(vec.Vec2{X: 0, Y: 100}, vec.Vec2{X: 80, Y: 112}, 'a',
		[]rect.Rect{{LLx: 0, LLy: 100, URx: 80, URy: 112}})
	if err != nil {
		t.Fatalf("AddHighlight: %v", err)
	}
	if got, ok := d.Annotations().HighlightAt(vec.Vec2{X: 40, Y: 105}); !ok || got.ID != h.ID {
		t.Error("HighlightAt should find the new highlight")
	}
	if _, err := d.AddHighlight(vec.Vec2{}, vec.Vec2{}, '!', nil); !errors.Is(err, annotation.ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for a bad type, got %v", err)
	}

	d.SetState(annotation.OpenedBookState{Zoom: 1.5, OffsetY: 2000, LineIndex: -1})
	other := openTest(t, v, "target", &scriptedSource{pages: 3})
	other.SetState(annotation.OpenedBookState{Zoom: 2, OffsetY: 300, LineIndex: -1})

	p, err := d.AddPortal(500, other.PortalTarget())
	if err != nil {
		t.Fatalf("AddPortal: %v", err)
	}
	if p.Portal().Dst.DocumentChecksum != "target" || p.Portal().Dst.Book.OffsetY != 300 {
		t.Errorf("unexpected portal destination %+v", p.Portal().Dst)
	}

	if got, ok := d.ClosestPortal(520, 50); !ok || got.ID != p.ID {
		t.Error("ClosestPortal should find the portal within the limit")
	}
	if _, ok := d.ClosestPortal(900, 50); ok {
		t.Error("ClosestPortal should respect the limit")
	}
}

func TestDocumentState(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "state", &scriptedSource{pages: 1})

	if !d.State().Equal(annotation.DefaultBookState()) {
		t.Errorf("new document should start at the default state, got %+v", d.State())
	}

	ruler := rect.Rect{LLx: 0, LLy: 50, URx: 600, URy: 62}
	s := annotation.OpenedBookState{Zoom: 1.25, OffsetY: 80, RulerMode: true, RulerRect: &ruler, LineIndex: 3}
	d.SetState(s)

	// The stored state is a copy.
	ruler.URy = 999
	if d.State().RulerRect.URy != 62 {
		t.Error("SetState must copy the ruler rectangle")
	}

	vs := d.ViewState()
	if vs.Path != "state.pdf" || vs.Book.Zoom != 1.25 {
		t.Errorf("unexpected view state %+v", vs)
	}
	if !vs.Equal(annotation.DocumentViewState{Path: "state.pdf", Book: d.State()}) {
		t.Error("view state should equal itself")
	}
}

func TestDocumentGlobalMarkMoves(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	aaa := openTest(t, v, "aaa", &scriptedSource{pages: 2})
	bbb := openTest(t, v, "bbb", &scriptedSource{pages: 2})

	if _, err := aaa.AddMark('A', 10); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	moved, err := bbb.AddMark('A', 99)
	if err != nil {
		t.Fatalf("AddMark: %v", err)
	}

	// The mark moved to bbb; aaa no longer holds its old copy.
	target, err := aaa.GotoMark('A')
	if err != nil {
		t.Fatalf("GotoMark: %v", err)
	}
	if target.Local || target.Checksum != "bbb" || target.YOffset != 99 {
		t.Errorf("expected the mark in bbb, got %+v", target)
	}
	if _, ok := aaa.Annotations().FindMark('A'); ok {
		t.Error("superseded mark should be removed from aaa")
	}

	// Deleting the mark directly from bbb's store hides it everywhere.
	if err := bbb.Annotations().Remove(moved.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := aaa.GotoMark('A'); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound after deletion, got %v", err)
	}
	if _, ok := v.Registry().Get('A'); ok {
		t.Error("deleted mark should leave the registry")
	}
}

func TestDocumentRemoveMark(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "remove", &scriptedSource{pages: 1})
	other := openTest(t, v, "other", &scriptedSource{pages: 1})

	if _, err := d.AddMark('C', 5); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	if _, err := d.AddMark('c', 6); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	if err := d.RemoveMark('C'); err != nil {
		t.Fatalf("RemoveMark: %v", err)
	}
	if _, ok := v.Registry().Get('C'); ok {
		t.Error("RemoveMark should withdraw the global mark")
	}
	if _, err := other.GotoMark('C'); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := d.RemoveMark('c'); err != nil {
		t.Fatalf("RemoveMark: %v", err)
	}
	if err := d.RemoveMark('c'); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing mark, got %v", err)
	}
}

func TestDocumentImportRegistersMarks(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "import", &scriptedSource{pages: 1})
	other := openTest(t, v, "reader", &scriptedSource{pages: 1})

	src := annotation.NewStore()
	if _, err := src.SetMark('D', 70); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Add(annotation.NewBookMark("imported", 30)); err != nil {
		t.Fatal(err)
	}

	stats, err := d.Import(src.Serialize("import"))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Added != 2 {
		t.Errorf("expected 2 added, got %+v", stats)
	}
	target, err := other.GotoMark('D')
	if err != nil {
		t.Fatalf("GotoMark: %v", err)
	}
	if target.Checksum != "import" || target.YOffset != 70 {
		t.Errorf("imported mark should resolve from other documents, got %+v", target)
	}
}

func TestDocumentDeletePortalsAndHighlights(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "delete", &scriptedSource{pages: 3})

	if _, err := d.DeleteClosestPortal(0); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound without portals, got %v", err)
	}
	for _, y := range []float64{100, 900} {
		if _, err := d.AddPortal(y, annotation.PortalViewState{DocumentChecksum: "x"}); err != nil {
			t.Fatalf("AddPortal: %v", err)
		}
	}
	removed, err := d.DeleteClosestPortal(800)
	if err != nil {
		t.Fatalf("DeleteClosestPortal: %v", err)
	}
	if removed.Portal().SrcOffsetY != 900 {
		t.Errorf("removed the wrong portal: %v", removed.Portal().SrcOffsetY)
	}

	var ids []string
	for _, y := range []float64{50, 300, 600} {
		h, err := d.AddHighlight(vec.Vec2{X: 0, Y: y}, vec.Vec2{X: 10, Y: y + 10}, 'a', nil)
		if err != nil {
			t.Fatalf("AddHighlight: %v", err)
		}
		ids = append(ids, h.ID)
	}
	if err := d.DeleteHighlight(ids[0]); err != nil {
		t.Fatalf("DeleteHighlight: %v", err)
	}
	if err := d.DeleteHighlight(ids[0]); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	// Index 1 is now the highlight at 600.
	h, err := d.DeleteHighlightAt(1)
	if err != nil {
		t.Fatalf("DeleteHighlightAt: %v", err)
	}
	if h.ID != ids[2] {
		t.Errorf("expected the last highlight, got %s", h.ID)
	}
	if _, err := d.DeleteHighlightAt(1); !errors.Is(err, annotation.ErrNotFound) {
		t.Errorf("expected ErrNotFound out of range, got %v", err)
	}
	if n := len(d.Annotations().List(annotation.KindHighlight)); n != 1 {
		t.Errorf("expected 1 highlight left, got %d", n)
	}
}
