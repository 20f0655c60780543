// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"github.com/gogpu/docview/annotation"
	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/raster"
)

// Document is an open document: its raster source, its annotations and the
// reader's view state.
//
// Document is safe for concurrent use.
type Document struct {
	v        *Viewer
	id       pagecache.DocID
	path     string
	checksum string
	src      raster.Source
	store    *annotation.Store

	mu     sync.Mutex
	state  annotation.OpenedBookState
	saving sync.Mutex // Serializes saves

	closed atomic.Bool
}

// ID returns the document's id, unique for the lifetime of the viewer.
func (d *Document) ID() pagecache.DocID { return d.id }

// Path returns the path the document was opened from.
func (d *Document) Path() string { return d.path }

// Checksum returns the content checksum that keys the annotations.
func (d *Document) Checksum() string { return d.checksum }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.src.PageCount() }

// Annotations returns the document's annotation store.
func (d *Document) Annotations() *annotation.Store { return d.store }

// Closed reports whether the document has been closed.
func (d *Document) Closed() bool { return d.closed.Load() }

func (d *Document) checkOpen() error {
	if d.closed.Load() {
		return fmt.Errorf("%w: %s", ErrDocumentClosed, d.path)
	}
	return nil
}

// AddMark places mark symbol at y. Uppercase marks are also registered
// globally, replacing the mark of the same symbol in any other document.
func (d *Document) AddMark(symbol byte, y float64) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	a, err := d.store.SetMark(symbol, y)
	if err != nil {
		return annotation.Annotation{}, err
	}
	if annotation.IsGlobalSymbol(symbol) {
		if err := d.register(a); err != nil {
			return annotation.Annotation{}, err
		}
	}
	return a, nil
}

// register publishes the global mark a and removes the copies other open
// documents hold.
func (d *Document) register(a annotation.Annotation) error {
	stored, err := d.v.registry.Put(d.checksum, a)
	if err != nil || !stored {
		return err
	}
	symbol := a.Mark().Symbol
	for _, other := range d.v.Documents() {
		if other.checksum == d.checksum {
			continue
		}
		if old, ok := other.store.FindMark(symbol); ok {
			if err := other.store.Remove(old.ID); err != nil && !errors.Is(err, annotation.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}

// RemoveMark deletes mark symbol from this document. An uppercase mark is
// also withdrawn from the registry if it was the global one.
func (d *Document) RemoveMark(symbol byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	a, ok := d.store.FindMark(symbol)
	if !ok {
		return fmt.Errorf("%w: mark %q", annotation.ErrNotFound, symbol)
	}
	if err := d.store.Remove(a.ID); err != nil {
		return err
	}
	if annotation.IsGlobalSymbol(symbol) {
		d.v.registry.Forget(symbol, d.checksum)
	}
	return nil
}

// GotoMark resolves mark symbol. Lowercase marks resolve in this document;
// an uppercase mark resolves to wherever it was placed last. When the
// target is in this document the view state moves to it.
func (d *Document) GotoMark(symbol byte) (annotation.Target, error) {
	t, err := d.v.registry.Resolve(d.store, d.checksum, symbol)
	if err == nil && !t.Local && d.v.markDeleted(t.Checksum, symbol) {
		d.v.registry.Forget(symbol, t.Checksum)
		t, err = d.v.registry.Resolve(d.store, d.checksum, symbol)
	}
	if err != nil {
		return annotation.Target{}, err
	}
	if t.Checksum == d.checksum {
		d.mu.Lock()
		d.state.OffsetY = t.YOffset
		d.mu.Unlock()
	}
	return t, nil
}

// Import merges records into the annotations and publishes the uppercase
// marks it brings in.
func (d *Document) Import(records []annotation.Record) (annotation.MergeStats, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.MergeStats{}, err
	}
	stats, err := d.store.Merge(records)
	if err != nil {
		return stats, err
	}
	for _, a := range d.store.List(annotation.KindMark) {
		if a.Mark().IsGlobal() {
			if err := d.register(a); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// AddBookmark adds a bookmark at y.
func (d *Document) AddBookmark(description string, y float64) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	return d.store.Add(annotation.NewBookMark(description, y))
}

// AddFreetextBookmark adds a bookmark covering the box spanned by begin and
// end.
func (d *Document) AddFreetextBookmark(description string, begin, end vec.Vec2) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	return d.store.Add(annotation.NewFreetextBookMark(description, begin, end))
}

// DeleteClosestBookmark removes the bookmark nearest to y and returns it.
func (d *Document) DeleteClosestBookmark(y float64) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	a, ok := d.store.ClosestBookmark(y)
	if !ok {
		return annotation.Annotation{}, fmt.Errorf("%w: no bookmark", annotation.ErrNotFound)
	}
	if err := d.store.Remove(a.ID); err != nil {
		return annotation.Annotation{}, err
	}
	return a, nil
}

// DeleteClosestPortal removes the portal whose source is nearest to y and
// returns it.
func (d *Document) DeleteClosestPortal(y float64) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	a, ok := d.store.ClosestPortal(y, 0)
	if !ok {
		return annotation.Annotation{}, fmt.Errorf("%w: no portal", annotation.ErrNotFound)
	}
	if err := d.store.Remove(a.ID); err != nil {
		return annotation.Annotation{}, err
	}
	return a, nil
}

// DeleteHighlight removes the highlight with the given id.
func (d *Document) DeleteHighlight(id string) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	a, ok := d.store.Get(id)
	if !ok || a.Highlight() == nil {
		return fmt.Errorf("%w: highlight %s", annotation.ErrNotFound, id)
	}
	return d.store.Remove(id)
}

// DeleteHighlightAt removes the i-th highlight in document order and
// returns it.
func (d *Document) DeleteHighlightAt(i int) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	list := d.store.List(annotation.KindHighlight)
	if i < 0 || i >= len(list) {
		return annotation.Annotation{}, fmt.Errorf("%w: highlight %d of %d", annotation.ErrNotFound, i, len(list))
	}
	if err := d.store.Remove(list[i].ID); err != nil {
		return annotation.Annotation{}, err
	}
	return list[i], nil
}

// SearchBookmarks returns the bookmarks whose description contains query.
func (d *Document) SearchBookmarks(query string) []annotation.Annotation {
	return d.store.SearchBookmarks(query)
}

// AddHighlight adds a highlight of type typ between begin and end, covering
// the given line rectangles.
func (d *Document) AddHighlight(begin, end vec.Vec2, typ byte, rects []rect.Rect) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	return d.store.Add(annotation.NewHighlight(begin, end, typ, rects))
}

// AddPortal adds a portal at srcY to the view described by dst.
func (d *Document) AddPortal(srcY float64, dst annotation.PortalViewState) (annotation.Annotation, error) {
	if err := d.checkOpen(); err != nil {
		return annotation.Annotation{}, err
	}
	return d.store.Add(annotation.NewPortal(srcY, dst))
}

// ClosestPortal returns the portal nearest to y, at most limit away.
func (d *Document) ClosestPortal(y, limit float64) (annotation.Annotation, bool) {
	return d.store.ClosestPortal(y, limit)
}

// State returns the reader's view state.
func (d *Document) State() annotation.OpenedBookState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state.Clone()
}

// SetState replaces the reader's view state.
func (d *Document) SetState(s annotation.OpenedBookState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = s.Clone()
}

// ViewState returns the path and view state, as stored in reading history.
func (d *Document) ViewState() annotation.DocumentViewState {
	return annotation.DocumentViewState{Path: d.path, Book: d.State()}
}

// PortalTarget returns the current view as a portal destination.
func (d *Document) PortalTarget() annotation.PortalViewState {
	return annotation.PortalViewState{DocumentChecksum: d.checksum, Book: d.State()}
}

// Persist saves the annotations if they changed since the last save. On
// failure the in-memory annotations are kept and remain unsaved, so the next
// Persist retries.
func (d *Document) Persist() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.persist()
}

func (d *Document) persist() error {
	d.saving.Lock()
	defer d.saving.Unlock()

	if !d.store.Dirty() {
		return nil
	}
	version := d.store.Version()
	records := d.store.Serialize(d.checksum)
	if err := d.v.persister.Save(d.checksum, records); err != nil {
		logger.Get().Warn("docview: saving annotations failed", "path", d.path, "err", err)
		return fmt.Errorf("docview: save %s: %w", d.path, err)
	}
	d.store.MarkSaved(version)
	logger.Get().Debug("docview: annotations saved", "path", d.path, "count", len(records))
	return nil
}

// Close closes the document; see Viewer.CloseDocument.
func (d *Document) Close() error {
	return d.v.CloseDocument(d.id)
}
