// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package annotation

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"seehuhn.de/go/geom/vec"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNow replaces the clock used for creation and modification times.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// item is a stored annotation with its insertion sequence.
type item struct {
	a   Annotation
	seq uint64
}

// Store is the annotation set of one document.
//
// Store hands out copies; annotations are changed only through its methods.
// Every mutation bumps the modification time and marks the store dirty until
// the contents are saved (MarkSaved or MarkClean).
//
// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]*item
	seq   uint64
	now   func() time.Time

	// version counts mutations; saved is the version last persisted.
	version uint64
	saved   uint64
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		items: make(map[string]*item),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp returns the current time in UTC without monotonic reading.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Round(0)
}

// Len returns the number of annotations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Add stores a copy of a and returns it. A zero id is replaced by a fresh
// one and zero timestamps by the current time.
func (s *Store) Add(a Annotation) (Annotation, error) {
	if err := validate(a); err != nil {
		return Annotation{}, err
	}
	a = a.Clone()
	if a.ID == "" {
		id, err := newID()
		if err != nil {
			return Annotation{}, err
		}
		a.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[a.ID]; ok {
		return Annotation{}, fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	now := s.timestamp()
	if a.Created.IsZero() {
		a.Created = now
	}
	if a.Modified.IsZero() {
		a.Modified = a.Created
	}
	s.insertLocked(a)
	s.version++
	return a.Clone(), nil
}

// insertLocked stores a with the next sequence number.
// Caller must hold s.mu.
func (s *Store) insertLocked(a Annotation) {
	s.seq++
	s.items[a.ID] = &item{a: a, seq: s.seq}
}

// Remove deletes the annotation with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.items, id)
	s.version++
	return nil
}

// Update applies mutate to a copy of the annotation with the given id and
// commits the copy only if mutate succeeds and the result is valid. The id,
// kind and creation time cannot change. The modification time is bumped and
// never goes backwards.
func (s *Store) Update(id string, mutate func(*Annotation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	c := it.a.Clone()
	if err := mutate(&c); err != nil {
		return err
	}
	if c.ID != id || c.Kind() != it.a.Kind() {
		return fmt.Errorf("%w: %s: update changed id or kind", ErrInvalidRecord, id)
	}
	if err := validate(c); err != nil {
		return err
	}

	c.Created = it.a.Created
	c.Modified = later(s.timestamp(), it.a.Modified)
	it.a = c
	s.version++
	return nil
}

// later returns the later of now and prev.
func later(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// Get returns a copy of the annotation with the given id.
func (s *Store) Get(id string) (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return Annotation{}, false
	}
	return it.a.Clone(), true
}

// List returns copies of the annotations of one kind. Marks are in creation
// order; bookmarks, highlights and portals are in document order (top to
// bottom), ties in creation order. An empty kind lists everything in
// creation order.
func (s *Store) List(kind Kind) []Annotation {
	s.mu.RLock()
	items := make([]*item, 0, len(s.items))
	for _, it := range s.items {
		if kind == "" || it.a.Kind() == kind {
			items = append(items, it)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(items, func(a, b *item) int {
		if kind != "" && kind != KindMark {
			if c := cmp.Compare(position(a.a), position(b.a)); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]Annotation, len(items))
	for i, it := range items {
		out[i] = it.a.Clone()
	}
	return out
}

// position returns the vertical document position used for spatial order.
func position(a Annotation) float64 {
	switch b := a.Body.(type) {
	case *Mark:
		return b.YOffset
	case *BookMark:
		return b.YPosition()
	case *Highlight:
		return b.Top()
	case *Portal:
		return b.SrcOffsetY
	}
	return 0
}

// Serialize returns the records of every annotation, in creation order.
func (s *Store) Serialize(checksum string) []Record {
	all := s.List("")
	records := make([]Record, len(all))
	for i, a := range all {
		records[i] = ToRecord(a, checksum)
	}
	return records
}

// Load replaces the contents of the store with records. If any record is
// malformed or ids repeat, Load fails with ErrInvalidRecord and the store is
// left unchanged. A loaded store is clean.
func (s *Store) Load(records []Record) error {
	parsed, err := parseRecords(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*item, len(parsed))
	for _, a := range parsed {
		s.insertLocked(a)
	}
	s.version++
	s.saved = s.version
	return nil
}

// parseRecords converts records, rejecting duplicate ids.
func parseRecords(records []Record) ([]Annotation, error) {
	seen := make(map[string]struct{}, len(records))
	out := make([]Annotation, 0, len(records))
	for _, r := range records {
		a, err := FromRecord(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[a.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidRecord, a.ID)
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// MergeStats reports the outcome of Merge.
type MergeStats struct {
	// Added counts new annotations.
	Added int
	// Updated counts local annotations replaced by newer incoming ones.
	Updated int
	// Duplicates counts incoming annotations skipped because a local one
	// has the same content under another id.
	Duplicates int
	// Unchanged counts incoming annotations not newer than the local copy.
	Unchanged int
}

// Merge imports records into the store, as when syncing with another copy
// of the document:
//
//   - same id: the newer modification time wins
//   - mark with a symbol already in use: the newer mark wins
//   - bookmark or highlight with the same content as a local one under
//     another id: skipped as a duplicate
//   - anything else is added
//
// Malformed records fail the whole merge with ErrInvalidRecord.
func (s *Store) Merge(records []Record) (MergeStats, error) {
	var stats MergeStats
	incoming, err := parseRecords(records)
	if err != nil {
		return stats, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range incoming {
		if it, ok := s.items[in.ID]; ok {
			if in.Modified.After(it.a.Modified) {
				it.a = in
				stats.Updated++
			} else {
				stats.Unchanged++
			}
			continue
		}

		if m := in.Mark(); m != nil {
			if it := s.findMarkLocked(m.Symbol); it != nil {
				if in.Modified.After(it.a.Modified) {
					delete(s.items, it.a.ID)
					s.insertLocked(in)
					stats.Updated++
				} else {
					stats.Unchanged++
				}
				continue
			}
		}

		if s.hasSameLocked(in) {
			stats.Duplicates++
			continue
		}
		s.insertLocked(in)
		stats.Added++
	}

	if stats.Added+stats.Updated > 0 {
		s.version++
	}
	return stats, nil
}

// hasSameLocked reports whether a bookmark or highlight with the same
// content as a exists. Caller must hold s.mu.
func (s *Store) hasSameLocked(a Annotation) bool {
	switch a.Kind() {
	case KindBookMark, KindHighlight:
	default:
		return false
	}
	for _, it := range s.items {
		if AreSame(it.a, a) {
			return true
		}
	}
	return false
}

// Dirty reports whether the store changed since it was loaded or last
// saved.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version != s.saved
}

// Version returns a counter that changes on every mutation. Pass it to
// MarkSaved after persisting the records serialized at that version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// MarkSaved records that the store was persisted at version v. Changes made
// after v keep the store dirty.
func (s *Store) MarkSaved(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v > s.saved {
		s.saved = v
	}
}

// MarkClean marks the current contents as saved.
func (s *Store) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = s.version
}

// SetMark places the mark symbol at y, moving it if it exists.
func (s *Store) SetMark(symbol byte, y float64) (Annotation, error) {
	if !ValidSymbol(symbol) {
		return Annotation{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if err := finite("mark offset", y); err != nil {
		return Annotation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	if it := s.findMarkLocked(symbol); it != nil {
		it.a.Mark().YOffset = y
		it.a.Modified = later(now, it.a.Modified)
		s.version++
		return it.a.Clone(), nil
	}

	id, err := newID()
	if err != nil {
		return Annotation{}, err
	}
	a := NewMark(symbol, y)
	a.ID = id
	a.Created = now
	a.Modified = now
	s.insertLocked(a)
	s.version++
	return a.Clone(), nil
}

// FindMark returns the mark with the given symbol.
func (s *Store) FindMark(symbol byte) (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if it := s.findMarkLocked(symbol); it != nil {
		return it.a.Clone(), true
	}
	return Annotation{}, false
}

// findMarkLocked returns the item holding mark symbol, or nil.
// Caller must hold s.mu.
func (s *Store) findMarkLocked(symbol byte) *item {
	for _, it := range s.items {
		if m := it.a.Mark(); m != nil && m.Symbol == symbol {
			return it
		}
	}
	return nil
}

// ClosestBookmark returns the bookmark whose position is closest to y.
func (s *Store) ClosestBookmark(y float64) (Annotation, bool) {
	return s.closest(KindBookMark, y, math.Inf(1))
}

// ClosestPortal returns the portal whose source is closest to y and at most
// limit away. A non-positive limit means no limit.
func (s *Store) ClosestPortal(y, limit float64) (Annotation, bool) {
	if limit <= 0 {
		limit = math.Inf(1)
	}
	return s.closest(KindPortal, y, limit)
}

// closest returns the annotation of kind nearest to y within limit. Ties go
// to the earlier one in document order.
func (s *Store) closest(kind Kind, y, limit float64) (Annotation, bool) {
	var (
		best  Annotation
		found bool
		dist  = limit
	)
	for _, a := range s.List(kind) {
		if d := math.Abs(position(a) - y); d < dist || (!found && d <= dist) {
			best, found, dist = a, true, d
		}
	}
	return best, found
}

// SearchBookmarks returns the bookmarks whose description contains query,
// ignoring case and Unicode normalization, in document order.
func (s *Store) SearchBookmarks(query string) []Annotation {
	q := foldString(query)
	var out []Annotation
	for _, a := range s.List(KindBookMark) {
		if strings.Contains(foldString(a.BookMark().Description), q) {
			out = append(out, a)
		}
	}
	return out
}

// foldString returns s in NFC with case folded.
func foldString(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// HighlightAt returns the topmost-listed highlight containing p.
func (s *Store) HighlightAt(p vec.Vec2) (Annotation, bool) {
	for _, a := range s.List(KindHighlight) {
		if a.Highlight().Contains(p) {
			return a, true
		}
	}
	return Annotation{}, false
}
