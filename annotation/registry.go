// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package annotation

import (
	"fmt"
	"slices"
	"sync"
)

// GlobalMark is an uppercase mark together with the checksum of the
// document it points into.
type GlobalMark struct {
	Checksum string
	Mark     Annotation
}

// Target is where a mark lookup resolves to.
type Target struct {
	// Checksum is the document holding the mark.
	Checksum string
	// YOffset is the marked position.
	YOffset float64
	// Local is true when the mark was found in the current document.
	Local bool
}

// Registry holds the uppercase marks visible across documents.
//
// A viewer creates one registry at startup, hands it to every document it
// opens and clears it at shutdown.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	marks map[byte]GlobalMark
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{marks: make(map[byte]GlobalMark)}
}

// Put records the global mark a of the document with the given checksum.
// A mark with the same symbol is replaced unless it is newer than a.
// Put reports whether a was stored.
func (r *Registry) Put(checksum string, a Annotation) (bool, error) {
	m := a.Mark()
	if m == nil {
		return false, fmt.Errorf("%w: %s is not a mark", ErrInvalidRecord, a.Kind())
	}
	if !m.IsGlobal() {
		return false, fmt.Errorf("%w: %q is not a global mark", ErrInvalidSymbol, m.Symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.marks[m.Symbol]; ok && old.Mark.Modified.After(a.Modified) {
		return false, nil
	}
	r.marks[m.Symbol] = GlobalMark{Checksum: checksum, Mark: a.Clone()}
	return true, nil
}

// Get returns the global mark with the given symbol.
func (r *Registry) Get(symbol byte) (GlobalMark, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.marks[symbol]
	if !ok {
		return GlobalMark{}, false
	}
	g.Mark = g.Mark.Clone()
	return g, true
}

// Remove deletes the global mark with the given symbol and reports whether
// it existed.
func (r *Registry) Remove(symbol byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.marks[symbol]; !ok {
		return false
	}
	delete(r.marks, symbol)
	return true
}

// RemoveDocument deletes every global mark pointing into the document with
// the given checksum and returns how many were removed.
func (r *Registry) RemoveDocument(checksum string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for sym, g := range r.marks {
		if g.Checksum == checksum {
			delete(r.marks, sym)
			n++
		}
	}
	return n
}

// Len returns the number of global marks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.marks)
}

// Marks returns all global marks ordered by symbol.
func (r *Registry) Marks() []GlobalMark {
	r.mu.RLock()
	out := make([]GlobalMark, 0, len(r.marks))
	for _, g := range r.marks {
		g.Mark = g.Mark.Clone()
		out = append(out, g)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b GlobalMark) int {
		return int(a.Mark.Mark().Symbol) - int(b.Mark.Mark().Symbol)
	})
	return out
}

// Clear removes every global mark.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.marks)
}

// Forget deletes the global mark symbol if it points into the document with
// the given checksum, and reports whether it did.
func (r *Registry) Forget(symbol byte, checksum string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.marks[symbol]; !ok || g.Checksum != checksum {
		return false
	}
	delete(r.marks, symbol)
	return true
}

// Resolve finds mark symbol for the document with the given checksum whose
// annotations are in local.
//
// Lowercase marks resolve in local only. An uppercase mark resolves through
// the registry, which holds the most recently placed mark of that symbol;
// when the registry entry belongs to this document, or there is none, local
// decides. Resolve fails with ErrNotFound if the mark does not exist. A nil
// registry resolves local marks only.
func (r *Registry) Resolve(local *Store, checksum string, symbol byte) (Target, error) {
	if !ValidSymbol(symbol) {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if IsGlobalSymbol(symbol) && r != nil {
		if g, ok := r.Get(symbol); ok && (g.Checksum != checksum || local == nil) {
			return Target{
				Checksum: g.Checksum,
				YOffset:  g.Mark.Mark().YOffset,
				Local:    g.Checksum == checksum,
			}, nil
		}
	}
	if local != nil {
		if a, ok := local.FindMark(symbol); ok {
			return Target{Checksum: checksum, YOffset: a.Mark().YOffset, Local: true}, nil
		}
	}
	return Target{}, fmt.Errorf("%w: mark %q", ErrNotFound, symbol)
}
