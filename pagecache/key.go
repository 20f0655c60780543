// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pagecache

import (
	"fmt"

	"github.com/gogpu/gpucontext"
)

// DocID identifies an open document. The viewer assigns a fresh DocID every
// time a document is opened, so results for a closed document never match a
// reopened one.
type DocID uint64

// Key identifies one rendered page. Equality is exact on all fields; zoom
// levels are never matched approximately.
type Key struct {
	Doc  DocID
	Page int
	Zoom float32
}

// String returns a compact representation for logs.
func (k Key) String() string {
	return fmt.Sprintf("doc%d/p%d@%g", k.Doc, k.Page, k.Zoom)
}

// less orders keys deterministically; used to break eviction ties.
func (k Key) less(o Key) bool {
	if k.Doc != o.Doc {
		return k.Doc < o.Doc
	}
	if k.Page != o.Page {
		return k.Page < o.Page
	}
	return k.Zoom < o.Zoom
}

// State is the lookup outcome for a key.
type State uint8

const (
	// Miss means no entry exists; the UI should request the page.
	Miss State = iota
	// Pending means a raw buffer is waiting for promotion.
	Pending
	// Ready means a GPU texture can be drawn.
	Ready
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Miss:
		return "Miss"
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Result is returned by Lookup. Texture is set only for Ready.
type Result struct {
	State   State
	Texture gpucontext.Texture
}
