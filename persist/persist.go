// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package persist saves and loads annotation records per document.
//
// Records are keyed by document content checksum, not by path, so a moved
// or renamed document keeps its annotations. A Persister is an opaque
// key-value store: Save replaces the records of one checksum, Load returns
// them.
package persist

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/docview/annotation"
	"github.com/gogpu/docview/internal/logging"
)

// ErrPersistence wraps every failure to save or load records.
var ErrPersistence = errors.New("persist: persistence failure")

var logger = logging.NewHolder()

// SetLogger configures the package logger. Pass nil to disable logging.
func SetLogger(l *slog.Logger) { logger.Set(l) }

// Persister stores annotation records per document checksum.
type Persister interface {
	// Save replaces the records stored for checksum.
	Save(checksum string, records []annotation.Record) error
	// Load returns the records stored for checksum. A document with no
	// stored records loads as empty without error.
	Load(checksum string) ([]annotation.Record, error)
}

// MemoryStore is an in-memory Persister for tests and headless use.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]annotation.Record

	// FailSave, if set, is returned (wrapped) by every Save.
	FailSave error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]annotation.Record)}
}

// Save implements Persister.
func (m *MemoryStore) Save(checksum string, records []annotation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return errors.Join(ErrPersistence, m.FailSave)
	}
	m.docs[checksum] = slices.Clone(records)
	return nil
}

// Load implements Persister.
func (m *MemoryStore) Load(checksum string) ([]annotation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.docs[checksum]), nil
}

// Checksums returns the checksums with stored records, sorted.
func (m *MemoryStore) Checksums() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.docs))
	for k := range m.docs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
