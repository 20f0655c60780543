// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gogpu/docview/annotation"
	"github.com/natefinch/atomic"
)

const fileExt = ".json"

// document is the on-disk layout of one document's records.
type document struct {
	Version     int                 `json:"version"`
	Checksum    string              `json:"checksum"`
	Annotations []annotation.Record `json:"annotations"`
}

const formatVersion = 1

// FileStore keeps one JSON file per document in a directory. Files are named
// after the document checksum and replaced atomically on every save.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// path returns the file holding checksum's records.
func (s *FileStore) path(checksum string) (string, error) {
	if checksum == "" || strings.ContainsAny(checksum, `/\`) || checksum == "." || checksum == ".." {
		return "", fmt.Errorf("%w: invalid checksum %q", ErrPersistence, checksum)
	}
	return filepath.Join(s.dir, checksum+fileExt), nil
}

// Save implements Persister.
func (s *FileStore) Save(checksum string, records []annotation.Record) error {
	path, err := s.path(checksum)
	if err != nil {
		return err
	}
	if records == nil {
		records = []annotation.Record{}
	}

	data, err := json.MarshalIndent(document{
		Version:     formatVersion,
		Checksum:    checksum,
		Annotations: records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPersistence, checksum, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, path, err)
	}
	logger.Get().Debug("persist: saved annotations", "checksum", checksum, "count", len(records))
	return nil
}

// Load implements Persister.
func (s *FileStore) Load(checksum string) ([]annotation.Record, error) {
	path, err := s.path(checksum)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrPersistence, path, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrPersistence, path, doc.Version)
	}
	if doc.Checksum != checksum {
		return nil, fmt.Errorf("%w: %s: holds records of %q", ErrPersistence, path, doc.Checksum)
	}
	return doc.Annotations, nil
}

// Remove deletes the records of checksum. Removing a missing document is
// not an error.
func (s *FileStore) Remove(checksum string) error {
	path, err := s.path(checksum)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Checksums lists the documents with stored records, sorted.
func (s *FileStore) Checksums() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != fileExt {
			continue
		}
		out = append(out, strings.TrimSuffix(name, fileExt))
	}
	slices.Sort(out)
	return out, nil
}
