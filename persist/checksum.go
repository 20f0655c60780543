// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/docview/internal/cache"
)

// DefaultChecksumCacheSize is the number of file checksums remembered by a
// Checksummer created with a non-positive size.
const DefaultChecksumCacheSize = 256

// fileIdentity changes whenever the file content may have changed.
type fileIdentity struct {
	path    string
	size    int64
	modTime time.Time
}

// Checksummer computes document content checksums (hex SHA-256) and
// remembers them per file identity (path, size, modification time), so
// reopening an unchanged document does not hash it again.
//
// Checksummer is safe for concurrent use.
type Checksummer struct {
	sums *cache.Cache[fileIdentity, string]
}

// NewChecksummer creates a checksummer remembering up to size files.
func NewChecksummer(size int) *Checksummer {
	if size <= 0 {
		size = DefaultChecksumCacheSize
	}
	return &Checksummer{sums: cache.New[fileIdentity, string](size)}
}

// Sum returns the checksum of the file at path.
func (c *Checksummer) Sum(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrPersistence, path)
	}

	id := fileIdentity{path: abs, size: info.Size(), modTime: info.ModTime()}
	if sum, ok := c.sums.Get(id); ok {
		return sum, nil
	}

	sum, err := hashFile(abs)
	if err != nil {
		return "", err
	}
	c.sums.Set(id, sum)
	logger.Get().Debug("persist: checksum computed", "path", abs, "size", info.Size())
	return sum, nil
}

// Stats returns memoization statistics.
func (c *Checksummer) Stats() cache.Stats {
	return c.sums.Stats()
}

// SumBytes returns the checksum of in-memory document content.
func SumBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hash %s: %w", ErrPersistence, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
