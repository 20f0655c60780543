// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pagecache

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/docview/internal/logging"
	"github.com/gogpu/docview/raster"
	"github.com/gogpu/gpucontext"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 32

// Errors returned by Promote.
var (
	// ErrUnsupportedFormat is returned when a pending buffer cannot be
	// uploaded as an RGBA texture.
	ErrUnsupportedFormat = errors.New("pagecache: unsupported pixel format")

	// ErrNilCreator is returned when Promote is called without a texture
	// creator.
	ErrNilCreator = errors.New("pagecache: nil texture creator")
)

// textureDestroyer is the interface for destroying textures.
// This matches the gogpu.Texture.Destroy signature.
type textureDestroyer interface {
	Destroy()
}

var logger = logging.NewHolder()

// SetLogger configures the package logger. Pass nil to disable logging.
func SetLogger(l *slog.Logger) { logger.Set(l) }

// entry holds either a raw buffer (Pending) or a texture (Ready), never both.
type entry struct {
	buf        *raster.Buffer
	tex        gpucontext.Texture
	lastAccess int64
	gen        uint64 // Frame of its document that last asked for it
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the access clock. The clock must be monotonically
// non-decreasing. By default the cache uses an internal access counter.
func WithClock(clock func() int64) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// Cache is a bounded map from page keys to rendered pages.
//
// Cache is safe for concurrent use.
// Cache must not be copied after creation (has mutex).
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	expected map[Key]struct{}
	failures map[Key]error
	gens     map[DocID]uint64
	capacity int
	clock    func() int64
	tick     int64 // Monotonic access counter when clock is nil

	// Deferred release queues, drained by the owning goroutine.
	gpuGarbage []gpucontext.Texture
	rawGarbage []*raster.Buffer
	rawReady   chan struct{}

	hits       uint64
	misses     uint64
	evictions  uint64
	promotions uint64
	discarded  uint64
}

// New creates a cache holding at most capacity pages. Pending pages asked
// for in the current frame of their document may exceed it until they are
// promoted.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		entries:  make(map[Key]*entry),
		expected: make(map[Key]struct{}),
		failures: make(map[Key]error),
		gens:     make(map[DocID]uint64),
		capacity: capacity,
		rawReady: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// now returns the current access time. Caller must hold c.mu.
func (c *Cache) now() int64 {
	if c.clock != nil {
		return c.clock()
	}
	c.tick++
	return c.tick
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Len returns the number of Pending and Ready entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// BeginFrame starts a new frame for doc. A Pending entry of doc that is
// neither looked up nor expected during the frame can no longer be promoted
// by it and becomes evictable.
func (c *Cache) BeginFrame(doc DocID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[doc]++
}

// RetainZoom drops the Pending entries and expectations of doc at any zoom
// other than zoom. Buffers still being rasterized for those keys are
// discarded on arrival. Ready entries stay until evicted. It returns the
// number of dropped Pending entries.
func (c *Cache) RetainZoom(doc DocID, zoom float32) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.expected {
		if key.Doc == doc && key.Zoom != zoom {
			delete(c.expected, key)
		}
	}
	n := 0
	for key, e := range c.entries {
		if key.Doc != doc || key.Zoom == zoom || e.tex != nil {
			continue
		}
		delete(c.entries, key)
		c.releaseLocked(e)
		n++
	}
	if n > 0 {
		logger.Get().Debug("pagecache: zoom changed, pending pages dropped",
			"doc", uint64(doc), "zoom", zoom, "dropped", n)
	}
	return n
}

// Expect announces that key is about to be requested from a worker.
// It returns false if the key already has an entry, is already expected, or
// carries a failure marker; in that case the request must not be submitted.
// An existing Pending entry counts as asked for in the current frame.
func (c *Cache) Expect(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.gen = c.gens[key.Doc]
		return false
	}
	if _, ok := c.expected[key]; ok {
		return false
	}
	if _, ok := c.failures[key]; ok {
		return false
	}
	c.expected[key] = struct{}{}
	return true
}

// Forget withdraws an expectation. A buffer arriving later for key is
// discarded as stale.
func (c *Cache) Forget(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.expected, key)
}

// Lookup returns the state of key. On Ready it refreshes the entry's access
// time and returns the texture; a Pending entry is marked as asked for in
// the current frame. Lookup never waits for rasterization and changes
// nothing else.
func (c *Cache) Lookup(key Key) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return Result{State: Miss}
	}
	if e.tex == nil {
		e.gen = c.gens[key.Doc]
		return Result{State: Pending}
	}
	e.lastAccess = c.now()
	c.hits++
	return Result{State: Ready, Texture: e.tex}
}

// AcceptRaw stores buf as the Pending entry for key. It is called from
// worker goroutines.
//
// If key is no longer expected (document closed, request cancelled, cache
// cleared) the buffer is discarded: AcceptRaw returns false and ownership of
// buf stays with the caller, which releases it. On success the cache owns buf.
func (c *Cache) AcceptRaw(key Key, buf *raster.Buffer) bool {
	if buf == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.expected[key]; !ok {
		c.discarded++
		logger.Get().Debug("pagecache: stale page discarded", "key", key.String())
		return false
	}
	delete(c.expected, key)
	if _, ok := c.entries[key]; ok {
		c.discarded++
		return false
	}

	c.entries[key] = &entry{buf: buf, gen: c.gens[key.Doc]}
	logger.Get().Debug("pagecache: page pending", "key", key.String(),
		"width", buf.Width(), "height", buf.Height())

	if len(c.entries) > c.capacity {
		c.evictLocked(c.capacity)
	}
	return true
}

// ReportFailure records a per-page failure marker for an expected key.
// Failures for stale keys are dropped.
func (c *Cache) ReportFailure(key Key, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.expected[key]; !ok {
		return
	}
	delete(c.expected, key)
	c.failures[key] = err
	logger.Get().Warn("pagecache: page failed", "key", key.String(), "err", err)
}

// Failure returns the failure recorded for key, or nil.
func (c *Cache) Failure(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.failures[key]
}

// ClearFailure removes the failure marker for key so it can be requested
// again. It reports whether a marker existed.
func (c *Cache) ClearFailure(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.failures[key]; !ok {
		return false
	}
	delete(c.failures, key)
	return true
}

// Promote turns the Pending entry for key into a Ready entry by uploading
// its buffer through creator. It must be called on the goroutine that owns
// the GPU context.
//
// Promote on a Ready entry returns its texture and does nothing else. Promote
// on a missing key returns (nil, nil). The raw buffer moves to the raw
// release queue once the texture exists. Pooled pixel memory is copied
// first, so creator may keep the slice it is given.
//
// If the upload fails the entry is dropped and a failure marker recorded.
func (c *Cache) Promote(key Key, creator gpucontext.TextureCreator) (gpucontext.Texture, error) {
	if creator == nil {
		return nil, ErrNilCreator
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if e.tex != nil {
		return e.tex, nil
	}

	data, err := e.buf.RGBA()
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrUnsupportedFormat, key, err)
		c.dropFailedLocked(key, e, err)
		return nil, err
	}

	if e.buf.Pooled() {
		data = slices.Clone(data)
	}
	tex, err := creator.NewTextureFromRGBA(e.buf.Width(), e.buf.Height(), data)
	if err != nil {
		err = fmt.Errorf("pagecache: create texture for %s: %w", key, err)
		c.dropFailedLocked(key, e, err)
		return nil, err
	}

	c.queueRawLocked(e.buf)
	e.buf = nil
	e.tex = tex
	e.lastAccess = c.now()
	c.promotions++
	logger.Get().Debug("pagecache: page ready", "key", key.String())
	return tex, nil
}

// dropFailedLocked removes a pending entry that could not be promoted.
// Caller must hold c.mu.
func (c *Cache) dropFailedLocked(key Key, e *entry, err error) {
	delete(c.entries, key)
	c.queueRawLocked(e.buf)
	e.buf = nil
	c.failures[key] = err
	logger.Get().Warn("pagecache: promotion failed", "key", key.String(), "err", err)
}

// EvictIfNeeded evicts entries until the cache holds at most budget. A
// non-positive budget means the configured capacity.
//
// Pending entries that no frame of their document asked for since they
// arrived go first, oldest frame first; their buffers are queued for
// DrainRaw. Then Ready entries go, least recently accessed first, their
// textures queued for DrainGPU. Pending entries asked for in the current
// frame are never evicted; if only those remain the cache stays over
// budget.
//
// EvictIfNeeded returns the number of evicted entries.
func (c *Cache) EvictIfNeeded(budget int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if budget <= 0 {
		budget = c.capacity
	}
	return c.evictLocked(budget)
}

// evictLocked removes entries until len(entries) <= budget.
// Caller must hold c.mu.
func (c *Cache) evictLocked(budget int) int {
	evicted := 0
	for len(c.entries) > budget {
		victim, e, ok := c.stalePendingLocked()
		if !ok {
			victim, e, ok = c.oldestReadyLocked()
		}
		if !ok {
			break
		}
		delete(c.entries, victim)
		c.releaseLocked(e)
		c.evictions++
		evicted++
		logger.Get().Debug("pagecache: page evicted", "key", victim.String())
	}
	return evicted
}

// stalePendingLocked returns the Pending entry whose document last asked for
// it the most frames ago, if any was skipped by the current frame.
// Caller must hold c.mu.
func (c *Cache) stalePendingLocked() (Key, *entry, bool) {
	var (
		victim Key
		oldest *entry
		age    uint64
	)
	for key, e := range c.entries {
		if e.tex != nil {
			continue
		}
		a := c.gens[key.Doc] - e.gen
		if a == 0 {
			continue
		}
		if oldest == nil || a > age || (a == age && key.less(victim)) {
			victim, oldest, age = key, e, a
		}
	}
	return victim, oldest, oldest != nil
}

// oldestReadyLocked returns the least recently accessed Ready entry.
// Caller must hold c.mu.
func (c *Cache) oldestReadyLocked() (Key, *entry, bool) {
	var (
		victim Key
		oldest *entry
	)
	for key, e := range c.entries {
		if e.tex == nil {
			continue
		}
		if oldest == nil || e.lastAccess < oldest.lastAccess ||
			(e.lastAccess == oldest.lastAccess && key.less(victim)) {
			victim, oldest = key, e
		}
	}
	return victim, oldest, oldest != nil
}

// Remove drops the entry, expectation and failure marker for key.
// It reports whether an entry existed.
func (c *Cache) Remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.expected, key)
	delete(c.failures, key)
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.releaseLocked(e)
	return true
}

// InvalidateDocument drops every entry, expectation and failure marker of
// doc, for example when it is closed or changed on disk. Resources go to the
// release queue of the goroutine type that owns them. It returns the number
// of dropped entries.
func (c *Cache) InvalidateDocument(doc DocID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if key.Doc != doc {
			continue
		}
		delete(c.entries, key)
		c.releaseLocked(e)
		n++
	}
	for key := range c.expected {
		if key.Doc == doc {
			delete(c.expected, key)
		}
	}
	for key := range c.failures {
		if key.Doc == doc {
			delete(c.failures, key)
		}
	}
	delete(c.gens, doc)
	return n
}

// Clear drops every entry, expectation and failure marker.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		c.releaseLocked(e)
	}
	c.entries = make(map[Key]*entry)
	c.expected = make(map[Key]struct{})
	c.failures = make(map[Key]error)
	c.gens = make(map[DocID]uint64)
}

// releaseLocked queues the resources of a removed entry.
// Caller must hold c.mu.
func (c *Cache) releaseLocked(e *entry) {
	if e.tex != nil {
		c.gpuGarbage = append(c.gpuGarbage, e.tex)
		e.tex = nil
	}
	if e.buf != nil {
		c.queueRawLocked(e.buf)
		e.buf = nil
	}
}

// queueRawLocked queues buf for DrainRaw and wakes a worker to release it.
// Caller must hold c.mu.
func (c *Cache) queueRawLocked(buf *raster.Buffer) {
	c.rawGarbage = append(c.rawGarbage, buf)
	select {
	case c.rawReady <- struct{}{}:
	default:
	}
}

// DrainGPU destroys textures queued by eviction or invalidation. It must be
// called on the goroutine that owns the GPU context, typically once per
// frame. It returns the number of released textures.
func (c *Cache) DrainGPU() int {
	c.mu.Lock()
	garbage := c.gpuGarbage
	c.gpuGarbage = nil
	c.mu.Unlock()

	for _, tex := range garbage {
		if destroyer, ok := tex.(textureDestroyer); ok {
			destroyer.Destroy()
		}
	}
	return len(garbage)
}

// RawReady is signalled when buffers are queued for DrainRaw. Workers wait
// on it while idle.
func (c *Cache) RawReady() <-chan struct{} {
	return c.rawReady
}

// DrainRaw hands queued raw buffers to the calling worker goroutine, which
// releases them.
func (c *Cache) DrainRaw() []*raster.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	garbage := c.rawGarbage
	c.rawGarbage = nil
	return garbage
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the number of Pending and Ready entries.
	Len int
	// Ready and Pending split Len by state.
	Ready   int
	Pending int
	// Expected is the number of requested keys not yet arrived.
	Expected int
	// Failed is the number of per-page failure markers.
	Failed int
	// Capacity is the configured capacity.
	Capacity int
	// Hits and Misses count Ready and Miss lookups.
	Hits   uint64
	Misses uint64
	// Evictions counts entries evicted under capacity pressure.
	Evictions uint64
	// Promotions counts Pending→Ready transitions.
	Promotions uint64
	// Discarded counts buffers rejected as stale.
	Discarded uint64
	// GPUReleases and RawReleases are the lengths of the release queues.
	GPUReleases int
	RawReleases int
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:         len(c.entries),
		Expected:    len(c.expected),
		Failed:      len(c.failures),
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Promotions:  c.promotions,
		Discarded:   c.discarded,
		GPUReleases: len(c.gpuGarbage),
		RawReleases: len(c.rawGarbage),
	}
	for _, e := range c.entries {
		if e.tex != nil {
			s.Ready++
		} else {
			s.Pending++
		}
	}
	return s
}
