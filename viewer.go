// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/docview/annotation"
	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/persist"
	"github.com/gogpu/docview/raster"
	"github.com/gogpu/docview/render"
)

// Viewer errors.
var (
	// ErrViewerClosed is returned by operations on a closed Viewer.
	ErrViewerClosed = errors.New("docview: viewer closed")

	// ErrDocumentClosed is returned for a document that is not open.
	ErrDocumentClosed = errors.New("docview: document closed")
)

// Priority layout: each frame outranks every earlier frame, visible pages
// outrank prefetched ones and nearer pages outrank farther ones.
const (
	framePriority    = 1024
	prefetchPriority = 512
)

// Viewer ties the render queue, the worker pool, the page cache and the
// annotation stores of open documents together.
//
// Frame, Draw and Close must be called on the goroutine that owns the GPU
// context (the render goroutine). Everything else is safe for concurrent use.
type Viewer struct {
	cfg  Config
	opts options

	cache     *pagecache.Cache
	queue     *render.Queue
	workers   *render.Workers
	registry  *annotation.Registry
	persister persist.Persister
	checksums *persist.Checksummer

	mu      sync.RWMutex
	docs    map[pagecache.DocID]*Document
	nextDoc pagecache.DocID

	frame  atomic.Uint64
	closed atomic.Bool
}

// New creates a Viewer and starts its workers.
func New(cfg Config, opts ...Option) (*Viewer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if o.persister == nil {
		o.persister = persist.NewFileStore(cfg.DataDir)
	}

	var cacheOpts []pagecache.Option
	if o.clock != nil {
		cacheOpts = append(cacheOpts, pagecache.WithClock(o.clock))
	}

	v := &Viewer{
		cfg:       cfg,
		opts:      o,
		cache:     pagecache.New(cfg.CacheCapacity, cacheOpts...),
		queue:     render.NewQueue(),
		registry:  annotation.NewRegistry(),
		persister: o.persister,
		checksums: persist.NewChecksummer(persist.DefaultChecksumCacheSize),
		docs:      make(map[pagecache.DocID]*Document),
	}

	var sink render.Sink = v.cache
	if o.onFailure != nil {
		sink = failureSink{Cache: v.cache, onFailure: o.onFailure}
	}
	v.workers = render.NewWorkers(v.queue, render.ResolverFunc(v.source), sink, cfg.Workers)
	v.workers.Start(context.Background())

	logger.Get().Info("docview: viewer started",
		"workers", cfg.Workers, "cache_capacity", cfg.CacheCapacity)
	return v, nil
}

// failureSink forwards failures to a user callback after recording them.
type failureSink struct {
	*pagecache.Cache
	onFailure func(pagecache.Key, error)
}

func (s failureSink) ReportFailure(key pagecache.Key, err error) {
	s.Cache.ReportFailure(key, err)
	s.onFailure(key, err)
}

// Config returns the configuration the viewer was created with.
func (v *Viewer) Config() Config {
	return v.cfg
}

// Registry returns the global mark registry shared by all documents.
func (v *Viewer) Registry() *annotation.Registry {
	return v.registry
}

// Cache returns the page cache.
func (v *Viewer) Cache() *pagecache.Cache {
	return v.cache
}

// source resolves a document for the workers.
func (v *Viewer) source(doc pagecache.DocID) (raster.Source, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	d, ok := v.docs[doc]
	if !ok {
		return nil, false
	}
	return d.src, true
}

// document returns the open document doc.
func (v *Viewer) document(doc pagecache.DocID) (*Document, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	d, ok := v.docs[doc]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDocumentClosed, doc)
	}
	return d, nil
}

// markDeleted reports whether checksum is open and none of its documents
// holds mark symbol any more.
func (v *Viewer) markDeleted(checksum string, symbol byte) bool {
	open := false
	for _, d := range v.Documents() {
		if d.checksum != checksum {
			continue
		}
		if _, ok := d.store.FindMark(symbol); ok {
			return false
		}
		open = true
	}
	return open
}

// Document returns the open document doc.
func (v *Viewer) Document(doc pagecache.DocID) (*Document, bool) {
	d, err := v.document(doc)
	return d, err == nil
}

// Documents returns the open documents in the order they were opened.
func (v *Viewer) Documents() []*Document {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]*Document, 0, len(v.docs))
	for id := pagecache.DocID(1); id <= v.nextDoc; id++ {
		if d, ok := v.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Open opens the document at path, rendered by src. Its annotations are
// keyed by the SHA-256 of the file content.
func (v *Viewer) Open(path string, src raster.Source) (*Document, error) {
	if v.closed.Load() {
		return nil, ErrViewerClosed
	}
	checksum, err := v.checksums.Sum(path)
	if err != nil {
		return nil, err
	}
	return v.OpenWithChecksum(path, checksum, src)
}

// OpenWithChecksum opens a document whose checksum is already known. It
// assigns a fresh DocID, loads the persisted annotations and registers the
// document's uppercase marks globally.
//
// If the persisted annotations cannot be read the document is not opened,
// so a later save cannot overwrite them.
func (v *Viewer) OpenWithChecksum(path, checksum string, src raster.Source) (*Document, error) {
	if v.closed.Load() {
		return nil, ErrViewerClosed
	}
	if src == nil {
		return nil, fmt.Errorf("docview: open %s: nil source", path)
	}
	if checksum == "" {
		return nil, fmt.Errorf("docview: open %s: empty checksum", path)
	}

	records, err := v.persister.Load(checksum)
	if err != nil {
		return nil, fmt.Errorf("docview: open %s: %w", path, err)
	}
	store := annotation.NewStore(annotation.WithNow(v.opts.now))
	if err := store.Load(records); err != nil {
		return nil, fmt.Errorf("docview: open %s: %w", path, err)
	}

	for _, a := range store.List(annotation.KindMark) {
		if a.Mark().IsGlobal() {
			if _, err := v.registry.Put(checksum, a); err != nil {
				return nil, err
			}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed.Load() {
		return nil, ErrViewerClosed
	}
	v.nextDoc++
	d := &Document{
		v:        v,
		id:       v.nextDoc,
		path:     path,
		checksum: checksum,
		src:      src,
		store:    store,
		state:    annotation.DefaultBookState(),
	}
	v.docs[d.id] = d

	logger.Get().Info("docview: document opened", "doc", uint64(d.id), "path", path,
		"pages", src.PageCount(), "annotations", store.Len())
	return d, nil
}

// CloseDocument cancels the document's queued requests, drops its pages
// from the cache and persists its annotations. The document is closed even
// if saving fails; the error is returned.
func (v *Viewer) CloseDocument(doc pagecache.DocID) error {
	v.mu.Lock()
	d, ok := v.docs[doc]
	delete(v.docs, doc)
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrDocumentClosed, doc)
	}

	d.closed.Store(true)
	cancelled := v.queue.CancelDocument(doc)
	dropped := v.cache.InvalidateDocument(doc)
	err := d.persist()

	logger.Get().Info("docview: document closed", "doc", uint64(doc),
		"cancelled", cancelled, "dropped", dropped)
	return err
}

// PageResult is the outcome of one visible page in a frame.
type PageResult struct {
	Page  int
	State pagecache.State
	// Texture is set when State is Ready. It stays valid until the next
	// call to Frame.
	Texture gpucontext.Texture
	// Err is the page's failure marker or promotion error.
	Err error
}

// FrameResult is returned by Frame.
type FrameResult struct {
	Frame uint64
	Pages []PageResult
	// Promoted counts Pending pages uploaded during this frame.
	Promoted int
	// Requested counts pages newly submitted to the workers.
	Requested int
	// Evicted counts pages evicted at the end of the frame.
	Evicted int
	// Dropped counts Pending pages at another zoom dropped by this frame.
	Dropped int
	// Released counts textures destroyed at the start of the frame.
	Released int
}

// Frame runs one display tick for doc at zoom. For each visible page it
// looks the page up: a Ready page is returned for drawing, a Pending page is
// promoted to a texture through creator and a missing page is requested
// from the workers, nearest to the centre of the viewport first. Up to
// PrefetchPages neighbours on each side are requested at a lower priority.
//
// Textures evicted by the previous frame are destroyed first. Pages at
// other zoom levels that are queued or not yet drawn are dropped. Pages
// over capacity are evicted last, starting with Pending pages this frame
// did not ask for. Frame must be called on the render goroutine.
func (v *Viewer) Frame(creator gpucontext.TextureCreator, doc pagecache.DocID, visible []int, zoom float32) (FrameResult, error) {
	if v.closed.Load() {
		return FrameResult{}, ErrViewerClosed
	}
	if creator == nil {
		return FrameResult{}, pagecache.ErrNilCreator
	}
	if zoom <= 0 {
		return FrameResult{}, fmt.Errorf("%w: zoom %g", raster.ErrUnsupported, zoom)
	}
	d, err := v.document(doc)
	if err != nil {
		return FrameResult{}, err
	}

	frame := v.frame.Add(1)
	res := FrameResult{
		Frame:    frame,
		Pages:    make([]PageResult, 0, len(visible)),
		Released: v.cache.DrainGPU(),
	}

	v.cache.BeginFrame(doc)

	// Pages at other zoom levels are stale now.
	v.queue.CancelFunc(func(k pagecache.Key) bool {
		return k.Doc == doc && k.Zoom != zoom
	})
	res.Dropped = v.cache.RetainZoom(doc, zoom)

	pages := d.src.PageCount()
	base := int64(frame) * framePriority
	centre := viewportCentre(visible)

	for _, page := range visible {
		pr := PageResult{Page: page}
		if err := raster.CheckPage(page, pages); err != nil {
			pr.Err = err
			res.Pages = append(res.Pages, pr)
			continue
		}

		key := pagecache.Key{Doc: doc, Page: page, Zoom: zoom}
		r := v.cache.Lookup(key)
		pr.State = r.State
		switch r.State {
		case pagecache.Ready:
			pr.Texture = r.Texture
		case pagecache.Pending:
			tex, err := v.cache.Promote(key, creator)
			switch {
			case err != nil:
				pr.State = pagecache.Miss
				pr.Err = err
			case tex != nil:
				pr.State = pagecache.Ready
				pr.Texture = tex
				res.Promoted++
			}
		case pagecache.Miss:
			if err := v.cache.Failure(key); err != nil {
				pr.Err = err
			} else if v.request(key, base-distance(page, centre)) {
				res.Requested++
			}
		}
		res.Pages = append(res.Pages, pr)
	}

	if len(visible) > 0 {
		first, last := pageSpan(visible)
		for i := 1; i <= v.cfg.PrefetchPages; i++ {
			prio := base - prefetchPriority - int64(i)
			for _, page := range [2]int{first - i, last + i} {
				if page < 0 || page >= pages {
					continue
				}
				if v.request(pagecache.Key{Doc: doc, Page: page, Zoom: zoom}, prio) {
					res.Requested++
				}
			}
		}
	}

	res.Evicted = v.cache.EvictIfNeeded(0)
	return res, nil
}

// request submits key unless it is cached, requested or failed.
func (v *Viewer) request(key pagecache.Key, priority int64) bool {
	if !v.cache.Expect(key) {
		// Already queued: keep its priority current.
		if v.queue.Contains(key) {
			v.queue.Submit(key, priority)
		}
		return false
	}
	if !v.queue.Submit(key, priority) {
		v.cache.Forget(key)
		return false
	}
	return true
}

// viewportCentre returns twice the middle of the visible page span, so it
// stays integral.
func viewportCentre(visible []int) int {
	if len(visible) == 0 {
		return 0
	}
	first, last := pageSpan(visible)
	return first + last
}

// distance returns twice the distance of page from the centre computed by
// viewportCentre.
func distance(page, centre int) int64 {
	d := int64(2*page - centre)
	if d < 0 {
		d = -d
	}
	return d
}

// pageSpan returns the smallest and largest page in visible.
func pageSpan(visible []int) (first, last int) {
	first, last = visible[0], visible[0]
	for _, p := range visible[1:] {
		first = min(first, p)
		last = max(last, p)
	}
	return first, last
}

// Draw draws the Ready pages of res. place returns the position of a page
// in drawer coordinates. Pages that are not Ready are skipped.
func (v *Viewer) Draw(dc gpucontext.TextureDrawer, res FrameResult, place func(page int) (x, y float32)) error {
	if dc == nil {
		return fmt.Errorf("docview: nil texture drawer")
	}
	for _, p := range res.Pages {
		if p.State != pagecache.Ready || p.Texture == nil {
			continue
		}
		x, y := place(p.Page)
		if err := dc.DrawTexture(p.Texture, x, y); err != nil {
			return fmt.Errorf("docview: draw page %d: %w", p.Page, err)
		}
	}
	return nil
}

// Retry clears the failure marker of a page so the next frame requests it
// again. It reports whether a marker existed.
func (v *Viewer) Retry(doc pagecache.DocID, page int, zoom float32) bool {
	return v.cache.ClearFailure(pagecache.Key{Doc: doc, Page: page, Zoom: zoom})
}

// Flush saves the annotations of every open document that has unsaved
// changes. Failed documents stay dirty; their errors are joined.
func (v *Viewer) Flush() error {
	var errs []error
	for _, d := range v.Documents() {
		if err := d.persist(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats contains viewer statistics.
type Stats struct {
	Documents int
	Frames    uint64
	Queued    int
	InFlight  int
	Cache     pagecache.Stats
	Workers   render.Stats
}

// Stats returns viewer statistics.
func (v *Viewer) Stats() Stats {
	v.mu.RLock()
	docs := len(v.docs)
	v.mu.RUnlock()

	return Stats{
		Documents: docs,
		Frames:    v.frame.Load(),
		Queued:    v.queue.Len(),
		InFlight:  v.queue.InFlight(),
		Cache:     v.cache.Stats(),
		Workers:   v.workers.Stats(),
	}
}

// Close stops the workers, saves dirty annotations, releases every cached
// page and clears the global mark registry. It must be called on the render
// goroutine. Close is safe to call multiple times; only the first call
// returns the save errors.
func (v *Viewer) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}

	v.queue.Close()
	v.workers.Close()

	err := v.Flush()

	v.mu.Lock()
	for id, d := range v.docs {
		d.closed.Store(true)
		delete(v.docs, id)
	}
	v.mu.Unlock()

	v.cache.Clear()
	v.cache.DrainGPU()
	for _, buf := range v.cache.DrainRaw() {
		buf.Release()
	}
	v.registry.Clear()

	logger.Get().Info("docview: viewer closed")
	return err
}
