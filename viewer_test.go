// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package docview

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/persist"
	"github.com/gogpu/docview/raster"
)

const (
	testPageW = 8
	testPageH = 12
)

// mockTexture implements gpucontext.Texture and the destroy hook.
type mockTexture struct {
	width, height int
	destroyed     bool
}

func (m *mockTexture) Width() int  { return m.width }
func (m *mockTexture) Height() int { return m.height }
func (m *mockTexture) Destroy()    { m.destroyed = true }

// mockCreator implements gpucontext.TextureCreator.
type mockCreator struct {
	textures []*mockTexture
	fail     error
}

func (m *mockCreator) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	tex := &mockTexture{width: width, height: height}
	m.textures = append(m.textures, tex)
	return tex, nil
}

// mockDrawer implements gpucontext.TextureDrawer.
type mockDrawer struct {
	creator *mockCreator
	drawn   []gpucontext.Texture
	at      [][2]float32
}

func (m *mockDrawer) DrawTexture(tex gpucontext.Texture, x, y float32) error {
	m.drawn = append(m.drawn, tex)
	m.at = append(m.at, [2]float32{x, y})
	return nil
}

func (m *mockDrawer) TextureCreator() gpucontext.TextureCreator { return m.creator }

// scriptedSource is a raster.Source with configurable failures and an
// optional gate that holds every rasterization until it is closed.
type scriptedSource struct {
	pages   int
	fail    map[int]error
	gate    chan struct{}
	started chan int
	calls   atomic.Int32
}

func (s *scriptedSource) PageCount() int { return s.pages }

func (s *scriptedSource) Rasterize(page int, zoom float32) (*raster.Buffer, error) {
	s.calls.Add(1)
	if s.started != nil {
		select {
		case s.started <- page:
		default:
		}
	}
	if s.gate != nil {
		<-s.gate
	}
	if err := s.fail[page]; err != nil {
		return nil, err
	}
	return raster.NewBuffer(testPageW, testPageH), nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.PrefetchPages = 0
	return cfg
}

func newTestViewer(t *testing.T, cfg Config, opts ...Option) *Viewer {
	t.Helper()
	opts = append([]Option{WithPersister(persist.NewMemoryStore())}, opts...)
	v, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func openTest(t *testing.T, v *Viewer, checksum string, src raster.Source) *Document {
	t.Helper()
	d, err := v.OpenWithChecksum(checksum+".pdf", checksum, src)
	if err != nil {
		t.Fatalf("OpenWithChecksum: %v", err)
	}
	return d
}

// frameUntil runs frames until done accepts the result.
func frameUntil(t *testing.T, v *Viewer, c gpucontext.TextureCreator, doc pagecache.DocID,
	pages []int, zoom float32, done func(FrameResult) bool) FrameResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := v.Frame(c, doc, pages, zoom)
		if err != nil {
			t.Fatalf("Frame: %v", err)
		}
		if done(res) {
			return res
		}
		if time.Now().After(deadline) {
			t.Fatalf("frame condition not met, last result %+v", res)
		}
		time.Sleep(time.Millisecond)
	}
}

func allReady(res FrameResult) bool {
	for _, p := range res.Pages {
		if p.State != pagecache.Ready {
			return false
		}
	}
	return true
}

func TestViewerFrameLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 2
	v := newTestViewer(t, cfg)
	d := openTest(t, v, "life", &scriptedSource{pages: 4})
	creator := &mockCreator{}

	first, err := v.Frame(creator, d.ID(), []int{0, 1}, 1)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if first.Requested != 2 {
		t.Errorf("expected 2 requests, got %d", first.Requested)
	}
	for _, p := range first.Pages {
		if p.State == pagecache.Ready {
			t.Errorf("page %d Ready on the first frame", p.Page)
		}
	}

	promoted := first.Promoted
	frameUntil(t, v, creator, d.ID(), []int{0, 1}, 1, func(res FrameResult) bool {
		promoted += res.Promoted
		return allReady(res)
	})
	if promoted != 2 {
		t.Errorf("expected 2 promotions, got %d", promoted)
	}
	if len(creator.textures) != 2 {
		t.Fatalf("expected 2 textures, got %d", len(creator.textures))
	}
	if tex := creator.textures[0]; tex.width != testPageW || tex.height != testPageH {
		t.Errorf("expected %dx%d texture, got %dx%d", testPageW, testPageH, tex.width, tex.height)
	}

	again, err := v.Frame(creator, d.ID(), []int{0, 1}, 1)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if again.Promoted != 0 || again.Requested != 0 {
		t.Errorf("steady frame should not promote or request, got %+v", again)
	}
	if len(creator.textures) != 2 {
		t.Errorf("steady frame created textures: %d", len(creator.textures))
	}
}

func TestViewerPendingUntilDrawn(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "pending", &scriptedSource{pages: 1})
	creator := &mockCreator{}

	if _, err := v.Frame(creator, d.ID(), []int{0}, 1); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for v.Cache().Stats().Pending != 1 {
		if time.Now().After(deadline) {
			t.Fatal("page never became Pending")
		}
		time.Sleep(time.Millisecond)
	}

	key := pagecache.Key{Doc: d.ID(), Page: 0, Zoom: 1}
	if got := v.Cache().Lookup(key).State; got != pagecache.Pending {
		t.Errorf("expected Pending before the next frame, got %v", got)
	}
	if len(creator.textures) != 0 {
		t.Fatal("texture created before a draw attempt")
	}

	res, err := v.Frame(creator, d.ID(), []int{0}, 1)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if res.Promoted != 1 || res.Pages[0].State != pagecache.Ready || res.Pages[0].Texture == nil {
		t.Errorf("expected promotion on the first draw attempt, got %+v", res)
	}
}

func TestViewerDraw(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "draw", &scriptedSource{pages: 3})
	creator := &mockCreator{}
	drawer := &mockDrawer{creator: creator}

	res := frameUntil(t, v, creator, d.ID(), []int{1, 2}, 1, allReady)
	err := v.Draw(drawer, res, func(page int) (float32, float32) {
		return 0, float32(page * testPageH)
	})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(drawer.drawn) != 2 {
		t.Fatalf("expected 2 draws, got %d", len(drawer.drawn))
	}
	if drawer.at[1] != [2]float32{0, 2 * testPageH} {
		t.Errorf("page 2 drawn at %v", drawer.at[1])
	}

	if err := v.Draw(nil, res, nil); err == nil {
		t.Error("expected error for nil drawer")
	}
}

func TestViewerFailureAndRetry(t *testing.T) {
	failures := make(chan pagecache.Key, 4)
	boom := errors.New("broken page stream")
	src := &scriptedSource{pages: 2, fail: map[int]error{1: boom}}

	v := newTestViewer(t, testConfig(t), WithFailureHandler(func(key pagecache.Key, err error) {
		failures <- key
	}))
	d := openTest(t, v, "fail", src)
	creator := &mockCreator{}

	res := frameUntil(t, v, creator, d.ID(), []int{0, 1}, 1, func(res FrameResult) bool {
		return res.Pages[0].State == pagecache.Ready && res.Pages[1].Err != nil
	})

	var rerr *raster.RasterizeError
	if !errors.As(res.Pages[1].Err, &rerr) || rerr.Page != 1 {
		t.Errorf("expected RasterizeError for page 1, got %v", res.Pages[1].Err)
	}
	if !errors.Is(res.Pages[1].Err, boom) {
		t.Errorf("failure should wrap the source error, got %v", res.Pages[1].Err)
	}
	select {
	case key := <-failures:
		if key.Page != 1 {
			t.Errorf("failure handler called for page %d", key.Page)
		}
	case <-time.After(time.Second):
		t.Fatal("failure handler not called")
	}

	// A failed page is not requested again on its own.
	calls := src.calls.Load()
	again, _ := v.Frame(creator, d.ID(), []int{0, 1}, 1)
	if again.Requested != 0 || src.calls.Load() != calls {
		t.Error("failed page was requested again without Retry")
	}

	if !v.Retry(d.ID(), 1, 1) {
		t.Fatal("Retry should clear the failure marker")
	}
	retried, _ := v.Frame(creator, d.ID(), []int{0, 1}, 1)
	if retried.Requested != 1 {
		t.Errorf("expected the page to be requested after Retry, got %d", retried.Requested)
	}
}

func TestViewerPromotionFailure(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "upload", &scriptedSource{pages: 1})
	creator := &mockCreator{fail: errors.New("device lost")}

	res := frameUntil(t, v, creator, d.ID(), []int{0}, 1, func(res FrameResult) bool {
		return res.Pages[0].Err != nil
	})
	if res.Pages[0].State != pagecache.Miss {
		t.Errorf("failed upload should report Miss, got %v", res.Pages[0].State)
	}
	if v.Cache().Stats().Failed != 1 {
		t.Error("failed upload should leave a failure marker")
	}
}

func TestViewerZoomChangeCancelsQueued(t *testing.T) {
	src := &scriptedSource{pages: 3, gate: make(chan struct{}), started: make(chan int, 16)}
	v := newTestViewer(t, testConfig(t))
	release := sync.OnceFunc(func() { close(src.gate) })
	t.Cleanup(release)

	d := openTest(t, v, "zoom", src)
	creator := &mockCreator{}

	if _, err := v.Frame(creator, d.ID(), []int{0, 1, 2}, 1); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	select {
	case <-src.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not start")
	}
	if got := v.Stats().Queued; got != 2 {
		t.Fatalf("expected 2 queued at zoom 1, got %d", got)
	}

	res, err := v.Frame(creator, d.ID(), []int{0, 1, 2}, 2)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if res.Requested != 3 {
		t.Errorf("expected 3 requests at zoom 2, got %d", res.Requested)
	}
	if got := v.Stats().Queued; got != 3 {
		t.Errorf("expected only zoom 2 requests queued, got %d", got)
	}
	// The zoom 1 page still being rasterized will be discarded on arrival.
	if got := v.Cache().Stats().Expected; got != 3 {
		t.Errorf("expected 3 outstanding keys, got %d", got)
	}

	release()
	frameUntil(t, v, creator, d.ID(), []int{0, 1, 2}, 2, allReady)

	// Going back to zoom 1 re-requests the cancelled pages.
	back := frameUntil(t, v, creator, d.ID(), []int{0, 1, 2}, 1, allReady)
	if len(back.Pages) != 3 {
		t.Errorf("expected 3 pages, got %d", len(back.Pages))
	}
}

// waitPending waits until the cache holds n Pending pages.
func waitPending(t *testing.T, v *Viewer, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for v.Cache().Stats().Pending != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending pages, stats %+v", n, v.Cache().Stats())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestViewerZoomChangeUnderCapacityPressure(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheCapacity = 2
	v := newTestViewer(t, cfg)
	d := openTest(t, v, "pressure", &scriptedSource{pages: 4})
	creator := &mockCreator{}

	// Pages arrive at zoom 1 but are never drawn at that zoom.
	if _, err := v.Frame(creator, d.ID(), []int{0, 1}, 1); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	waitPending(t, v, 2)

	res, err := v.Frame(creator, d.ID(), []int{0, 1}, 2)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if res.Dropped != 2 {
		t.Errorf("expected 2 zoom 1 pages dropped, got %d", res.Dropped)
	}
	frameUntil(t, v, creator, d.ID(), []int{0, 1}, 2, allReady)

	for i := range 5 {
		res, err := v.Frame(creator, d.ID(), []int{0, 1}, 2)
		if err != nil {
			t.Fatalf("Frame: %v", err)
		}
		if !allReady(res) || res.Evicted != 0 || res.Requested != 0 {
			t.Fatalf("frame %d: visible pages should stay Ready, got %+v", i, res)
		}
	}
	if s := v.Cache().Stats(); s.Pending != 0 || s.Ready != 2 {
		t.Errorf("expected 2 Ready and no Pending pages, got %+v", s)
	}
	if len(creator.textures) != 2 {
		t.Errorf("expected each page uploaded once, got %d textures", len(creator.textures))
	}
}

func TestViewerEvictsPendingNoFrameWants(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheCapacity = 2
	v := newTestViewer(t, cfg)
	d := openTest(t, v, "scrolled", &scriptedSource{pages: 6})
	creator := &mockCreator{}

	// Page 0 arrives after the reader scrolled on.
	if _, err := v.Frame(creator, d.ID(), []int{0}, 1); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	waitPending(t, v, 1)

	frameUntil(t, v, creator, d.ID(), []int{2, 3}, 1, allReady)
	for i := range 3 {
		res, err := v.Frame(creator, d.ID(), []int{2, 3}, 1)
		if err != nil {
			t.Fatalf("Frame: %v", err)
		}
		if !allReady(res) {
			t.Fatalf("frame %d: visible pages should stay Ready, got %+v", i, res)
		}
	}
	if s := v.Cache().Stats(); s.Pending != 0 || s.Len != 2 {
		t.Errorf("unwanted pending page should be evicted, got %+v", s)
	}
	for i, tex := range creator.textures {
		if tex.destroyed {
			t.Errorf("visible texture %d destroyed", i)
		}
	}
}

func TestViewerPrefetch(t *testing.T) {
	src := &scriptedSource{pages: 10, gate: make(chan struct{})}
	cfg := testConfig(t)
	cfg.PrefetchPages = 2
	v := newTestViewer(t, cfg)
	t.Cleanup(sync.OnceFunc(func() { close(src.gate) }))

	d := openTest(t, v, "prefetch", src)
	res, err := v.Frame(&mockCreator{}, d.ID(), []int{1}, 1)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	// Page 1 plus neighbours 0, 2 and 3; page -1 does not exist.
	if res.Requested != 4 {
		t.Errorf("expected 4 requests, got %d", res.Requested)
	}
	if len(res.Pages) != 1 {
		t.Errorf("prefetched pages must not be reported as visible, got %d", len(res.Pages))
	}
}

func TestViewerEviction(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheCapacity = 2
	v := newTestViewer(t, cfg)
	d := openTest(t, v, "evict", &scriptedSource{pages: 4})
	creator := &mockCreator{}

	frameUntil(t, v, creator, d.ID(), []int{0, 1}, 1, allReady)
	frameUntil(t, v, creator, d.ID(), []int{2, 3}, 1, allReady)
	if _, err := v.Frame(creator, d.ID(), []int{2, 3}, 1); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	if got := v.Cache().Len(); got > 2 {
		t.Errorf("cache over capacity: %d", got)
	}
	for i, tex := range creator.textures[:2] {
		if !tex.destroyed {
			t.Errorf("texture %d should be destroyed after eviction", i)
		}
	}
	for i, tex := range creator.textures[len(creator.textures)-2:] {
		if tex.destroyed {
			t.Errorf("visible texture %d destroyed", i)
		}
	}
}

func TestViewerFrameErrors(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	d := openTest(t, v, "errors", &scriptedSource{pages: 2})

	if _, err := v.Frame(nil, d.ID(), []int{0}, 1); !errors.Is(err, pagecache.ErrNilCreator) {
		t.Errorf("expected ErrNilCreator, got %v", err)
	}
	if _, err := v.Frame(&mockCreator{}, d.ID(), []int{0}, 0); !errors.Is(err, raster.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for zero zoom, got %v", err)
	}
	if _, err := v.Frame(&mockCreator{}, 999, []int{0}, 1); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("expected ErrDocumentClosed, got %v", err)
	}

	res, err := v.Frame(&mockCreator{}, d.ID(), []int{5}, 1)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !errors.Is(res.Pages[0].Err, raster.ErrPageOutOfRange) {
		t.Errorf("expected ErrPageOutOfRange, got %v", res.Pages[0].Err)
	}
	if res.Requested != 0 {
		t.Error("out of range page must not be requested")
	}
}

func TestViewerCloseDocument(t *testing.T) {
	store := persist.NewMemoryStore()
	v := newTestViewer(t, testConfig(t), WithPersister(store))
	d := openTest(t, v, "closing", &scriptedSource{pages: 2})
	creator := &mockCreator{}

	frameUntil(t, v, creator, d.ID(), []int{0, 1}, 1, allReady)
	if _, err := d.AddBookmark("chapter 2", 300); err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !d.Closed() {
		t.Error("document should report closed")
	}
	if err := d.Close(); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("expected ErrDocumentClosed on second close, got %v", err)
	}
	if v.Cache().Len() != 0 {
		t.Errorf("closed document pages still cached: %d", v.Cache().Len())
	}
	if _, err := v.Frame(creator, d.ID(), []int{0}, 1); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("expected ErrDocumentClosed, got %v", err)
	}
	if _, err := d.AddBookmark("late", 1); !errors.Is(err, ErrDocumentClosed) {
		t.Errorf("expected ErrDocumentClosed, got %v", err)
	}

	records, err := store.Load("closing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected the bookmark to be saved on close, got %d records", len(records))
	}

	// The textures go on the next frame of any document.
	other := openTest(t, v, "other", &scriptedSource{pages: 1})
	if _, err := v.Frame(creator, other.ID(), []int{0}, 1); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	for i, tex := range creator.textures {
		if !tex.destroyed {
			t.Errorf("texture %d of the closed document not destroyed", i)
		}
	}
}

func TestViewerPersistenceFailureKeepsState(t *testing.T) {
	store := persist.NewMemoryStore()
	v := newTestViewer(t, testConfig(t), WithPersister(store))
	d := openTest(t, v, "retry", &scriptedSource{pages: 1})

	if _, err := d.AddMark('a', 42); err != nil {
		t.Fatalf("AddMark: %v", err)
	}

	store.FailSave = errors.New("read-only file system")
	err := v.Flush()
	if !errors.Is(err, persist.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !d.Annotations().Dirty() {
		t.Error("failed save must leave the annotations unsaved")
	}
	if _, ok := d.Annotations().FindMark('a'); !ok {
		t.Error("failed save must keep the in-memory mark")
	}

	store.FailSave = nil
	if err := d.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if d.Annotations().Dirty() {
		t.Error("successful save should leave the annotations clean")
	}
	records, _ := store.Load("retry")
	if len(records) != 1 {
		t.Errorf("expected 1 saved record, got %d", len(records))
	}
}

func TestViewerReopenLoadsAnnotations(t *testing.T) {
	store := persist.NewMemoryStore()
	cfg := testConfig(t)

	v1 := newTestViewer(t, cfg, WithPersister(store))
	d := openTest(t, v1, "book", &scriptedSource{pages: 1})
	if _, err := d.AddMark('Q', 10); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	if _, err := d.AddBookmark("intro", 5); err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	if err := v1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v1.Registry().Len() != 0 {
		t.Error("Close should clear the global marks")
	}

	v2 := newTestViewer(t, cfg, WithPersister(store))
	reopened := openTest(t, v2, "book", &scriptedSource{pages: 1})
	if reopened.Annotations().Len() != 2 {
		t.Errorf("expected 2 annotations, got %d", reopened.Annotations().Len())
	}
	if g, ok := v2.Registry().Get('Q'); !ok || g.Checksum != "book" {
		t.Errorf("global mark not registered on open: %+v, %v", g, ok)
	}
	if reopened.Annotations().Dirty() {
		t.Error("freshly loaded annotations should be clean")
	}
}

func TestViewerOpenFailsOnUnreadableAnnotations(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	v := newTestViewer(t, testConfig(t), WithPersister(persist.NewFileStore(dir)))

	_, err := v.OpenWithChecksum("bad.pdf", "bad", &scriptedSource{pages: 1})
	if !errors.Is(err, persist.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
	if len(v.Documents()) != 0 {
		t.Error("document should not be open")
	}
}

func TestViewerOpenComputesChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	content := []byte("%PDF-1.4 test content")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	v := newTestViewer(t, testConfig(t))
	d, err := v.Open(path, &scriptedSource{pages: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Checksum() != persist.SumBytes(content) {
		t.Errorf("expected content checksum, got %s", d.Checksum())
	}
	if d.Path() != path || d.PageCount() != 1 {
		t.Errorf("unexpected document %s with %d pages", d.Path(), d.PageCount())
	}

	if _, err := v.Open(filepath.Join(t.TempDir(), "missing.pdf"), &scriptedSource{pages: 1}); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := v.OpenWithChecksum(path, "sum", nil); err == nil {
		t.Error("expected error for a nil source")
	}
}

func TestViewerDocumentsAreDistinct(t *testing.T) {
	v := newTestViewer(t, testConfig(t))
	a := openTest(t, v, "same", &scriptedSource{pages: 1})
	b := openTest(t, v, "same", &scriptedSource{pages: 1})

	if a.ID() == b.ID() {
		t.Error("each open must get a fresh DocID")
	}
	docs := v.Documents()
	if len(docs) != 2 || docs[0] != a || docs[1] != b {
		t.Errorf("Documents() should list both in open order, got %d", len(docs))
	}
}

func TestViewerClose(t *testing.T) {
	v, err := New(testConfig(t), WithPersister(persist.NewMemoryStore()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := openTest(t, v, "shutdown", &scriptedSource{pages: 2})
	creator := &mockCreator{}
	frameUntil(t, v, creator, d.ID(), []int{0, 1}, 1, allReady)

	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	for i, tex := range creator.textures {
		if !tex.destroyed {
			t.Errorf("texture %d not destroyed on Close", i)
		}
	}
	if !d.Closed() {
		t.Error("documents should be closed with the viewer")
	}
	if _, err := v.Frame(creator, d.ID(), []int{0}, 1); !errors.Is(err, ErrViewerClosed) {
		t.Errorf("expected ErrViewerClosed, got %v", err)
	}
	if _, err := v.OpenWithChecksum("x", "x", &scriptedSource{pages: 1}); !errors.Is(err, ErrViewerClosed) {
		t.Errorf("expected ErrViewerClosed, got %v", err)
	}
	if v.Stats().Workers.Rendered != 2 {
		t.Errorf("expected 2 rendered pages, got %d", v.Stats().Workers.Rendered)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 0
	if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFramePriority(t *testing.T) {
	visible := []int{4, 5, 6, 7, 8}
	centre := viewportCentre(visible)

	if d := distance(6, centre); d != 0 {
		t.Errorf("expected centre page distance 0, got %d", d)
	}
	if distance(4, centre) != distance(8, centre) {
		t.Error("pages equally far from the centre should tie")
	}
	if distance(5, centre) >= distance(4, centre) {
		t.Error("nearer page should rank higher")
	}

	even := []int{2, 3}
	if distance(2, viewportCentre(even)) != distance(3, viewportCentre(even)) {
		t.Error("both pages of an even span are equally central")
	}
}
