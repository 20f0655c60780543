// Package docview provides the page cache and annotation layer of a
// document viewer.
//
// # Overview
//
// Rasterizing a document page takes tens to hundreds of milliseconds, far
// longer than a display frame. docview keeps rendering off the render
// goroutine: pages are rasterized by background workers into CPU pixel
// buffers, then uploaded to GPU textures on the render goroutine the first
// time the page is drawn. Annotations (marks, bookmarks, highlights and
// portals) are kept per document, keyed by content checksum, and saved as
// JSON files.
//
// # Quick Start
//
//	import "github.com/gogpu/docview"
//
//	v, err := docview.New(docview.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer v.Close()
//
//	doc, err := v.Open("paper.pdf", src) // src is a raster.Source
//
//	// Once per display frame, on the render goroutine:
//	res, err := v.Frame(dc.TextureCreator(), doc.ID(), []int{3, 4}, 1.5)
//	err = v.Draw(dc, res, layout)
//
// # Architecture
//
// The module is organized into:
//   - docview: Viewer, Document, Config (UI-side glue)
//   - render: priority request queue and rasterization workers
//   - pagecache: Pending/Ready page cache with deferred release queues
//   - raster: page sources and pixel buffers
//   - annotation: annotation store, comparison and global mark registry
//   - persist: annotation files and content checksums
//
// # Threading
//
// Frame, Draw and Close run on the render goroutine, which owns the GPU
// context. Workers never touch textures and the render goroutine never
// rasterizes. Textures are destroyed on the render goroutine and raw
// buffers are released on workers, each through its own release queue.
//
// # Coordinate System
//
// Annotation positions are in document space:
//   - Origin (0,0) at the top-left of the first page
//   - X increases right
//   - Y increases down, continuing across pages
package docview

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
