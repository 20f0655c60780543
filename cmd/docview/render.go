// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/gogpu/docview"
	"github.com/gogpu/docview/pagecache"
	"github.com/gogpu/docview/persist"
	"github.com/gogpu/docview/raster"
)

// pageGap is the vertical space between pages on a contact sheet.
const pageGap = 8

func renderCommand(g *globalFlags) *Command {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	g.register(fs)
	pages := fs.StringP("pages", "p", "", "pages to render, e.g. 0-3,7 (default: all)")
	zoom := fs.Float32P("zoom", "z", 1, "zoom level (1 = 72 DPI)")
	out := fs.StringP("out", "o", ".", "directory for page PNGs")
	sheet := fs.String("sheet", "", "also draw all pages onto one PNG")
	timeout := fs.Duration("timeout", time.Minute, "give up after this long")
	workers := fs.Int("workers", 0, "worker goroutines (overrides config)")

	return &Command{
		Flags: fs,
		Usage: "render <file|dir> [flags]",
		Short: "Rasterize pages through the page cache and write PNGs",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("render: expected one document path")
			}
			cfg, err := g.loadConfig(o)
			if err != nil {
				return err
			}
			if *workers > 0 {
				cfg.Workers = *workers
			}
			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			return renderDocument(ctx, o, cfg, renderJob{
				path:  args[0],
				pages: *pages,
				zoom:  *zoom,
				out:   *out,
				sheet: *sheet,
			})
		},
	}
}

type renderJob struct {
	path  string
	pages string
	zoom  float32
	out   string
	sheet string
}

func renderDocument(ctx context.Context, o *IO, cfg docview.Config, job renderJob) (err error) {
	pool := raster.NewPool()
	src, checksum, closeSrc, err := openSource(job.path, pool)
	if err != nil {
		return err
	}
	defer closeSrc()

	pages, err := parsePages(job.pages, src.PageCount())
	if err != nil {
		return err
	}

	// Every requested page is visible at once, so the cache must hold them
	// all or the frames would evict each other's pages.
	cfg.CacheCapacity = max(cfg.CacheCapacity, len(pages))
	cfg.PrefetchPages = 0

	v, err := docview.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, v.Close())
	}()

	d, err := v.OpenWithChecksum(job.path, checksum, src)
	if err != nil {
		return err
	}

	creator := &headlessCreator{}
	res, err := frameUntilSettled(ctx, v, creator, d.ID(), pages, job.zoom)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(job.out, 0o750); err != nil {
		return err
	}
	var failed []error
	for _, p := range res.Pages {
		if p.Err != nil {
			failed = append(failed, fmt.Errorf("page %d: %w", p.Page, p.Err))
			continue
		}
		tex := p.Texture.(*headlessTexture)
		name := filepath.Join(job.out, fmt.Sprintf("page-%04d.png", p.Page))
		if err := writePNG(name, tex); err != nil {
			return err
		}
		o.Printf("%s %dx%d\n", name, tex.Width(), tex.Height())
	}

	if job.sheet != "" {
		if err := drawSheet(v, res, job.sheet); err != nil {
			return err
		}
		o.Printf("%s\n", job.sheet)
	}

	s := v.Stats()
	o.Printf("rendered %d pages (%d failed) in %d frames, %d promotions\n",
		len(res.Pages)-len(failed), len(failed), s.Frames, s.Cache.Promotions)
	return errors.Join(failed...)
}

// frameUntilSettled runs frames until every page is Ready or failed.
func frameUntilSettled(ctx context.Context, v *docview.Viewer, creator *headlessCreator,
	doc pagecache.DocID, pages []int, zoom float32) (docview.FrameResult, error) {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for {
		res, err := v.Frame(creator, doc, pages, zoom)
		if err != nil {
			return docview.FrameResult{}, err
		}
		if settled(res) {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return docview.FrameResult{}, fmt.Errorf("render: %w", ctx.Err())
		case <-tick.C:
		}
	}
}

func settled(res docview.FrameResult) bool {
	for _, p := range res.Pages {
		if p.State != pagecache.Ready && p.Err == nil {
			return false
		}
	}
	return true
}

// drawSheet draws the Ready pages of res below each other onto one image.
func drawSheet(v *docview.Viewer, res docview.FrameResult, path string) error {
	offsets := make(map[int]int, len(res.Pages))
	width, height := 0, 0
	for _, p := range res.Pages {
		if p.Texture == nil {
			continue
		}
		offsets[p.Page] = height
		width = max(width, p.Texture.Width())
		height += p.Texture.Height() + pageGap
	}
	if width == 0 {
		return errors.New("render: no page to draw")
	}

	sheet := newHeadlessDrawer(width, height-pageGap)
	err := v.Draw(sheet, res, func(page int) (float32, float32) {
		return 0, float32(offsets[page])
	})
	if err != nil {
		return err
	}
	return writePNG(path, &headlessTexture{img: sheet.img})
}

func writePNG(path string, tex *headlessTexture) (err error) {
	f, err := os.Create(path) //nolint:gosec // output path is user-provided
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, tex.img)
}

// openSource opens a directory of page images or a document file. Image
// directories are keyed by their absolute path since they have no single
// content checksum.
func openSource(path string, pool *raster.Pool) (raster.Source, string, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", nil, err
	}
	if info.IsDir() {
		src, err := raster.OpenImageDir(path, pool)
		if err != nil {
			return nil, "", nil, err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, "", nil, err
		}
		return src, persist.SumBytes([]byte(abs)), func() {}, nil
	}

	checksum, err := persist.NewChecksummer(1).Sum(path)
	if err != nil {
		return nil, "", nil, err
	}
	src, err := raster.OpenFitz(path, pool)
	if err != nil {
		return nil, "", nil, err
	}
	return src, checksum, func() { _ = src.Close() }, nil
}

// parsePages parses a list like "0-3,7,9-" into page indices. An empty
// list selects every page.
func parsePages(list string, count int) ([]int, error) {
	if count <= 0 {
		return nil, errors.New("render: document has no pages")
	}
	if strings.TrimSpace(list) == "" {
		pages := make([]int, count)
		for i := range pages {
			pages[i] = i
		}
		return pages, nil
	}

	seen := make(map[int]bool)
	var pages []int
	for part := range strings.SplitSeq(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("render: bad page %q", part)
		}
		last := first
		if isRange {
			if hi == "" {
				last = count - 1
			} else if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("render: bad page range %q", part)
			}
		}
		if first < 0 || last >= count || first > last {
			return nil, fmt.Errorf("%w: %q of %d pages", raster.ErrPageOutOfRange, part, count)
		}
		for p := first; p <= last; p++ {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	return pages, nil
}
