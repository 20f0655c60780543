// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/gogpu/docview/annotation"
	"github.com/gogpu/docview/persist"
)

func annotationsCommand(g *globalFlags) *Command {
	fs := flag.NewFlagSet("annotations", flag.ContinueOnError)
	g.register(fs)
	kind := fs.StringP("kind", "k", "", "only list this kind: mark, bookmark, highlight or portal")
	output := fs.StringP("output", "o", "", "export to this file instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "annotations list|export|import|search <file|checksum> [arg]",
		Short: "List, export, import or search a document's annotations",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errors.New("annotations: expected a subcommand and a document")
			}
			cfg, err := g.loadConfig(o)
			if err != nil {
				return err
			}
			checksum, err := resolveChecksum(args[1])
			if err != nil {
				return err
			}
			files := persist.NewFileStore(cfg.DataDir)

			switch sub, rest := args[0], args[2:]; sub {
			case "list":
				store, err := loadStore(files, checksum)
				if err != nil {
					return err
				}
				list := store.List(annotation.Kind(*kind))
				if g.wantJSON(o) {
					records := make([]annotation.Record, len(list))
					for i, a := range list {
						records[i] = annotation.ToRecord(a, checksum)
					}
					return writeJSON(o.out, records)
				}
				return writeTable(o.out, list)

			case "export":
				records, err := files.Load(checksum)
				if err != nil {
					return err
				}
				if records == nil {
					records = []annotation.Record{}
				}
				if *output == "" {
					return writeJSON(o.out, records)
				}
				return writeJSONFile(*output, records)

			case "import":
				if len(rest) != 1 {
					return errors.New("annotations import: expected a records file")
				}
				return importRecords(o, files, checksum, rest[0])

			case "search":
				if len(rest) != 1 {
					return errors.New("annotations search: expected a query")
				}
				store, err := loadStore(files, checksum)
				if err != nil {
					return err
				}
				found := store.SearchBookmarks(rest[0])
				if g.wantJSON(o) {
					records := make([]annotation.Record, len(found))
					for i, a := range found {
						records[i] = annotation.ToRecord(a, checksum)
					}
					return writeJSON(o.out, records)
				}
				return writeTable(o.out, found)

			default:
				return fmt.Errorf("annotations: unknown subcommand %q", sub)
			}
		},
	}
}

// importRecords merges the records in path into the document's saved
// annotations.
func importRecords(o *IO, files *persist.FileStore, checksum, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // input path is user-provided
	if err != nil {
		return err
	}
	var records []annotation.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: %s: %w", annotation.ErrInvalidRecord, path, err)
	}

	store, err := loadStore(files, checksum)
	if err != nil {
		return err
	}
	stats, err := store.Merge(records)
	if err != nil {
		return err
	}
	if store.Dirty() {
		if err := files.Save(checksum, store.Serialize(checksum)); err != nil {
			return err
		}
		if err := supersede(files, checksum, store); err != nil {
			return err
		}
	}
	o.Printf("added %d, updated %d, duplicates %d, unchanged %d\n",
		stats.Added, stats.Updated, stats.Duplicates, stats.Unchanged)
	return nil
}

// resolveChecksum returns the content checksum of an existing file, or arg
// itself when it names no file.
func resolveChecksum(arg string) (string, error) {
	info, err := os.Stat(arg)
	switch {
	case err == nil && info.IsDir():
		return "", fmt.Errorf("%s is a directory", arg)
	case err == nil:
		return persist.NewChecksummer(1).Sum(arg)
	case strings.ContainsAny(arg, `/\.`):
		return "", err
	default:
		return arg, nil
	}
}

func loadStore(files persist.Persister, checksum string) (*annotation.Store, error) {
	records, err := files.Load(checksum)
	if err != nil {
		return nil, err
	}
	store := annotation.NewStore()
	if err := store.Load(records); err != nil {
		return nil, err
	}
	return store, nil
}

func writeTable(w io.Writer, list []annotation.Annotation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tPOSITION\tDETAIL")
	for _, a := range list {
		pos, detail := describe(a)
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\n", a.Kind(), shortID(a.ID), pos, detail)
	}
	return tw.Flush()
}

func describe(a annotation.Annotation) (float64, string) {
	switch {
	case a.Mark() != nil:
		m := a.Mark()
		return m.YOffset, fmt.Sprintf("'%c'", m.Symbol)
	case a.BookMark() != nil:
		b := a.BookMark()
		return b.YPosition(), b.Description
	case a.Highlight() != nil:
		h := a.Highlight()
		detail := fmt.Sprintf("type %c", h.Type)
		if h.Description != "" {
			detail += ": " + h.Description
		}
		return h.Top(), detail
	case a.Portal() != nil:
		p := a.Portal()
		return p.SrcOffsetY, "to " + shortID(p.Dst.DocumentChecksum)
	}
	return 0, ""
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v any) (err error) {
	f, err := os.Create(path) //nolint:gosec // output path is user-provided
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return writeJSON(f, v)
}
