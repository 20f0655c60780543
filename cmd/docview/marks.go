// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/gogpu/docview/annotation"
	"github.com/gogpu/docview/persist"
)

func marksCommand(g *globalFlags) *Command {
	fs := flag.NewFlagSet("marks", flag.ContinueOnError)
	g.register(fs)

	return &Command{
		Flags: fs,
		Usage: "marks set|goto|list [<file|checksum> <symbol> [y]]",
		Short: "Set or jump to marks; uppercase marks work across documents",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errors.New("marks: expected a subcommand")
			}
			cfg, err := g.loadConfig(o)
			if err != nil {
				return err
			}
			files := persist.NewFileStore(cfg.DataDir)

			switch args[0] {
			case "set":
				if len(args) != 4 {
					return errors.New("marks set: expected <file|checksum> <symbol> <y>")
				}
				symbol, err := parseSymbol(args[2])
				if err != nil {
					return err
				}
				y, err := strconv.ParseFloat(args[3], 64)
				if err != nil {
					return fmt.Errorf("marks set: bad offset %q", args[3])
				}
				return setMark(o, files, args[1], symbol, y)

			case "goto":
				if len(args) != 3 {
					return errors.New("marks goto: expected <file|checksum> <symbol>")
				}
				symbol, err := parseSymbol(args[2])
				if err != nil {
					return err
				}
				return gotoMark(o, files, args[1], symbol)

			case "list":
				registry, err := loadRegistry(files)
				if err != nil {
					return err
				}
				marks := registry.Marks()
				if g.wantJSON(o) {
					type entry struct {
						Symbol   string  `json:"symbol"`
						Checksum string  `json:"document_checksum"`
						YOffset  float64 `json:"y_offset"`
					}
					out := make([]entry, len(marks))
					for i, m := range marks {
						out[i] = entry{string(m.Mark.Mark().Symbol), m.Checksum, m.Mark.Mark().YOffset}
					}
					return writeJSON(o.out, out)
				}
				tw := tabwriter.NewWriter(o.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MARK\tDOCUMENT\tPOSITION")
				for _, m := range marks {
					fmt.Fprintf(tw, "%c\t%s\t%.1f\n", m.Mark.Mark().Symbol, shortID(m.Checksum), m.Mark.Mark().YOffset)
				}
				return tw.Flush()

			default:
				return fmt.Errorf("marks: unknown subcommand %q", args[0])
			}
		},
	}
}

func parseSymbol(s string) (byte, error) {
	if len(s) != 1 || !annotation.ValidSymbol(s[0]) {
		return 0, fmt.Errorf("%w: %q", annotation.ErrInvalidSymbol, s)
	}
	return s[0], nil
}

func setMark(o *IO, files *persist.FileStore, doc string, symbol byte, y float64) error {
	checksum, err := resolveChecksum(doc)
	if err != nil {
		return err
	}
	store, err := loadStore(files, checksum)
	if err != nil {
		return err
	}
	if _, err := store.SetMark(symbol, y); err != nil {
		return err
	}
	if err := files.Save(checksum, store.Serialize(checksum)); err != nil {
		return err
	}
	if err := supersede(files, checksum, store); err != nil {
		return err
	}
	o.Printf("mark '%c' set at %g\n", symbol, y)
	return nil
}

func gotoMark(o *IO, files *persist.FileStore, doc string, symbol byte) error {
	checksum, err := resolveChecksum(doc)
	if err != nil {
		return err
	}
	store, err := loadStore(files, checksum)
	if err != nil {
		return err
	}
	registry, err := loadRegistry(files)
	if err != nil {
		return err
	}
	target, err := registry.Resolve(store, checksum, symbol)
	if err != nil {
		return err
	}
	where := "this document"
	if !target.Local {
		where = "document " + target.Checksum
	}
	o.Printf("%g in %s\n", target.YOffset, where)
	return nil
}

// supersede removes, from every other saved document, the global marks that
// are older than the ones in store.
func supersede(files *persist.FileStore, checksum string, store *annotation.Store) error {
	var global []annotation.Annotation
	for _, a := range store.List(annotation.KindMark) {
		if a.Mark().IsGlobal() {
			global = append(global, a)
		}
	}
	if len(global) == 0 {
		return nil
	}
	sums, err := files.Checksums()
	if err != nil {
		return err
	}
	for _, sum := range sums {
		if sum == checksum {
			continue
		}
		other, err := loadStore(files, sum)
		if err != nil {
			return err
		}
		for _, a := range global {
			old, ok := other.FindMark(a.Mark().Symbol)
			if ok && old.Modified.Before(a.Modified) {
				if err := other.Remove(old.ID); err != nil {
					return err
				}
			}
		}
		if other.Dirty() {
			if err := files.Save(sum, other.Serialize(sum)); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadRegistry collects the uppercase marks of every saved document.
func loadRegistry(files *persist.FileStore) (*annotation.Registry, error) {
	sums, err := files.Checksums()
	if err != nil {
		return nil, err
	}
	registry := annotation.NewRegistry()
	for _, sum := range sums {
		store, err := loadStore(files, sum)
		if err != nil {
			return nil, err
		}
		for _, a := range store.List(annotation.KindMark) {
			if a.Mark().IsGlobal() {
				if _, err := registry.Put(sum, a); err != nil {
					return nil, err
				}
			}
		}
	}
	return registry, nil
}
