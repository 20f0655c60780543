// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command docview renders document pages and manages annotations from the
// command line.
//
// Usage:
//
//	docview render <file|dir> [--pages 0-3,7] [--zoom 1.5] [--out dir] [--sheet file]
//	docview annotations list|export|import|search <file|checksum> ...
//	docview marks set|goto <file|checksum> <symbol> [y]
//	docview marks list
//	docview print-config
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/gogpu/docview"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	o := &IO{
		out:    os.Stdout,
		errOut: os.Stderr,
		tty:    term.IsTerminal(int(os.Stdout.Fd())),
	}
	os.Exit(run(ctx, o, os.Args[1:]))
}

// IO bundles the command output streams.
type IO struct {
	out    io.Writer
	errOut io.Writer
	// tty is true when out is a terminal; list commands then print tables
	// instead of JSON.
	tty bool
}

func (o *IO) Printf(format string, args ...any) { fmt.Fprintf(o.out, format, args...) }
func (o *IO) Println(args ...any)               { fmt.Fprintln(o.out, args...) }
func (o *IO) ErrPrintln(args ...any)            { fmt.Fprintln(o.errOut, args...) }

// Command defines a CLI command.
type Command struct {
	Flags *flag.FlagSet
	// Usage is shown after "docview" in help; its first word is the name.
	Usage string
	Short string
	Exec  func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// Run parses flags and executes the command. Returns exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	var help strings.Builder
	c.Flags.SetOutput(&help)

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.printHelp(o)
			return 0
		}
		o.ErrPrintln("error:", err)
		return 2
	}
	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}
	return 0
}

func (c *Command) printHelp(o *IO) {
	o.Println("Usage: docview", c.Usage)
	o.Println()
	o.Println(c.Short)
	if c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")
		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// globalFlags are accepted by every command.
type globalFlags struct {
	config   string
	dataDir  string
	logLevel string
	json     bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.config, "config", "", "config file (default: user config dir)")
	fs.StringVar(&g.dataDir, "data-dir", "", "annotation directory (overrides config)")
	fs.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.BoolVar(&g.json, "json", false, "print JSON even on a terminal")
}

// loadConfig applies flag overrides to the config file and installs the
// logger.
func (g *globalFlags) loadConfig(o *IO) (docview.Config, error) {
	cfg, err := docview.LoadConfig(g.config)
	if err != nil {
		return docview.Config{}, err
	}
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return docview.Config{}, err
	}

	level, _ := cfg.Level()
	docview.SetLogger(slog.New(slog.NewTextHandler(o.errOut, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// wantJSON reports whether list output should be JSON.
func (g *globalFlags) wantJSON(o *IO) bool {
	return g.json || !o.tty
}

func commands(g *globalFlags) []*Command {
	return []*Command{
		renderCommand(g),
		annotationsCommand(g),
		marksCommand(g),
		printConfigCommand(g),
	}
}

func run(ctx context.Context, o *IO, args []string) int {
	g := &globalFlags{}
	cmds := commands(g)

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(o, cmds)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	for _, c := range cmds {
		if c.Name() == args[0] {
			return c.Run(ctx, o, args[1:])
		}
	}
	o.ErrPrintln("error: unknown command:", args[0])
	printUsage(o, cmds)
	return 2
}

func printUsage(o *IO, cmds []*Command) {
	o.Println("docview - document page cache and annotations")
	o.Println()
	o.Println("Commands:")
	for _, c := range cmds {
		o.Printf("  %-52s %s\n", c.Usage, c.Short)
	}
}

func printConfigCommand(g *globalFlags) *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)
	g.register(fs)

	return &Command{
		Flags: fs,
		Usage: "print-config",
		Short: "Print the effective configuration",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 0 {
				return errors.New("print-config takes no arguments")
			}
			cfg, err := g.loadConfig(o)
			if err != nil {
				return err
			}
			return writeJSON(o.out, cfg)
		},
	}
}
