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
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/wader/braillify/internal/compute"
	// registers the gpu backend
	_ "github.com/wader/braillify/internal/compute/gpu"
	"github.com/wader/braillify/internal/convert"
	"github.com/wader/braillify/internal/glyph"
	"github.com/wader/braillify/internal/source/all"
)

var version = "dev"

// ArgumentError is an unknown flag or a malformed flag value.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string { return e.Err.Error() }

func (e *ArgumentError) Unwrap() error { return e.Err }

func argumentErrorf(format string, a ...any) error {
	return &ArgumentError{Err: fmt.Errorf(format, a...)}
}

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

// parseYesNo is true unless s starts with n or N.
func parseYesNo(name, s string) (bool, error) {
	if s == "" {
		return false, argumentErrorf("-%s: expected y or n", name)
	}
	return s[0] != 'n' && s[0] != 'N', nil
}

func stripQuotes(s string) string {
	return strings.NewReplacer(`"`, "", `'`, "").Replace(s)
}

func parseOptions(c *cli.Context) (convert.Options, error) {
	input := stripQuotes(c.String("p"))
	if input == "" {
		return convert.Options{}, argumentErrorf("-p: input path required")
	}

	threshold := c.Float64("b")
	if threshold < 0 || threshold > 100 {
		return convert.Options{}, argumentErrorf("-b: %g not in 0-100", threshold)
	}
	space, err := glyph.ParseSpace(c.String("s"))
	if err != nil {
		return convert.Options{}, &ArgumentError{Err: fmt.Errorf("-s: %w", err)}
	}
	stride := c.Int("f")
	if stride < 1 {
		return convert.Options{}, argumentErrorf("-f: %d must be at least 1", stride)
	}

	var yn [3]bool
	for i, name := range []string{"i", "a", "l"} {
		if yn[i], err = parseYesNo(name, c.String(name)); err != nil {
			return convert.Options{}, err
		}
	}

	return convert.Options{
		Input:  input,
		Output: stripQuotes(c.String("o")),
		Scale:  c.Float64("d"),
		Fit:    c.Bool("fit"),
		Glyph: glyph.Options{
			Threshold: threshold / 100,
			Invert:    yn[0],
			Space:     space,
			Alt:       yn[1],
		},
		Stride:   stride,
		Loop:     yn[2],
		Prefetch: c.Int("prefetch"),
	}, nil
}

func newLogger(c *cli.Context, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case c.Bool("debug"):
		level = slog.LevelDebug
	case c.Bool("verbose"):
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(c *cli.Context) error {
	opts, err := parseOptions(c)
	if err != nil {
		return err
	}
	kind, err := compute.ParseKind(c.String("backend"))
	if err != nil {
		return &ArgumentError{Err: fmt.Errorf("--backend: %w", err)}
	}

	logger := newLogger(c, c.App.ErrWriter)

	backend, err := compute.Open(kind, c.Int("workers"), logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger.Info("compute", "backend", backend.Name())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv := &convert.Converter{
		Backend: backend,
		Sources: all.Sources,
		Stdout:  os.Stdout,
		Logger:  logger,
	}
	err = conv.Run(ctx, opts)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "braillify"
	app.Usage = "render images and video as braille text"
	app.Version = version
	app.HideHelpCommand = true
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "p", Aliases: []string{"path"}, Usage: "input path"},
		&cli.StringFlag{Name: "o", Aliases: []string{"output"}, Usage: "output path, render to terminal if empty"},
		&cli.Float64Flag{Name: "d", Aliases: []string{"scale"}, Value: 100, EnvVars: []string{"BRAILLIFY_SCALE"}, Usage: "scale percent"},
		&cli.Float64Flag{Name: "b", Aliases: []string{"brightness"}, Value: 50, EnvVars: []string{"BRAILLIFY_BRIGHTNESS"}, Usage: "brightness threshold percent 0-100"},
		&cli.StringFlag{Name: "i", Aliases: []string{"invert"}, Value: "n", EnvVars: []string{"BRAILLIFY_INVERT"}, Usage: "invert threshold y/n"},
		&cli.StringFlag{Name: "s", Aliases: []string{"space"}, Value: "blank", EnvVars: []string{"BRAILLIFY_SPACE"}, Usage: "glyph for dark cells: space, blank or dot"},
		&cli.StringFlag{Name: "a", Aliases: []string{"alt"}, Value: "n", EnvVars: []string{"BRAILLIFY_ALT"}, Usage: "use block glyphs y/n"},
		&cli.StringFlag{Name: "l", Aliases: []string{"loop"}, Value: "n", EnvVars: []string{"BRAILLIFY_LOOP"}, Usage: "loop playback y/n"},
		&cli.IntFlag{Name: "f", Aliases: []string{"stride"}, Value: 1, EnvVars: []string{"BRAILLIFY_STRIDE"}, Usage: "use every n-th video frame"},
		&cli.BoolFlag{Name: "fit", EnvVars: []string{"BRAILLIFY_FIT"}, Usage: "scale to terminal width"},
		&cli.StringFlag{Name: "backend", Value: string(compute.KindAuto), EnvVars: []string{"BRAILLIFY_BACKEND"}, Usage: "compute backend: auto, cpu or gpu"},
		&cli.IntFlag{Name: "workers", EnvVars: []string{"BRAILLIFY_WORKERS"}, Usage: "cpu workers, 0 for one per cpu"},
		&cli.IntFlag{Name: "prefetch", Value: 2, EnvVars: []string{"BRAILLIFY_PREFETCH"}, Usage: "video frames decoded ahead"},
		&cli.BoolFlag{Name: "verbose", Usage: "increase verbosity"},
		&cli.BoolFlag{Name: "debug", Usage: "debug logging"},
	}

	app.OnUsageError = func(c *cli.Context, err error, isSubcommand bool) error {
		return &ArgumentError{Err: err}
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() > 0 {
			return argumentErrorf("unexpected arguments %q", c.Args().Slice())
		}
		return run(c)
	}

	return app
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return 2
	}
	return 1
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "braillify: %s\n", err)
	}
	os.Exit(exitCode(err))
}
