// Package convert renders an input file to glyph text.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wader/braillify/internal/animation"
	"github.com/wader/braillify/internal/compute"
	"github.com/wader/braillify/internal/glyph"
	"github.com/wader/braillify/internal/playback"
	"github.com/wader/braillify/internal/source"
	"github.com/wader/braillify/internal/source/still"
	"github.com/wader/braillify/internal/term"
)

// Options for one conversion.
type Options struct {
	Input string
	// Output path, empty renders to the terminal.
	Output string
	// Scale percent of the source size.
	Scale float64
	// Fit the rendered width to the terminal, ignored if output is not a
	// terminal.
	Fit    bool
	Glyph  glyph.Options
	Stride int
	Loop   bool
	// Prefetch is the number of video frames decoded ahead.
	Prefetch int
}

// Converter renders inputs with a compute backend.
type Converter struct {
	Backend compute.Backend
	Sources []source.Source
	// Stdout receives terminal output.
	Stdout *os.File
	// Clock paces playback, defaults to the system clock.
	Clock  playback.Clock
	Logger *slog.Logger
}

func (c *Converter) log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Converter) isTerminal() bool {
	return c.Stdout != nil && term.IsTerminal(c.Stdout)
}

// Run converts opts.Input. Playback stops when ctx is done.
func (c *Converter) Run(ctx context.Context, opts Options) error {
	log := c.log()

	srcOpts := source.Options{
		Scale:    opts.Scale,
		Stride:   opts.Stride,
		Prefetch: opts.Prefetch,
		Logger:   log,
	}
	if opts.Fit && opts.Output == "" && c.isTerminal() {
		if cols, err := term.Columns(c.Stdout); err == nil {
			srcOpts.Columns = cols
		} else {
			log.Warn("terminal size", "err", err)
		}
	}

	m, s, err := source.Open(ctx, opts.Input, srcOpts, c.Sources)
	if err != nil {
		return err
	}
	defer m.Close()
	log.Info("input", "path", opts.Input, "source", s.Name())

	switch m := m.(type) {
	case source.Document:
		return c.play(ctx, m.Document, opts.Loop)
	case *still.Frame:
		return c.still(ctx, m, opts)
	case source.Frames:
		if opts.Output == "" {
			return c.live(ctx, m, opts)
		}
		return c.record(ctx, m, opts)
	}
	return fmt.Errorf("%s: unsupported media %T", opts.Input, m)
}

func (c *Converter) reset() error {
	if c.Stdout == nil {
		return errors.New("no terminal output")
	}
	return term.Reset(c.Stdout)
}

// withHiddenCursor runs fn with the cursor hidden if stdout is a terminal.
func (c *Converter) withHiddenCursor(fn func() error) error {
	if !c.isTerminal() {
		return fn()
	}
	show, err := term.HideCursor(c.Stdout)
	if err != nil {
		return err
	}
	err = fn()
	if serr := show(); err == nil {
		err = serr
	}
	return err
}

func (c *Converter) play(ctx context.Context, d animation.Document, loop bool) error {
	if err := c.reset(); err != nil {
		return err
	}
	p := &playback.Player{
		Delay: time.Duration(d.Delay) * time.Millisecond,
		Loop:  loop,
		Clock: c.Clock,
	}
	c.log().Info("playing", "frames", humanize.Comma(int64(len(d.Frames))), "delay", p.Delay, "loop", loop)
	return c.withHiddenCursor(func() error {
		return p.Play(ctx, d.Frames, c.Stdout)
	})
}

func (c *Converter) render(ctx context.Context, f source.Frames, g glyph.Options) (string, error) {
	b, err := f.Next(ctx)
	if err != nil {
		return "", err
	}
	return compute.Render(ctx, c.Backend, compute.Job{Frame: b, Options: g})
}

func (c *Converter) still(ctx context.Context, f source.Frames, opts Options) error {
	text, err := c.render(ctx, f, opts.Glyph)
	if err != nil {
		return err
	}
	if opts.Output != "" {
		return c.writeFile(opts.Output, func(w io.Writer) error {
			_, err := io.WriteString(w, text)
			return err
		})
	}
	if err := c.reset(); err != nil {
		return err
	}
	_, err = io.WriteString(c.Stdout, text+"\n")
	return err
}

// live renders and emits video frames paced at the frame delay.
func (c *Converter) live(ctx context.Context, f source.Frames, opts Options) error {
	if err := c.reset(); err != nil {
		return err
	}
	pacer := playback.NewPacer(c.Clock, f.Delay())
	return c.withHiddenCursor(func() error {
		for {
			text, err := c.render(ctx, f, opts.Glyph)
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return err
			}
			if err := pacer.Wait(ctx); err != nil {
				return err
			}
			if _, err := io.WriteString(c.Stdout, strings.TrimSuffix(text, "\n")); err != nil {
				return err
			}
		}
		_, err := io.WriteString(c.Stdout, "\n")
		return err
	})
}

// record renders all video frames into an animation document.
func (c *Converter) record(ctx context.Context, f source.Frames, opts Options) error {
	log := c.log()
	log.Info("converting video", "output", opts.Output)

	d := animation.Document{Delay: int(f.Delay() / time.Millisecond)}
	start := time.Now()
	for {
		text, err := c.render(ctx, f, opts.Glyph)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
		d.Append(text)
		if n := len(d.Frames); n%100 == 0 {
			log.Debug("rendered", "frames", humanize.Comma(int64(n)))
		}
	}
	log.Info("rendered",
		"frames", humanize.Comma(int64(len(d.Frames))),
		"delay_ms", d.Delay,
		"took", time.Since(start).Round(time.Millisecond),
	)

	return c.writeFile(opts.Output, d.Encode)
}

func (c *Converter) writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := &countWriter{w: f}
	if err := fn(cw); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.log().Info("wrote", "path", path, "size", humanize.Bytes(cw.n))
	return nil
}

type countWriter struct {
	w io.Writer
	n uint64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}
