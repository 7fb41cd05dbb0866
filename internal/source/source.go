// Package source detects the input format and opens it as rendered text or
// as a stream of sized frames.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/wader/braillify/internal/animation"
	"github.com/wader/braillify/internal/geometry"
	"github.com/wader/braillify/internal/pixel"
)

// bytes read from the input for CanHandle
const headSize = 512

// ErrUnknownFormat is returned when no source handles the input.
var ErrUnknownFormat = errors.New("unknown input format")

// ErrEmptyFrame is returned when the scale leaves no whole glyph cell.
var ErrEmptyFrame = errors.New("scaled frame has no glyph cells")

// DecodeError is a failure to decode the input with one source. Detection
// moves on to the next source.
type DecodeError struct {
	Source string
	Path   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options for opening an input.
type Options struct {
	// Scale percent of the source size.
	Scale float64
	// Columns, if > 0, overrides Scale to fit the width in this many
	// glyph columns.
	Columns int
	// Stride selects every n-th video frame.
	Stride int
	// Prefetch is the number of decoded frames buffered ahead.
	Prefetch int
	Logger   *slog.Logger
}

// Log returns the configured logger or a discarding one.
func (o Options) Log() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Size normalizes a source size for the options.
func (o Options) Size(srcWidth, srcHeight int) (width, height int, resize bool, err error) {
	scale := o.Scale
	if o.Columns > 0 {
		scale = geometry.ScaleToFit(srcWidth, o.Columns)
	}
	width, height, resize = geometry.Normalize(srcWidth, srcHeight, scale)
	if !geometry.Valid(width, height) {
		return 0, 0, false, fmt.Errorf("%w: %dx%d at %g%%", ErrEmptyFrame, srcWidth, srcHeight, scale)
	}
	return width, height, resize, nil
}

// Media is an opened input.
type Media interface {
	Close() error
}

// Document is an input that is already rendered.
type Document struct {
	animation.Document
}

func (Document) Close() error { return nil }

// Frames is a sequence of decoded frames normalized to the glyph cell grid.
type Frames interface {
	Media
	// Size of every frame.
	Size() (width, height int)
	// Delay between frames, zero for a still image.
	Delay() time.Duration
	// Next returns the next frame or io.EOF.
	Next(ctx context.Context) (*pixel.Buffer, error)
}

// Source is an input format.
type Source interface {
	Name() string
	// CanHandle reports whether the source should try an input starting
	// with head.
	CanHandle(head []byte) bool
	// Open decodes path. A *DecodeError means the input is not in this
	// format.
	Open(ctx context.Context, path string, opts Options) (Media, error)
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	head := make([]byte, headSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}

// Open tries sources in order and returns the first that decodes path.
func Open(ctx context.Context, path string, opts Options, sources []Source) (Media, Source, error) {
	head, err := readHead(path)
	if err != nil {
		return nil, nil, err
	}

	log := opts.Log()
	var decodeErrs []error
	for _, s := range sources {
		if !s.CanHandle(head) {
			continue
		}
		m, err := s.Open(ctx, path, opts)
		if err == nil {
			log.Debug("opened input", "path", path, "source", s.Name())
			return m, s, nil
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			return nil, nil, err
		}
		log.Debug("source rejected input", "source", s.Name(), "err", err)
		decodeErrs = append(decodeErrs, err)
	}

	return nil, nil, fmt.Errorf("%s: %w", path, errors.Join(append([]error{ErrUnknownFormat}, decodeErrs...)...))
}
