// Package still decodes still images.
package still

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"time"

	// registered for image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wader/braillify/internal/pixel"
	"github.com/wader/braillify/internal/source"
)

// ErrAnimatedFormat is returned for GIF, which is decoded as video.
var ErrAnimatedFormat = errors.New("gif is decoded as video")

type Source struct{}

func (Source) Name() string { return "image" }

func (Source) CanHandle(head []byte) bool { return true }

func (s Source) Open(ctx context.Context, path string, opts source.Options) (source.Media, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, format, err := image.Decode(f)
	if err != nil {
		return nil, &source.DecodeError{Source: s.Name(), Path: path, Err: err}
	}
	if format == "gif" {
		return nil, &source.DecodeError{Source: s.Name(), Path: path, Err: ErrAnimatedFormat}
	}

	b := m.Bounds()
	width, height, resize, err := opts.Size(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	opts.Log().Debug("image", "format", format, "size", [2]int{b.Dx(), b.Dy()}, "frame", [2]int{width, height}, "resize", resize)

	return &Frame{frame: pixel.FromImageSize(m, width, height)}, nil
}

// Frame is a single frame stream.
type Frame struct {
	frame *pixel.Buffer
	done  bool
}

// New returns a single frame stream for b.
func New(b *pixel.Buffer) *Frame { return &Frame{frame: b} }

func (f *Frame) Size() (width, height int) { return f.frame.Width, f.frame.Height }

func (f *Frame) Delay() time.Duration { return 0 }

func (f *Frame) Next(ctx context.Context) (*pixel.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.done {
		return nil, io.EOF
	}
	f.done = true
	return f.frame, nil
}

func (f *Frame) Close() error { return nil }
