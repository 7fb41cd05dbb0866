// Package compute runs the glyph kernel over every cell of a frame.
//
// A Backend is a parallel map executor: it evaluates glyph.Cell for each
// cell index independently and returns only after all cells are written.
// The CPU backend is always available. A GPU backend registers itself when
// its package is imported:
//
//	import _ "github.com/wader/braillify/internal/compute/gpu"
package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/wader/braillify/internal/geometry"
	"github.com/wader/braillify/internal/glyph"
	"github.com/wader/braillify/internal/pixel"
)

// ErrNoDevice is returned when no compute device is eligible.
var ErrNoDevice = errors.New("no eligible compute device")

// BackendError is a failure to acquire or run a backend.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s: %s", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Job is one frame to rasterize.
type Job struct {
	Frame   *pixel.Buffer
	Options glyph.Options
}

// Validate checks that the frame fits the cell grid and that out has one
// slot per cell.
func (j Job) Validate(out []rune) error {
	f := j.Frame
	if f == nil {
		return errors.New("no frame")
	}
	if !geometry.Valid(f.Width, f.Height) {
		return fmt.Errorf("frame %dx%d is not a multiple of the %dx%d cell", f.Width, f.Height, geometry.CellWidth, geometry.CellHeight)
	}
	if len(f.Pix) < f.Width*f.Height*pixel.BytesPerPixel {
		return fmt.Errorf("frame %dx%d has only %d bytes", f.Width, f.Height, len(f.Pix))
	}
	if n := glyph.Count(f.Width, f.Height); len(out) != n {
		return fmt.Errorf("output has %d slots, frame has %d cells", len(out), n)
	}
	return nil
}

// Backend is a parallel map executor for the glyph kernel.
type Backend interface {
	Name() string
	// Rasterize writes the glyph of every cell of job.Frame to out.
	Rasterize(ctx context.Context, job Job, out []rune) error
	// Close releases the device, the backend must not be used afterwards.
	Close() error
}

// Kind selects a backend.
type Kind string

const (
	KindAuto Kind = "auto"
	KindCPU  Kind = "cpu"
	KindGPU  Kind = "gpu"
)

// ParseKind parses auto, cpu or gpu.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindAuto, KindCPU, KindGPU:
		return k, nil
	}
	return "", fmt.Errorf("unknown compute backend %q (auto, cpu or gpu)", s)
}

// Factory creates a GPU backend.
type Factory func(logger *slog.Logger) (Backend, error)

var (
	gpuMu      sync.RWMutex
	gpuFactory Factory
)

// RegisterGPU registers the GPU backend factory. A later call replaces an
// earlier one.
func RegisterGPU(f Factory) {
	gpuMu.Lock()
	defer gpuMu.Unlock()
	gpuFactory = f
}

func openGPU(logger *slog.Logger) (Backend, error) {
	gpuMu.RLock()
	f := gpuFactory
	gpuMu.RUnlock()
	if f == nil {
		return nil, &BackendError{Backend: string(KindGPU), Op: "open", Err: ErrNoDevice}
	}
	return f(logger)
}

// Open acquires a backend. KindAuto prefers the GPU and falls back to the
// CPU when no GPU can be used. The caller must Close the backend.
func Open(kind Kind, workers int, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch kind {
	case KindCPU:
		return NewCPU(workers), nil
	case KindGPU:
		return openGPU(logger)
	case KindAuto, "":
		b, err := openGPU(logger)
		if err == nil {
			return b, nil
		}
		logger.Info("gpu unavailable, using cpu", "err", err)
		return NewCPU(workers), nil
	}
	return nil, fmt.Errorf("unknown compute backend %q", kind)
}

// Render rasterizes a frame and assembles its text.
func Render(ctx context.Context, b Backend, job Job) (string, error) {
	out := make([]rune, glyph.Count(job.Frame.Width, job.Frame.Height))
	if err := b.Rasterize(ctx, job, out); err != nil {
		return "", err
	}
	return glyph.Assemble(out, job.Frame.Width, job.Frame.Height), nil
}
