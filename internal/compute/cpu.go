package compute

import (
	"context"

	"github.com/wader/braillify/internal/glyph"
	"github.com/wader/braillify/internal/parallel"
)

// split work in chunks of at least this many cells
const cpuMinChunk = 256

// CPU evaluates cells on a goroutine pool.
type CPU struct {
	pool *parallel.Pool
}

// NewCPU starts a CPU backend with the given number of workers, GOMAXPROCS
// if workers <= 0.
func NewCPU(workers int) *CPU {
	return &CPU{pool: parallel.NewPool(workers)}
}

func (c *CPU) Name() string { return string(KindCPU) }

func (c *CPU) Rasterize(ctx context.Context, job Job, out []rune) error {
	if err := job.Validate(out); err != nil {
		return &BackendError{Backend: c.Name(), Op: "rasterize", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.pool.Map(len(out), cpuMinChunk, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = glyph.Cell(job.Frame, i, job.Options)
		}
	})

	return nil
}

func (c *CPU) Close() error {
	c.pool.Close()
	return nil
}
