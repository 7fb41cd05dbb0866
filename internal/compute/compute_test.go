package compute_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wader/osleaktest"

	"github.com/wader/braillify/internal/compute"
	"github.com/wader/braillify/internal/glyph"
	"github.com/wader/braillify/internal/pixel"
)

func leakChecks(t *testing.T) func() {
	leakFn := leaktest.Check(t)
	osLeakFn := osleaktest.Check(t)
	return func() {
		leakFn()
		osLeakFn()
	}
}

func randomFrame(t *testing.T, w, h int, seed int64) *pixel.Buffer {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	p := pixel.New(w, h)
	r.Read(p.Pix)
	return p
}

func TestCPUMatchesKernel(t *testing.T) {
	defer leakChecks(t)()

	b := compute.NewCPU(4)
	defer b.Close()

	frame := randomFrame(t, 64, 48, 1)
	for _, opts := range []glyph.Options{
		{Threshold: 0.2, Space: glyph.SpaceBlank},
		{Threshold: 0.5, Invert: true, Space: glyph.SpaceASCII},
		{Threshold: 0.3, Alt: true},
	} {
		out := make([]rune, glyph.Count(frame.Width, frame.Height))
		require.NoError(t, b.Rasterize(context.Background(), compute.Job{Frame: frame, Options: opts}, out))
		for i := range out {
			require.Equal(t, glyph.Cell(frame, i, opts), out[i], "cell %d", i)
		}
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name  string
		frame *pixel.Buffer
		slots int
	}{
		{"no frame", nil, 0},
		{"odd width", &pixel.Buffer{Width: 3, Height: 4, Pix: make([]uint8, 3*4*4)}, 1},
		{"short height", &pixel.Buffer{Width: 2, Height: 6, Pix: make([]uint8, 2*6*4)}, 1},
		{"short pixels", &pixel.Buffer{Width: 2, Height: 4, Pix: make([]uint8, 8)}, 1},
		{"slot count", pixel.New(4, 4), 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := compute.Job{Frame: tc.frame}.Validate(make([]rune, tc.slots))
			assert.Error(t, err)
		})
	}

	assert.NoError(t, compute.Job{Frame: pixel.New(4, 8)}.Validate(make([]rune, 4)))
}

func TestRasterizeInvalidJob(t *testing.T) {
	defer leakChecks(t)()

	b := compute.NewCPU(1)
	defer b.Close()

	err := b.Rasterize(context.Background(), compute.Job{Frame: pixel.New(3, 4)}, make([]rune, 1))
	var be *compute.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "cpu", be.Backend)
	assert.Equal(t, "rasterize", be.Op)
}

func TestRasterizeCanceled(t *testing.T) {
	defer leakChecks(t)()

	b := compute.NewCPU(1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Rasterize(ctx, compute.Job{Frame: pixel.New(2, 4)}, make([]rune, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender(t *testing.T) {
	defer leakChecks(t)()

	b := compute.NewCPU(0)
	defer b.Close()

	frame := pixel.New(4, 4)
	frame.Fill(255, 255, 255, 255)
	s, err := compute.Render(context.Background(), b, compute.Job{
		Frame:   frame,
		Options: glyph.Options{Threshold: 0.2, Space: glyph.SpaceBlank},
	})
	require.NoError(t, err)
	assert.Equal(t, "\x1b[H⣿⣿\n", s)
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"auto", "cpu", "GPU"} {
		_, err := compute.ParseKind(s)
		assert.NoError(t, err, s)
	}
	_, err := compute.ParseKind("tpu")
	assert.Error(t, err)
}

type fakeBackend struct{ closed bool }

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Rasterize(context.Context, compute.Job, []rune) error {
	return nil
}
func (f *fakeBackend) Close() error { f.closed = true; return nil }

func TestOpen(t *testing.T) {
	defer leakChecks(t)()
	defer compute.RegisterGPU(nil)

	b, err := compute.Open(compute.KindCPU, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "cpu", b.Name())
	require.NoError(t, b.Close())

	compute.RegisterGPU(func(*slog.Logger) (compute.Backend, error) {
		return nil, &compute.BackendError{Backend: "gpu", Op: "open", Err: compute.ErrNoDevice}
	})

	_, err = compute.Open(compute.KindGPU, 0, nil)
	assert.ErrorIs(t, err, compute.ErrNoDevice)

	b, err = compute.Open(compute.KindAuto, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "cpu", b.Name())
	require.NoError(t, b.Close())

	fake := &fakeBackend{}
	compute.RegisterGPU(func(*slog.Logger) (compute.Backend, error) { return fake, nil })
	b, err = compute.Open(compute.KindAuto, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", b.Name())
	require.NoError(t, b.Close())
	assert.True(t, fake.closed)

	_, err = compute.Open("tpu", 1, nil)
	assert.Error(t, err)
}

func TestOpenNoGPURegistered(t *testing.T) {
	compute.RegisterGPU(nil)
	_, err := compute.Open(compute.KindGPU, 0, nil)
	var be *compute.BackendError
	require.ErrorAs(t, err, &be)
	assert.True(t, errors.Is(err, compute.ErrNoDevice))
}
