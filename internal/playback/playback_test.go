package playback_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wader/osleaktest"

	"github.com/wader/braillify/internal/playback"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock advances instantly when waited on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func leakChecks(t *testing.T) func() {
	leakFn := leaktest.Check(t)
	osLeakFn := osleaktest.Check(t)
	return func() {
		leakFn()
		osLeakFn()
	}
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder records the clock time of each write and optionally advances
// the clock to simulate slow output.
type recorder struct {
	clock   *fakeClock
	cost    func(n int) time.Duration
	times   []time.Time
	frames  []string
	onWrite func(n int)
}

func (r *recorder) Write(p []byte) (int, error) {
	r.times = append(r.times, r.clock.Now())
	r.frames = append(r.frames, string(p))
	if r.cost != nil {
		r.clock.Advance(r.cost(len(r.times)))
	}
	if r.onWrite != nil {
		r.onWrite(len(r.times))
	}
	return len(p), nil
}

func TestPacerFirstFrameImmediate(t *testing.T) {
	c := newFakeClock()
	p := playback.NewPacer(c, 100*time.Millisecond)
	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, c.sleeps)
	assert.Equal(t, epoch, p.Due())
}

func TestPacerNoDrift(t *testing.T) {
	c := newFakeClock()
	delay := 100 * time.Millisecond
	p := playback.NewPacer(c, delay)

	// emission times vary, due times stay on the reference grid
	costs := []time.Duration{10, 90, 150, 0, 30}
	for k, cost := range costs {
		require.NoError(t, p.Wait(context.Background()))
		assert.Equal(t, epoch.Add(time.Duration(k)*delay), p.Due(), "frame %d", k)
		assert.False(t, c.Now().Before(p.Due()))
		c.Advance(cost * time.Millisecond)
	}
}

func TestPacerLateFrameDoesNotSleep(t *testing.T) {
	c := newFakeClock()
	p := playback.NewPacer(c, 10*time.Millisecond)
	require.NoError(t, p.Wait(context.Background()))
	c.Advance(25 * time.Millisecond)
	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, c.sleeps)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, c.sleeps)
}

func TestPacerCanceled(t *testing.T) {
	defer leakChecks(t)()

	p := playback.NewPacer(nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx))

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestPlayOnce(t *testing.T) {
	c := newFakeClock()
	w := &recorder{clock: c}
	p := &playback.Player{Delay: 50 * time.Millisecond, Clock: c}
	assert.Equal(t, playback.Idle, p.State())

	frames := []string{"\x1b[Ha\nb\n", "\x1b[Hc\nd\n", "\x1b[He\nf\n"}
	require.NoError(t, p.Play(context.Background(), frames, w))

	assert.Equal(t, []string{"\x1b[Ha\nb", "\x1b[Hc\nd", "\x1b[He\nf", "\n"}, w.frames)
	assert.Equal(t, []time.Time{epoch, epoch.Add(50 * time.Millisecond), epoch.Add(100 * time.Millisecond), epoch.Add(100 * time.Millisecond)}, w.times)
	assert.Equal(t, playback.Done, p.State())
}

func TestPlayEmpty(t *testing.T) {
	c := newFakeClock()
	w := &recorder{clock: c}
	p := &playback.Player{Delay: time.Second, Loop: true, Clock: c}
	require.NoError(t, p.Play(context.Background(), nil, w))
	assert.Equal(t, []string{"\n"}, w.frames)
	assert.Equal(t, playback.Done, p.State())
}

func TestPlayLoop(t *testing.T) {
	c := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &playback.Player{Delay: 10 * time.Millisecond, Loop: true, Clock: c}
	var states []playback.State
	w := &recorder{
		clock: c,
		cost:  func(int) time.Duration { return 3 * time.Millisecond },
		onWrite: func(n int) {
			states = append(states, p.State())
			if n == 7 {
				cancel()
			}
		},
	}

	err := p.Play(ctx, []string{"A\n", "B\n", "C\n"}, w)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "ABCABCA\n", strings.Join(w.frames, ""))
	// reference is not reset between passes
	for k := 0; k < 7; k++ {
		assert.Equal(t, epoch.Add(time.Duration(k)*10*time.Millisecond), w.times[k], "frame %d", k)
	}
	assert.Equal(t, playback.Playing, states[0])
	assert.Equal(t, playback.Looping, states[3])
	assert.Equal(t, playback.Done, p.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", playback.Idle.String())
	assert.Equal(t, "looping", playback.Looping.String())
}
