// Package playback paces rendered frames against wall-clock time.
package playback

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// Pacer schedules frames at reference + k*delay. Due times are advanced
// additively so time spent emitting a frame does not accumulate as drift.
type Pacer struct {
	clock   Clock
	delay   time.Duration
	due     time.Time
	started bool
}

// NewPacer returns a pacer for frames delay apart. A nil clock uses the
// system clock.
func NewPacer(clock Clock, delay time.Duration) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{clock: clock, delay: delay}
}

// Wait blocks until the next frame is due. The first call records the
// reference time and returns immediately. Returns ctx.Err() if ctx is done
// before the frame is due.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.started {
		p.started = true
		p.due = p.clock.Now()
		return nil
	}

	p.due = p.due.Add(p.delay)
	d := p.due.Sub(p.clock.Now())
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}

// Due returns the time the last waited frame was due.
func (p *Pacer) Due() time.Time { return p.due }

type State int32

const (
	Idle State = iota
	Playing
	Looping
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Looping:
		return "looping"
	case Done:
		return "done"
	}
	return "unknown"
}

// Player writes a frame sequence to a writer at a fixed delay.
type Player struct {
	Delay time.Duration
	Loop  bool
	// Clock defaults to the system clock.
	Clock Clock

	state atomic.Int32
}

// State returns the current playback state, safe to call while playing.
func (p *Player) State() State { return State(p.state.Load()) }

// Play writes frames to w. Each frame is written without its trailing line
// break so cursor home redraws in place, a single line break is written
// when playback ends. With Loop set playback repeats until ctx is done and
// the pacing reference is kept across passes.
func (p *Player) Play(ctx context.Context, frames []string, w io.Writer) (err error) {
	p.state.Store(int32(Playing))
	defer p.state.Store(int32(Done))
	defer func() {
		if _, werr := io.WriteString(w, "\n"); err == nil {
			err = werr
		}
	}()

	if len(frames) == 0 {
		return nil
	}

	pacer := NewPacer(p.Clock, p.Delay)
	for pass := 0; ; pass++ {
		if pass > 0 {
			p.state.Store(int32(Looping))
		}
		for _, f := range frames {
			if err := pacer.Wait(ctx); err != nil {
				return err
			}
			if _, err := io.WriteString(w, strings.TrimSuffix(f, "\n")); err != nil {
				return err
			}
		}
		if !p.Loop {
			return nil
		}
	}
}
