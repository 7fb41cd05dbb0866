// Package video decodes video frames with ffmpeg as raw RGBA.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wader/braillify/internal/goffmpeg"
	"github.com/wader/braillify/internal/pixel"
	"github.com/wader/braillify/internal/source"
)

const defaultPrefetch = 2

var ErrNoVideoStream = errors.New("no video stream")

type Source struct{}

func (Source) Name() string { return "video" }

func (Source) CanHandle(head []byte) bool { return true }

// FrameDelay is the delay between frames when every stride-th frame of a
// rate fps stream is shown, truncated to whole milliseconds.
func FrameDelay(rate float64, stride int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int(1000*float64(stride)/rate)) * time.Millisecond
}

// filterGraph selects every stride-th frame of the first video stream and
// converts it to width x height RGBA.
func filterGraph(width, height, stride int, resize bool) *goffmpeg.FilterGraph {
	var chain goffmpeg.FilterChain
	in := []string{"0:v:0"}
	if stride > 1 {
		chain = append(chain, goffmpeg.Filter{
			Name:    "select",
			Inputs:  in,
			Options: map[string]string{"expr": fmt.Sprintf("not(mod(n,%d))", stride)},
		})
		in = nil
	}
	if resize {
		chain = append(chain, goffmpeg.Filter{
			Name:   "scale",
			Inputs: in,
			Options: map[string]string{
				"w":     strconv.Itoa(width),
				"h":     strconv.Itoa(height),
				"flags": "bilinear",
			},
		})
		in = nil
	}
	chain = append(chain, goffmpeg.Filter{
		Name:    "format",
		Inputs:  in,
		Options: map[string]string{"pix_fmts": "rgba"},
		Outputs: []string{"out"},
	})
	return &goffmpeg.FilterGraph{chain}
}

// passthroughFlags keeps selected frames without duplicating to the input
// rate, -fps_mode replaced -vsync in ffmpeg 5.1.
func passthroughFlags(v goffmpeg.VersionParts) []string {
	if v.AtLeast(5, 1) {
		return []string{"-fps_mode", "passthrough"}
	}
	return []string{"-vsync", "passthrough"}
}

func (s Source) Open(ctx context.Context, path string, opts source.Options) (source.Media, error) {
	log := opts.Log()

	fp := goffmpeg.FFProbeCmd{Context: ctx, Input: goffmpeg.Input{File: path}, Logger: log}
	pr, err := fp.Result()
	if err != nil {
		return nil, &source.DecodeError{Source: s.Name(), Path: path, Err: err}
	}
	vs, ok := pr.FindFirstStreamCodecType("video")
	if !ok {
		return nil, &source.DecodeError{Source: s.Name(), Path: path, Err: ErrNoVideoStream}
	}
	rate, err := vs.FrameRate()
	if err != nil {
		return nil, &source.DecodeError{Source: s.Name(), Path: path, Err: err}
	}

	stride := max(opts.Stride, 1)
	width, height, resize, err := opts.Size(int(vs.DisplayWidth()), int(vs.DisplayHeight()))
	if err != nil {
		return nil, err
	}

	version, err := goffmpeg.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg version: %w", err)
	}
	log.Debug("video",
		"format", pr.String(),
		"ffmpeg", version.Release,
		"size", [2]int{int(vs.DisplayWidth()), int(vs.DisplayHeight())},
		"frame", [2]int{width, height},
		"rate", rate,
		"stride", stride,
	)

	rawR, rawW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	fm := &goffmpeg.FFmpegCmd{
		Context:     ctx,
		Flags:       []string{"-v", "error"},
		Inputs:      []*goffmpeg.Input{{File: path}},
		FilterGraph: filterGraph(width, height, stride, resize),
		Outputs: []*goffmpeg.Output{{
			Maps:   []*goffmpeg.Map{{Specifier: "[out]"}},
			Format: "rawvideo",
			Flags:  passthroughFlags(version),
			File:   rawW,
		}},
		CloseAfterStart: []io.Closer{rawW},
		CloseAfterWait:  []io.Closer{rawR},
		Logger:          log,
		ProgressFn: func(p goffmpeg.Progress) {
			log.Debug("ffmpeg progress", "frame", p.Frame, "fps", p.FPS, "out_time", p.OutTime, "speed", p.Speed)
		},
	}
	// descriptors are closed by Start on error
	if err := fm.Start(); err != nil {
		cancel()
		return nil, err
	}

	v := newVideo(width, height, FrameDelay(rate, stride), opts.Prefetch, cancel)
	go v.decode(rawR, fm.Wait)

	return v, nil
}

// Video is a frame stream decoded ahead of the consumer by a goroutine.
type Video struct {
	width, height int
	delay         time.Duration
	cancel        context.CancelFunc

	frames    chan *pixel.Buffer
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newVideo(width, height int, delay time.Duration, prefetch int, cancel context.CancelFunc) *Video {
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	return &Video{
		width:  width,
		height: height,
		delay:  delay,
		cancel: cancel,
		frames: make(chan *pixel.Buffer, prefetch),
		done:   make(chan struct{}),
	}
}

// decode reads raw frames from r until EOF or Close, wait reaps the producer.
func (v *Video) decode(r io.Reader, wait func() error) {
	defer close(v.frames)

	size := v.width * v.height * pixel.BytesPerPixel
	var readErr error
	for {
		b := pixel.New(v.width, v.height)
		if _, err := io.ReadFull(r, b.Pix[:size]); err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		select {
		case v.frames <- b:
		case <-v.done:
			_ = wait()
			return
		}
	}

	if err := wait(); err != nil {
		v.err = err
	} else if readErr != nil {
		v.err = fmt.Errorf("ffmpeg output: %w", readErr)
	}
}

func (v *Video) Size() (width, height int) { return v.width, v.height }

func (v *Video) Delay() time.Duration { return v.delay }

// Next returns the next decoded frame, io.EOF after the last one or the
// ffmpeg error if decoding failed.
func (v *Video) Next(ctx context.Context) (*pixel.Buffer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b, ok := <-v.frames:
		if !ok {
			if v.err != nil {
				return nil, v.err
			}
			return nil, io.EOF
		}
		return b, nil
	}
}

// Close stops decoding and waits for ffmpeg to exit.
func (v *Video) Close() error {
	v.closeOnce.Do(func() {
		close(v.done)
		// kill ffmpeg so a blocked read returns
		v.cancel()
		for range v.frames {
		}
	})
	return nil
}
