package goffmpeg_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/wader/braillify/internal/goffmpeg"
)

func TestParseRate(t *testing.T) {
	testCases := []struct {
		s        string
		expected float64
		err      bool
	}{
		{s: "25", expected: 25},
		{s: "25/1", expected: 25},
		{s: "30000/1001", expected: 30000.0 / 1001.0},
		{s: "0/0", err: true},
		{s: "", err: true},
		{s: "a/1", err: true},
	}
	for i, tC := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			actual, err := goffmpeg.ParseRate(tC.s)
			if tC.err {
				if err == nil {
					t.Errorf("expected error, got %v", actual)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tC.expected != actual {
				t.Errorf("expected %v, got %v", tC.expected, actual)
			}
		})
	}
}

func TestDisplaySize(t *testing.T) {
	s := goffmpeg.FFProbeStream{
		Width:        640,
		Height:       480,
		SideDataList: []goffmpeg.SideData{{SideDataType: goffmpeg.SideDataDisplayMatrix, Rotation: -90}},
	}
	if s.DisplayWidth() != 480 || s.DisplayHeight() != 640 {
		t.Errorf("expected rotated size, got %dx%d", s.DisplayWidth(), s.DisplayHeight())
	}
	if r, err := (goffmpeg.FFProbeStream{AvgFrameRate: "0/0", RFrameRate: "24/1"}).FrameRate(); err != nil || r != 24 {
		t.Errorf("expected r_frame_rate fallback, got %v %v", r, err)
	}
}

func TestProbe(t *testing.T) {
	requireFFmpeg(t)
	path := generateTestVideo(t, 32, 24, 10, 5)

	defer leakChecks(t)()

	p := goffmpeg.FFProbeCmd{Context: context.Background(), Input: goffmpeg.Input{File: path}}
	pr, err := p.Result()
	if err != nil {
		t.Fatal(err)
	}

	s, ok := pr.FindFirstStreamCodecType("video")
	if !ok {
		t.Fatalf("no video stream in %s", pr)
	}
	if s.Width != 32 || s.Height != 24 {
		t.Errorf("expected 32x24, got %dx%d", s.Width, s.Height)
	}
	if r, err := s.FrameRate(); err != nil || r != 10 {
		t.Errorf("expected rate 10, got %v %v", r, err)
	}
	if pr.FormatName() != "matroska" {
		t.Errorf("expected matroska, got %s", pr.FormatName())
	}
}
