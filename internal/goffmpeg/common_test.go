package goffmpeg_test

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/wader/osleaktest"

	"github.com/wader/braillify/internal/goffmpeg"
)

func leakChecks(t *testing.T) func() {
	leakFn := leaktest.Check(t)
	osLeakFn := osleaktest.Check(t)
	return func() {
		leakFn()
		osLeakFn()
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, p := range []string{goffmpeg.FFmpegPath, goffmpeg.FFprobePath} {
		if _, err := exec.LookPath(p); err != nil {
			t.Skipf("%s not found", p)
		}
	}
}

// generateTestVideo writes a testsrc clip of n frames to a temp file
func generateTestVideo(t *testing.T, width, height, rate, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mkv")
	c := &goffmpeg.FFmpegCmd{
		Context: context.Background(),
		Flags:   []string{"-y"},
		Inputs: []*goffmpeg.Input{{
			Format: "lavfi",
			File:   "testsrc=size=" + strconv.Itoa(width) + "x" + strconv.Itoa(height) + ":rate=" + strconv.Itoa(rate),
		}},
		Outputs: []*goffmpeg.Output{{
			Options: map[string]string{"frames:v": strconv.Itoa(n)},
			Maps:    []*goffmpeg.Map{{Specifier: "0"}},
			Format:  "matroska",
			File:    path,
		}},
	}
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseVersion(t *testing.T) {
	testCases := []struct {
		s        string
		expected goffmpeg.VersionParts
	}{
		{
			s:        "ffmpeg version 4.2.2 Copyright (c) 2000-2019 the FFmpeg developers\nbuilt with gcc",
			expected: goffmpeg.VersionParts{Release: "4.2.2", Major: 4, Minor: 2, Patch: 2},
		},
		{
			s:        "ffmpeg version n6.1 Copyright (c) 2000-2023 the FFmpeg developers\n",
			expected: goffmpeg.VersionParts{Release: "n6.1", Major: 6, Minor: 1},
		},
		{
			s:        "ffmpeg version N-113000-gabc Copyright (c) 2000-2023 the FFmpeg developers\n",
			expected: goffmpeg.VersionParts{},
		},
	}
	for i, tC := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			v, err := goffmpeg.ParseVersion(tC.s)
			if err != nil {
				t.Fatal(err)
			}
			v.Full = ""
			if tC.expected != v {
				t.Errorf("expected %#v, got %#v", tC.expected, v)
			}
		})
	}

	if _, err := goffmpeg.ParseVersion(""); err == nil {
		t.Error("expected error for empty output")
	}
}

func TestVersionAtLeast(t *testing.T) {
	v := goffmpeg.VersionParts{Major: 5, Minor: 1}
	if !v.AtLeast(5, 1) || !v.AtLeast(4, 9) || v.AtLeast(5, 2) || v.AtLeast(6, 0) {
		t.Errorf("unexpected AtLeast for %#v", v)
	}
	if !(goffmpeg.VersionParts{}).AtLeast(99, 0) {
		t.Error("expected unknown version to be recent")
	}
}
