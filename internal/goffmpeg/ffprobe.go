package goffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/wader/braillify/internal/goffmpeg/internal/execextra"
	"github.com/wader/braillify/internal/goffmpeg/internal/kvargs"
	"github.com/wader/braillify/internal/goffmpeg/internal/linebuffer"
)

// FFprobePath to ffprobe binary. Will be used as name to cmd.Command.
var FFprobePath = "ffprobe"

// FFProbeResult ffprobe result
type FFProbeResult struct {
	Format  FFProbeFormat   `json:"format"`
	Streams []FFProbeStream `json:"streams"`
}

const (
	SideDataDisplayMatrix = "Display Matrix"
)

type SideData struct {
	SideDataType string `json:"side_data_type"`
	Rotation     int    `json:"rotation"` // counter clockwise rotation
}

// FFProbeStream ffprobe stream result
type FFProbeStream struct {
	Index        uint       `json:"index"`
	CodecName    string     `json:"codec_name"`
	CodecType    string     `json:"codec_type"`
	RFrameRate   string     `json:"r_frame_rate"`
	AvgFrameRate string     `json:"avg_frame_rate"`
	Duration     string     `json:"duration"`
	NbFrames     string     `json:"nb_frames"`
	Width        uint       `json:"width"`
	Height       uint       `json:"height"`
	PixFmt       string     `json:"pix_fmt"`
	SideDataList []SideData `json:"side_data_list"`
}

func (fps FFProbeStream) Rotation() int {
	for _, s := range fps.SideDataList {
		if s.SideDataType == SideDataDisplayMatrix {
			return s.Rotation
		}
	}
	return 0
}

func (fps FFProbeStream) DisplayWidth() uint {
	switch fps.Rotation() {
	case -90, 90, -270, 270:
		return fps.Height
	}
	return fps.Width
}

func (fps FFProbeStream) DisplayHeight() uint {
	switch fps.Rotation() {
	case -90, 90, -270, 270:
		return fps.Width
	}
	return fps.Height
}

// ParseRate parses a ffprobe rational like "30000/1001" or "25"
func ParseRate(s string) (float64, error) {
	num, den, hasDen := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("rate %q: %w", s, err)
	}
	if !hasDen {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("rate %q: zero denominator", s)
	}
	return n / d, nil
}

// FrameRate average frame rate, falls back to r_frame_rate
func (fps FFProbeStream) FrameRate() (float64, error) {
	for _, s := range []string{fps.AvgFrameRate, fps.RFrameRate} {
		if r, err := ParseRate(s); err == nil && r > 0 {
			return r, nil
		}
	}
	return 0, errors.New("no frame rate")
}

// FFProbeFormat ffprobe format result
type FFProbeFormat struct {
	Filename       string `json:"filename"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	ProbeScore     uint   `json:"probe_score"`
}

// FindFirstStreamCodecType find first stream with codec type
func (fpr FFProbeResult) FindFirstStreamCodecType(codecType string) (FFProbeStream, bool) {
	for _, s := range fpr.Streams {
		if s.CodecType == codecType {
			return s, true
		}
	}
	return FFProbeStream{}, false
}

// FormatName probed format (first value if comma separated)
func (fpr FFProbeResult) FormatName() string {
	return strings.Split(fpr.Format.FormatName, ",")[0]
}

// Duration probed duration
func (fpr FFProbeResult) Duration() time.Duration {
	v, _ := strconv.ParseFloat(fpr.Format.Duration, 64)
	return time.Duration(v * float64(time.Second))
}

func (fpr FFProbeResult) String() string {
	var codecs []string
	for _, s := range fpr.Streams {
		codecs = append(codecs, s.CodecName)
	}
	return fmt.Sprintf("%s:%s", fpr.FormatName(), strings.Join(codecs, ":"))
}

// FFProbeCmd is a ffprobe command
type FFProbeCmd struct {
	Flags []string
	Input Input

	ProbeResult FFProbeResult `json:"-"`

	Context             context.Context `json:"-"`
	StderrBufferNrLines int             `json:"-"`
	Stderr              io.Writer       `json:"-"`
	Logger              *slog.Logger    `json:"-"`

	cmd             *execextra.Cmd
	waitCh          chan error
	stderrLastLines *linebuffer.LastLines
}

// Start ffprobe cmd
func (fp *FFProbeCmd) Start() error {
	if fp.Context != nil {
		fp.cmd = execextra.CommandContext(fp.Context, FFprobePath)
	} else {
		fp.cmd = execextra.Command(FFprobePath)
	}
	fp.cmd.Args = append(fp.cmd.Args,
		"-hide_banner",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	)
	fp.cmd.Args = append(fp.cmd.Args, fp.Flags...)
	fp.cmd.Args = append(fp.cmd.Args, kvargs.MapToSortedArgs(fp.Input.Options, kvargs.OptionArg(""))...)
	fp.cmd.Args = append(fp.cmd.Args, fp.Input.Flags...)
	if fp.Input.Format != "" {
		fp.cmd.Args = append(fp.cmd.Args, "-f", fp.Input.Format)
	}
	fp.cmd.Args = append(fp.cmd.Args, fp.Input.File)

	var stderrws []io.Writer
	nrLines := fp.StderrBufferNrLines
	if nrLines == 0 {
		nrLines = 100
	}
	fp.stderrLastLines = linebuffer.NewLastLines(nrLines)
	stderrws = append(stderrws, fp.stderrLastLines)
	if fp.Stderr != nil {
		stderrws = append(stderrws, fp.Stderr)
	}
	fp.cmd.Stderr = io.MultiWriter(stderrws...)

	stdout, err := fp.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if fp.Logger != nil {
		fp.Logger.Debug("ffprobe", "args", strings.Join(fp.cmd.Args, " "))
	}
	if err := fp.cmd.Start(); err != nil {
		return err
	}

	fp.waitCh = make(chan error, 1)
	go func() {
		jsonErr := json.NewDecoder(stdout).Decode(&fp.ProbeResult)
		// drain so ffprobe does not block on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
		waitErr := fp.cmd.Wait()
		fp.stderrLastLines.Close()

		if waitErr != nil {
			fp.waitCh <- waitErr
			return
		}
		fp.waitCh <- jsonErr
	}()

	return nil
}

// Wait for ffprobe cmd to finish
// Note that the error message might include command details that are sensitive
func (fp *FFProbeCmd) Wait() error {
	err := <-fp.waitCh
	if err != nil {
		return fmt.Errorf("%w: %s", err, fp.stderrLastLines.String())
	}

	return nil
}

// Run starts and waits for ffprobe to finish
// Note that the error message might include command details that are sensitive
func (fp *FFProbeCmd) Run() error {
	if err := fp.Start(); err != nil {
		return err
	}
	return fp.Wait()
}

// Result start and wait for ffprobe to finish and return info
// Note that the error message might include command details that are sensitive
func (fp *FFProbeCmd) Result() (FFProbeResult, error) {
	if err := fp.Run(); err != nil {
		return FFProbeResult{}, err
	}
	return fp.ProbeResult, nil
}
