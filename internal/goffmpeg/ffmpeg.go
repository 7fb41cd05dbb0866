package goffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/wader/braillify/internal/goffmpeg/internal/execextra"
	"github.com/wader/braillify/internal/goffmpeg/internal/kvargs"
	"github.com/wader/braillify/internal/goffmpeg/internal/linebuffer"
)

// FFmpegPath to ffmpeg binary. Will be used as name to cmd.Command.
var FFmpegPath = "ffmpeg"

// FFmpegCmd is a ffmpeg command
// ffmpeg
//
//	Input
//	  -i string
//	...
//	-filter_complex FilterGraph
//	Output
//	  Map
//	    -map Specifier
//	  ...
//	  io.Writer/string
//	...
type FFmpegCmd struct {
	Flags       []string     `json:"flags"`
	Inputs      []*Input     `json:"inputs"`
	FilterGraph *FilterGraph `json:"filter_graph"`
	Outputs     []*Output    `json:"outputs"`

	Context             context.Context  `json:"-"`
	CloseAfterStart     []io.Closer      `json:"-"`
	CloseAfterWait      []io.Closer      `json:"-"`
	StderrBufferNrLines int              `json:"-"`
	Stderr              io.Writer        `json:"-"`
	Logger              *slog.Logger     `json:"-"`
	ProgressFn          func(p Progress) `json:"-"`

	cmd                       *execextra.Cmd
	stderrLastLines           *linebuffer.LastLines
	currentProgress           Progress
	currentProgressLineBuffer *linebuffer.Fn
}

type Input struct {
	File    string            `json:"file"`
	Format  string            `json:"format"`
	Options map[string]string `json:"options"`
	Flags   []string          `json:"flags"`
}

type Output struct {
	File    interface{}       `json:"file"` // io.Writer/string
	Maps    []*Map            `json:"maps"`
	Format  string            `json:"format"`
	Options map[string]string `json:"options"`
	Flags   []string          `json:"flags"`
}

type Map struct {
	// Input is nil for filter graph outputs, Specifier is then the link label
	Input     *Input            `json:"input"`
	Specifier string            `json:"specifier"`
	Codec     string            `json:"codec"`
	Options   map[string]string `json:"options"`
}

type FilterGraph []FilterChain

type FilterChain []Filter

type Filter struct {
	Name    string            `json:"name"`
	Inputs  []string          `json:"inputs"`
	Outputs []string          `json:"outputs"`
	Options map[string]string `json:"options"`
}

type Progress struct {
	Frame     int64   `json:"frame"`
	FPS       float32 `json:"fps"`
	TotalSize int64   `json:"totalsize"`
	OutTimeUS int64   `json:"outtime_us"`
	OutTime   string  `json:"outtime"`
	Speed     float32 `json:"speed"`
	Progress  string  `json:"progress"`
}

type outputWriterFn func(index int, w io.Writer) (string, error)

// ParseProgress parse a ffmpeg progress line, returns true when a block
// is complete.
// Example output:
// frame=241
// fps=79.81
// total_size=116071
// out_time_us=8674000
// out_time=00:00:08.674000
// speed=2.87x
// progress=continue or end
func ParseProgress(p *Progress, line string) bool {
	name, rawValue, ok := strings.Cut(strings.TrimRight(line, "\r\n"), "=")
	if !ok {
		return false
	}
	rawValue = strings.TrimSpace(rawValue)
	value := strings.TrimFunc(rawValue, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	i64, _ := strconv.ParseInt(value, 10, 64)
	f64, _ := strconv.ParseFloat(value, 64)
	f32 := float32(f64)

	switch name {
	case "frame":
		p.Frame = i64
	case "fps":
		p.FPS = f32
	case "total_size":
		p.TotalSize = i64
	case "out_time_us":
		p.OutTimeUS = i64
	case "out_time":
		p.OutTime = rawValue
	case "speed":
		p.Speed = f32
	case "progress":
		p.Progress = rawValue
	}

	return name == "progress"
}

var filterGraphValueEscapeRe = regexp.MustCompile(`[,:]`)

func (fg FilterGraph) String() string {
	var argsGraph []string

	for _, chain := range fg {
		var argsChain []string

		for _, filter := range chain {
			var argsFilter []string
			for _, input := range filter.Inputs {
				argsFilter = append(argsFilter, "[", strings.ReplaceAll(input, `]`, `\]`), "]")
			}
			argsFilter = append(argsFilter, filter.Name)
			if len(filter.Options) > 0 {
				// uses MapToSortedArgs to keep options in stable order
				filterOpts := kvargs.MapToSortedArgs(filter.Options, func(k, v string) []string {
					escapedV := filterGraphValueEscapeRe.ReplaceAllString(v, `\$0`)
					return []string{k + "=" + escapedV}
				})
				argsFilter = append(argsFilter, "=", strings.Join(filterOpts, ":"))
			}
			for _, output := range filter.Outputs {
				argsFilter = append(argsFilter, "[", strings.ReplaceAll(output, `]`, `\]`), "]")
			}

			argsChain = append(argsChain, strings.Join(argsFilter, ""))
		}
		argsGraph = append(argsGraph, strings.Join(argsChain, ","))
	}

	return strings.Join(argsGraph, ";")
}

func (fm *FFmpegCmd) buildArgs(outputWriterFn outputWriterFn) ([]string, error) {
	inputToIndex := map[*Input]int{}

	args := []string{
		"-nostdin",
		"-hide_banner",
	}
	args = append(args, fm.Flags...)

	if fm.ProgressFn != nil {
		fm.currentProgressLineBuffer = linebuffer.NewFn(fm.progressLine)
		progressFile, err := outputWriterFn(-1, fm.currentProgressLineBuffer)
		if err != nil {
			return nil, err
		}
		args = append(args, "-progress", progressFile)
	}

	for inputIndex, input := range fm.Inputs {
		inputToIndex[input] = inputIndex

		args = append(args, kvargs.MapToSortedArgs(input.Options, kvargs.OptionArg(""))...)
		args = append(args, input.Flags...)
		if input.Format != "" {
			args = append(args, "-f", input.Format)
		}
		args = append(args, "-i", input.File)
	}

	if fm.FilterGraph != nil {
		args = append(args, "-filter_complex", fm.FilterGraph.String())
	}

	for outputIndex, output := range fm.Outputs {
		for streamIndex, m := range output.Maps {
			args = append(args, "-map")
			var specifier []string
			if m.Input != nil {
				inputIndex, ok := inputToIndex[m.Input]
				if !ok {
					return nil, fmt.Errorf("can't find input %#v for map %#v", m.Input, m)
				}
				specifier = append(specifier, strconv.Itoa(inputIndex))
			}
			if m.Specifier != "" {
				specifier = append(specifier, m.Specifier)
			}
			args = append(args, strings.Join(specifier, ":"))

			streamIndexStr := strconv.Itoa(streamIndex)
			if m.Codec != "" {
				args = append(args, "-codec:"+streamIndexStr, m.Codec)
			}
			args = append(args, kvargs.MapToSortedArgs(m.Options, kvargs.OptionArg(":"+streamIndexStr))...)
		}

		if output.Format != "" {
			args = append(args, "-f", output.Format)
		}
		args = append(args, kvargs.MapToSortedArgs(output.Options, kvargs.OptionArg(""))...)
		args = append(args, output.Flags...)

		switch file := output.File.(type) {
		case string:
			args = append(args, file)
		case io.Writer:
			a, err := outputWriterFn(outputIndex, file)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		default:
			return nil, fmt.Errorf("unknown output file type %#v should be string or io.Writer", output.File)
		}
	}

	return args, nil
}

// Args returns the arguments with pipe placeholders for writer outputs
func (fm *FFmpegCmd) Args() []string {
	args, err := fm.buildArgs(
		func(outputIndex int, w io.Writer) (string, error) {
			if outputIndex < 0 {
				return "pipe-progress", nil
			}
			return fmt.Sprintf("pipe-output-index:%d", outputIndex), nil
		},
	)
	if err != nil {
		panic(err)
	}
	return args
}

func (fm *FFmpegCmd) progressLine(line string) {
	if ParseProgress(&fm.currentProgress, line) {
		fm.ProgressFn(fm.currentProgress)
		fm.currentProgress = Progress{}
	}
}

func (fm *FFmpegCmd) Start() error {
	if fm.Context != nil {
		fm.cmd = execextra.CommandContext(fm.Context, FFmpegPath)
	} else {
		fm.cmd = execextra.Command(FFmpegPath)
	}
	for _, closer := range fm.CloseAfterStart {
		fm.cmd.CloseAfterStart(closer)
	}
	for _, closer := range fm.CloseAfterWait {
		fm.cmd.CloseAfterWait(closer)
	}

	args, err := fm.buildArgs(
		func(outputIndex int, w io.Writer) (string, error) {
			outChildFD, err := fm.cmd.ExtraOut(w)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("pipe:%d", outChildFD), nil
		},
	)
	if err != nil {
		fm.cmd.Abort()
		return err
	}

	var stderrws []io.Writer
	nrLines := fm.StderrBufferNrLines
	if nrLines == 0 {
		nrLines = 100
	}
	fm.stderrLastLines = linebuffer.NewLastLines(nrLines)
	stderrws = append(stderrws, fm.stderrLastLines)
	if fm.Stderr != nil {
		stderrws = append(stderrws, fm.Stderr)
	}
	fm.cmd.Stderr = io.MultiWriter(stderrws...)
	fm.cmd.Args = append(fm.cmd.Args, args...)

	if fm.Logger != nil {
		fm.Logger.Debug("ffmpeg", "args", strings.Join(fm.cmd.Args, " "))
	}

	return fm.cmd.Start()
}

// Wait for cmd to finish
// Note that the error message might include command details that are sensitive
func (fm *FFmpegCmd) Wait() error {
	err := fm.cmd.Wait()
	if fm.currentProgressLineBuffer != nil {
		fm.currentProgressLineBuffer.Close()
	}
	if fm.stderrLastLines != nil {
		fm.stderrLastLines.Close()
	}

	if err != nil {
		return fmt.Errorf("%w: %s", err, fm.stderrLastLines.String())
	}

	return nil
}

// Run starts and waits for ffmpeg to finish
// Note that the error message might include command details that are sensitive
func (fm *FFmpegCmd) Run() error {
	if err := fm.Start(); err != nil {
		return err
	}
	return fm.Wait()
}

// StderrBuffer returns the last stderr lines as a string
// Note that the stderr might include command details that are sensitive
func (fm *FFmpegCmd) StderrBuffer() string {
	return fm.stderrLastLines.String()
}
