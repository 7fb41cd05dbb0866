// Package animation encodes and decodes rendered frame sequences.
//
// A document is a single line of text:
//
//	Braillify;Frame Delay:<ms>;Data:<frame>#<frame>#...#
//
// Frames are kept as rendered, including the cursor home prefix and line
// breaks.
package animation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	Tag = "Braillify"

	fieldSep  = ";"
	keySep    = ":"
	frameSep  = "#"
	delayKey  = "Frame Delay"
	framesKey = "Data"
)

// ErrFrameDelimiter is returned when encoding a frame that contains the
// frame delimiter.
var ErrFrameDelimiter = errors.New("frame contains " + frameSep)

// SyntaxError describes a malformed document.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return "animation: " + e.Msg }

// Document is a frame delay in milliseconds and frames in display order.
type Document struct {
	Delay  int
	Frames []string
}

// Append adds a frame to the end of the document.
func (d *Document) Append(frame string) {
	d.Frames = append(d.Frames, frame)
}

// IsDocument reports whether bs starts with the document tag as its first
// field.
func IsDocument(bs []byte) bool {
	return bytes.HasPrefix(bs, []byte(Tag+fieldSep))
}

// Encode writes d to w.
func (d Document) Encode(w io.Writer) error {
	for i, f := range d.Frames {
		if strings.Contains(f, frameSep) {
			return fmt.Errorf("frame %d: %w", i, ErrFrameDelimiter)
		}
	}

	var sb strings.Builder
	n := len(Tag) + len(delayKey) + len(framesKey) + 32
	for _, f := range d.Frames {
		n += len(f) + 1
	}
	sb.Grow(n)

	sb.WriteString(Tag)
	sb.WriteString(fieldSep)
	sb.WriteString(delayKey)
	sb.WriteString(keySep)
	sb.WriteString(strconv.Itoa(d.Delay))
	sb.WriteString(fieldSep)
	sb.WriteString(framesKey)
	sb.WriteString(keySep)
	for _, f := range d.Frames {
		sb.WriteString(f)
		sb.WriteString(frameSep)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Marshal returns the encoded document.
func Marshal(d Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func field(s, key string) (string, error) {
	k, v, ok := strings.Cut(s, keySep)
	if !ok || k != key {
		return "", &SyntaxError{Msg: fmt.Sprintf("expected %q field", key)}
	}
	return v, nil
}

// Unmarshal parses a document. A missing trailing frame delimiter is
// accepted.
func Unmarshal(bs []byte) (Document, error) {
	// frames may contain field separators, only split the header
	parts := strings.SplitN(string(bs), fieldSep, 3)
	if len(parts) != 3 {
		return Document{}, &SyntaxError{Msg: "expected 3 fields"}
	}
	if parts[0] != Tag {
		return Document{}, &SyntaxError{Msg: fmt.Sprintf("expected %q tag", Tag)}
	}

	delayStr, err := field(parts[1], delayKey)
	if err != nil {
		return Document{}, err
	}
	delay, err := strconv.Atoi(delayStr)
	if err != nil {
		return Document{}, &SyntaxError{Msg: fmt.Sprintf("frame delay %q: not an integer", delayStr)}
	}
	if delay < 0 {
		return Document{}, &SyntaxError{Msg: fmt.Sprintf("frame delay %d: negative", delay)}
	}

	data, err := field(parts[2], framesKey)
	if err != nil {
		return Document{}, err
	}

	d := Document{Delay: delay}
	if data == "" {
		return d, nil
	}
	d.Frames = strings.Split(strings.TrimSuffix(data, frameSep), frameSep)

	return d, nil
}

// Decode reads and parses a document from r.
func Decode(r io.Reader) (Document, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}
	return Unmarshal(bs)
}
