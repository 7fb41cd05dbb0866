// Package linebuffer splits process output into lines.
package linebuffer

import (
	"bytes"
	"strings"
)

// Fn calls fn for each complete line written, terminator included.
// Both '\n' and '\r' end a line so ffmpeg's carriage return status updates
// are seen as they happen.
type Fn struct {
	pending []byte
	fn      func(line string)
}

// NewFn returns a writer that calls fn once per line.
func NewFn(fn func(line string)) *Fn {
	return &Fn{fn: fn}
}

func (f *Fn) Write(p []byte) (int, error) {
	f.pending = append(f.pending, p...)
	for {
		i := bytes.IndexAny(f.pending, "\n\r")
		if i < 0 {
			break
		}
		f.fn(string(f.pending[:i+1]))
		f.pending = f.pending[i+1:]
	}
	// compact so a long lived writer does not keep growing
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return len(p), nil
}

// Close passes any unterminated tail to fn.
func (f *Fn) Close() error {
	if len(f.pending) > 0 {
		f.fn(string(f.pending))
	}
	f.pending = nil
	return nil
}

// LastLines keeps the most recent lines written, used to attach the end of
// stderr to process errors.
type LastLines struct {
	Fn
	lines []string
	next  int
	n     int
}

// NewLastLines keeps at most limit lines.
func NewLastLines(limit int) *LastLines {
	ll := &LastLines{lines: make([]string, max(limit, 1))}
	ll.fn = ll.add
	return ll
}

func (ll *LastLines) add(line string) {
	ll.lines[ll.next] = line
	ll.next = (ll.next + 1) % len(ll.lines)
	ll.n = min(ll.n+1, len(ll.lines))
}

// Len is the number of lines kept.
func (ll *LastLines) Len() int { return ll.n }

// String joins the kept lines oldest first.
func (ll *LastLines) String() string {
	var sb strings.Builder
	start := (ll.next - ll.n + len(ll.lines)) % len(ll.lines)
	for i := range ll.n {
		sb.WriteString(ll.lines[(start+i)%len(ll.lines)])
	}
	return sb.String()
}
