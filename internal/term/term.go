// Package term has terminal helpers for frame output.
package term

import (
	"io"
	"os"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Columns returns the width of the terminal f in character cells.
func Columns(f *os.File) (int, error) {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, err
	}
	return w, nil
}

// Reset clears the screen and resets the terminal to its initial state.
func Reset(w io.Writer) error {
	_, err := io.WriteString(w, ansi.ResetInitialState)
	return err
}

// HideCursor hides the cursor and returns a function that shows it again.
// The returned function is safe to call more than once.
func HideCursor(w io.Writer) (show func() error, err error) {
	if _, err := io.WriteString(w, ansi.HideCursor); err != nil {
		return nil, err
	}
	shown := false
	return func() error {
		if shown {
			return nil
		}
		shown = true
		_, err := io.WriteString(w, ansi.ShowCursor)
		return err
	}, nil
}
