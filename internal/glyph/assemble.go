package glyph

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/wader/braillify/internal/geometry"
)

// Assemble lays out row-major cell glyphs as text: a cursor home sequence
// followed by one line per cell row, each terminated by a line break.
func Assemble(glyphs []rune, width, height int) string {
	columns, rows := geometry.Cells(width, height)

	var sb strings.Builder
	// glyphs are at most 4 bytes in UTF-8
	sb.Grow(len(ansi.CursorHomePosition) + rows*(columns*4+1))
	sb.WriteString(ansi.CursorHomePosition)
	for y := 0; y < rows; y++ {
		for _, g := range glyphs[y*columns : (y+1)*columns] {
			sb.WriteRune(g)
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}
