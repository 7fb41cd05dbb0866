// Package geometry fits frame dimensions to the 2x4 pixel glyph cell grid.
package geometry

// Cell dimensions in pixels.
const (
	CellWidth  = 2
	CellHeight = 4
)

// Normalize scales the source dimensions by scale percent and rounds the
// result up to the cell grid. Scaled dimensions are truncated before
// rounding, not rounded to nearest. resize reports whether the source
// needs to be resized to the returned dimensions.
func Normalize(srcWidth, srcHeight int, scale float64) (width, height int, resize bool) {
	if scale <= 0 {
		return 0, 0, srcWidth != 0 || srcHeight != 0
	}

	width = int(scale * float64(srcWidth) / 100)
	height = int(scale * float64(srcHeight) / 100)

	width += width % CellWidth
	if r := height % CellHeight; r != 0 {
		height += CellHeight - r
	}

	return width, height, width != srcWidth || height != srcHeight
}

// Valid reports whether width and height describe a non-empty cell grid.
func Valid(width, height int) bool {
	return width > 0 && height > 0 && width%CellWidth == 0 && height%CellHeight == 0
}

// Cells returns the number of glyph columns and rows for a normalized frame.
func Cells(width, height int) (columns, rows int) {
	return width / CellWidth, height / CellHeight
}

// ScaleToFit returns the scale percent that makes srcWidth render in at
// most columns glyph columns.
func ScaleToFit(srcWidth, columns int) float64 {
	if srcWidth <= 0 || columns <= 0 {
		return 0
	}
	return 100 * float64(columns*CellWidth) / float64(srcWidth)
}
