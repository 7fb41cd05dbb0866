// Package glyph maps 2x4 pixel cells to Unicode code points.
//
// Each cell is sampled at 8 fixed positions. A sample is lit when its grey
// level sqrt((R²+G²+B²)/3) is strictly above Threshold*255, or at or below it
// when Invert is set. The lit samples form an 8 bit mask that is turned into
// a glyph either as a Braille pattern (dot order) or through AltGlyph (block
// order).
package glyph

import (
	"fmt"
	"math"
	"strings"

	"github.com/wader/braillify/internal/geometry"
	"github.com/wader/braillify/internal/pixel"
)

// BrailleBase is the empty Braille pattern, U+2800. Patterns U+2800-U+28FF
// map one to one to masks 0x00-0xFF.
const BrailleBase rune = 0x2800

// Space is the glyph used for a Braille cell with no lit samples.
type Space rune

const (
	SpaceASCII Space = ' '
	SpaceBlank Space = Space(BrailleBase)
	SpaceDot   Space = Space(BrailleBase + 1)
)

// ParseSpace parses "space", "blank" or "dot", case insensitive.
func ParseSpace(s string) (Space, error) {
	switch strings.ToLower(s) {
	case "space":
		return SpaceASCII, nil
	case "blank":
		return SpaceBlank, nil
	case "dot":
		return SpaceDot, nil
	}
	return 0, fmt.Errorf("unknown space glyph %q (space, blank or dot)", s)
}

func (s Space) String() string {
	switch s {
	case SpaceASCII:
		return "space"
	case SpaceBlank:
		return "blank"
	case SpaceDot:
		return "dot"
	}
	return fmt.Sprintf("%U", rune(s))
}

// Options controls how cells are classified and encoded.
type Options struct {
	Threshold float64 // 0-1
	Invert    bool
	Space     Space
	Alt       bool // use AltGlyph with block order instead of Braille
}

type offset struct{ dx, dy int }

// bit index -> sample position, Braille dot numbering 1-8
var dotOrder = [8]offset{
	{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}, {0, 3}, {1, 3},
}

// bit index -> sample position, row by row
var blockOrder = [8]offset{
	{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0, 2}, {1, 2}, {0, 3}, {1, 3},
}

// Lit reports whether an RGB sample is lit for the given threshold.
func Lit(r, g, b uint8, threshold float64, invert bool) bool {
	fr, fg, fb := float64(r), float64(g), float64(b)
	grey := math.Sqrt((fr*fr + fg*fg + fb*fb) / 3)
	return (grey > threshold*255) == !invert
}

func mask(p *pixel.Buffer, i int, order *[8]offset, threshold float64, invert bool) uint8 {
	columns := p.Width / geometry.CellWidth
	x := (i % columns) * geometry.CellWidth
	y := (i / columns) * geometry.CellHeight

	var m uint8
	for bit, o := range order {
		po := p.Offset(x+o.dx, y+o.dy)
		if Lit(p.Pix[po], p.Pix[po+1], p.Pix[po+2], threshold, invert) {
			m |= 1 << bit
		}
	}
	return m
}

// DotMask returns the Braille dot order mask of cell i.
func DotMask(p *pixel.Buffer, i int, threshold float64, invert bool) uint8 {
	return mask(p, i, &dotOrder, threshold, invert)
}

// BlockMask returns the block order mask of cell i.
func BlockMask(p *pixel.Buffer, i int, threshold float64, invert bool) uint8 {
	return mask(p, i, &blockOrder, threshold, invert)
}

// Braille returns the Braille pattern for mask, or space for an empty mask.
func Braille(m uint8, space Space) rune {
	if m == 0 {
		return rune(space)
	}
	return BrailleBase + rune(m)
}

// Cell computes the glyph of cell i. Cells are numbered row-major over
// the (Width/2) x (Height/4) grid. Cell only reads p.
func Cell(p *pixel.Buffer, i int, opts Options) rune {
	if opts.Alt {
		return AltGlyph(BlockMask(p, i, opts.Threshold, opts.Invert))
	}
	return Braille(DotMask(p, i, opts.Threshold, opts.Invert), opts.Space)
}

// Count returns the number of cells in a width x height frame.
func Count(width, height int) int {
	columns, rows := geometry.Cells(width, height)
	return columns * rows
}
