// Package pixel holds the RGBA frame buffers read by the glyph kernel.
package pixel

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// BytesPerPixel is the size of one RGBA quad.
const BytesPerPixel = 4

// Buffer is a row-major sequence of non-premultiplied RGBA quads without
// row padding.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed (black, transparent) buffer.
func New(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*BytesPerPixel),
	}
}

// Wrap uses pix as backing storage, len(pix) must be width*height*4.
func Wrap(width, height int, pix []uint8) (*Buffer, error) {
	if width < 0 || height < 0 || len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("pixel: %d bytes is not a %dx%d RGBA buffer", len(pix), width, height)
	}
	return &Buffer{Width: width, Height: height, Pix: pix}, nil
}

// Offset returns the index of the first byte of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (x + y*b.Width) * BytesPerPixel
}

// Set writes one pixel, mostly useful for building test frames.
func (b *Buffer) Set(x, y int, r, g, bl, a uint8) {
	o := b.Offset(x, y)
	b.Pix[o+0] = r
	b.Pix[o+1] = g
	b.Pix[o+2] = bl
	b.Pix[o+3] = a
}

// Fill sets every pixel to the same colour.
func (b *Buffer) Fill(r, g, bl, a uint8) {
	for o := 0; o < len(b.Pix); o += BytesPerPixel {
		b.Pix[o+0] = r
		b.Pix[o+1] = g
		b.Pix[o+2] = bl
		b.Pix[o+3] = a
	}
}

// FromImage converts m to a buffer. An *image.NRGBA with a tight stride
// anchored at the origin is used without copying.
func FromImage(m image.Image) *Buffer {
	r := m.Bounds()
	if n, ok := m.(*image.NRGBA); ok && r.Min == (image.Point{}) && n.Stride == r.Dx()*BytesPerPixel {
		return &Buffer{Width: r.Dx(), Height: r.Dy(), Pix: n.Pix[:r.Dx()*r.Dy()*BytesPerPixel]}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), m, r.Min, draw.Src)
	return &Buffer{Width: r.Dx(), Height: r.Dy(), Pix: dst.Pix}
}

// Image returns a view of b as an *image.NRGBA sharing the same pixels.
func (b *Buffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Resize scales m to exactly width x height.
func Resize(m image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), m, resize.Bilinear)
}

// FromImageSize converts m to a width x height buffer, resizing only when
// the bounds differ.
func FromImageSize(m image.Image, width, height int) *Buffer {
	r := m.Bounds()
	if r.Dx() != width || r.Dy() != height {
		m = Resize(m, width, height)
	}
	return FromImage(m)
}
