// Package bitmap implements the flat pixel-array resource format drawn by
// st7735.Dev.DrawBitmap.
//
// A Bitmap is a slice of 16-bit words. Element 0 is the width and element 1
// the height, in pixels. They are followed by width*height RGB565 colors in
// row-major order.
package bitmap

import (
	"errors"
	"fmt"
	"image"
	_ "image/png" // Decode
	"io"

	_ "golang.org/x/image/bmp" // Decode
	"periph.io/x/devices/v3/st7735/rgb565"
)

// ErrFormat is returned for a Bitmap whose body does not match its header.
var ErrFormat = errors.New("bitmap: malformed bitmap")

// Bitmap is a [width, height, pixels...] resource.
type Bitmap []uint16

// New returns a black w×h bitmap.
func New(w, h int) Bitmap {
	b := make(Bitmap, 2+w*h)
	b[0], b[1] = uint16(w), uint16(h)
	return b
}

// Width returns the header width, or 0 for a truncated header.
func (b Bitmap) Width() int {
	if len(b) < 2 {
		return 0
	}
	return int(b[0])
}

// Height returns the header height, or 0 for a truncated header.
func (b Bitmap) Height() int {
	if len(b) < 2 {
		return 0
	}
	return int(b[1])
}

// Validate checks that the body holds exactly width*height pixels.
func (b Bitmap) Validate() error {
	if len(b) < 2 {
		return fmt.Errorf("%w: header has %d words", ErrFormat, len(b))
	}
	if want := 2 + b.Width()*b.Height(); len(b) != want {
		return fmt.Errorf("%w: %dx%d needs %d words, got %d", ErrFormat, b.Width(), b.Height(), want, len(b))
	}
	return nil
}

// At returns the color at column col of row row.
func (b Bitmap) At(col, row int) rgb565.Color {
	return rgb565.Color(b[2+row*b.Width()+col])
}

// Set sets the color at column col of row row.
func (b Bitmap) Set(col, row int, c rgb565.Color) {
	b[2+row*b.Width()+col] = uint16(c)
}

// FromImage converts img to a Bitmap.
func FromImage(img image.Image) Bitmap {
	r := img.Bounds()
	b := New(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			b.Set(x-r.Min.X, y-r.Min.Y, rgb565.Model.Convert(img.At(x, y)).(rgb565.Color))
		}
	}
	return b
}

// Decode reads a BMP or PNG image and converts it to a Bitmap. Images
// larger than 65535 pixels on a side cannot be represented.
func Decode(r io.Reader) (Bitmap, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("bitmap: %w", err)
	}
	if s := img.Bounds().Size(); s.X > 0xFFFF || s.Y > 0xFFFF {
		return nil, fmt.Errorf("%w: %dx%d is too large", ErrFormat, s.X, s.Y)
	}
	return FromImage(img), nil
}
