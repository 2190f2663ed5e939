package st7735

import (
	"errors"
	"fmt"
	"image"

	"periph.io/x/devices/v3/st7735/bitmap"
	"periph.io/x/devices/v3/st7735/rgb565"
)

// DrawPixel sets the pixel at (x, y) to c.
func (d *Dev) DrawPixel(x, y int, c rgb565.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	return d.drawPixel(x, y, c)
}

// drawPixel opens a window one past (x, y) on both axes, like the fill of
// the same corners, but sends a single pixel. The far edge stays at 0xFF on
// a 256-pixel side.
func (d *Dev) drawPixel(x, y int, c rgb565.Color) error {
	if err := d.checkRect(x, y, x, y); err != nil {
		return err
	}
	if err := d.setWindow(x, y, min(x+1, maxDim-1), min(y+1, maxDim-1)); err != nil {
		return err
	}
	hi, lo := c.Bytes()
	if err := d.writeData(hi); err != nil {
		return err
	}
	return d.writeData(lo)
}

// FillRectangle paints the inclusive rectangle (x1, y1)-(x2, y2) with c.
// Corners are not reordered; an inverted rectangle sends no pixels.
func (d *Dev) FillRectangle(x1, y1, x2, y2 int, c rgb565.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	return d.fillRectangle(x1, y1, x2, y2, c)
}

func (d *Dev) fillRectangle(x1, y1, x2, y2 int, c rgb565.Color) error {
	if err := d.checkRect(x1, y1, x2, y2); err != nil {
		return err
	}
	if err := d.setWindow(x1, y1, x2, y2); err != nil {
		return err
	}
	hi, lo := c.Bytes()
	w, h := x2-x1+1, y2-y1+1
	return d.stream(func() error {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if err := d.t.Transmit(hi); err != nil {
					return err
				}
				if err := d.t.Transmit(lo); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DrawBitmap draws bm with its top-left corner at (x, y), each source pixel
// enlarged to a scale×scale block.
func (d *Dev) DrawBitmap(x, y, scale int, bm bitmap.Bitmap) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if scale < 1 {
		return ErrScale
	}
	if err := bm.Validate(); err != nil {
		return fmt.Errorf("st7735: %w", err)
	}
	for i := 0; i < bm.Height(); i++ {
		for j := 0; j < bm.Width(); j++ {
			px, py := x+j*scale, y+i*scale
			if err := d.fillRectangle(px, py, px+scale-1, py+scale-1, bm.At(j, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Draw implements display.Drawer.
//
// dst is clipped to the panel and written as a single window; src is
// sampled from sp onward. Colors are converted with rgb565.Model.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}

	// Clip to display bounds
	clipped := dst.Intersect(d.rect)
	if clipped.Empty() {
		return nil
	}
	sp = sp.Add(clipped.Min.Sub(dst.Min))
	dst = clipped

	at := func(x, y int) rgb565.Color {
		return rgb565.Model.Convert(src.At(x, y)).(rgb565.Color)
	}
	if img, ok := src.(*rgb565.Image); ok {
		at = img.RGB565At
	}

	if err := d.setWindow(dst.Min.X, dst.Min.Y, dst.Max.X-1, dst.Max.Y-1); err != nil {
		return err
	}
	return d.stream(func() error {
		for y := 0; y < dst.Dy(); y++ {
			for x := 0; x < dst.Dx(); x++ {
				hi, lo := at(sp.X+x, sp.Y+y).Bytes()
				if err := d.t.Transmit(hi); err != nil {
					return err
				}
				if err := d.t.Transmit(lo); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Write writes a raw full frame: two bytes per pixel, high byte first, rows
// top to bottom. The data must be exactly W*H*2 bytes.
func (d *Dev) Write(pixels []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return 0, ErrHalted
	}
	if len(pixels) != 2*d.rect.Dx()*d.rect.Dy() {
		return 0, errors.New("st7735: invalid buffer size")
	}
	if err := d.setWindow(0, 0, d.rect.Dx()-1, d.rect.Dy()-1); err != nil {
		return 0, err
	}
	err := d.stream(func() error {
		for _, b := range pixels {
			if err := d.t.Transmit(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(pixels), nil
}
