package st7735

import (
	"periph.io/x/devices/v3/st7735/font5x7"
	"periph.io/x/devices/v3/st7735/rgb565"
)

// DrawChar draws ch with its top-left corner at (x, y). With size 1 each lit
// glyph bit is one pixel; larger sizes paint a size×size block per bit.
// Background pixels are left untouched.
func (d *Dev) DrawChar(x, y int, ch byte, c rgb565.Color, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	return d.drawChar(x, y, ch, c, size)
}

func (d *Dev) drawChar(x, y int, ch byte, c rgb565.Color, size int) error {
	if size < 1 {
		return ErrScale
	}
	g := font5x7.Lookup(ch)
	for i := 0; i < font5x7.Width; i++ {
		line := g[i]
		for j := 0; j < font5x7.Height; j, line = j+1, line>>1 {
			if line&1 == 0 {
				continue
			}
			var err error
			if size == 1 {
				err = d.drawPixel(x+i, y+j, c)
			} else {
				px, py := x+i*size, y+j*size
				err = d.fillRectangle(px, py, px+size-1, py+size-1, c)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// DrawString draws s on one line starting at (x, y). Characters advance by
// 6*size pixels. There is no wrapping and newlines are not interpreted; a
// NUL byte ends the string.
func (d *Dev) DrawString(x, y int, c rgb565.Color, size int, s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if size < 1 {
		return ErrScale
	}
	for i := 0; i < len(s) && s[i] != 0; i++ {
		if err := d.drawChar(x+i*size*font5x7.Advance, y, s[i], c, size); err != nil {
			return err
		}
	}
	return nil
}
