package st7735

import (
	"image/color"

	"periph.io/x/devices/v3/st7735/rgb565"
	"tinygo.org/x/drivers"
)

// Displayer adapts d to drivers.Displayer so TinyGo graphics libraries can
// draw on it.
//
// There is no frame buffer: SetPixel writes through immediately and Display
// only reports the first error seen since the previous call.
func (d *Dev) Displayer() drivers.Displayer {
	return &displayer{d: d}
}

type displayer struct {
	d   *Dev
	err error
}

func (p *displayer) Size() (x, y int16) {
	r := p.d.Bounds()
	return int16(r.Dx()), int16(r.Dy())
}

// SetPixel ignores coordinates outside the panel.
func (p *displayer) SetPixel(x, y int16, c color.RGBA) {
	r := p.d.Bounds()
	if x < 0 || y < 0 || int(x) >= r.Dx() || int(y) >= r.Dy() {
		return
	}
	err := p.d.DrawPixel(int(x), int(y), rgb565.Model.Convert(c).(rgb565.Color))
	if err != nil && p.err == nil {
		p.err = err
	}
}

func (p *displayer) Display() error {
	err := p.err
	p.err = nil
	return err
}
