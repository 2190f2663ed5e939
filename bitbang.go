package st7735

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// BitBangTransport clocks bytes out in SPI mode 0 by toggling two GPIO lines.
// The receiver samples SDO on the rising edge of SCK.
type BitBangTransport struct {
	sck  Line
	sdo  Line
	half time.Duration
}

// NewBitBangTransport returns a Transport on the sck and sdo lines. f is the
// target clock rate; a zero f toggles the lines as fast as they allow.
func NewBitBangTransport(sck, sdo Line, f physic.Frequency) *BitBangTransport {
	t := &BitBangTransport{sck: sck, sdo: sdo}
	if f > 0 {
		t.half = f.Period() / 2
	}
	return t
}

// Transmit implements Transport. Bits go out most significant first.
func (t *BitBangTransport) Transmit(b byte) error {
	for i := 7; i >= 0; i-- {
		if err := t.sck.Out(gpio.Low); err != nil {
			return err
		}
		if err := t.sdo.Out(gpio.Level(b>>uint(i)&1 == 1)); err != nil {
			return err
		}
		t.wait()
		if err := t.sck.Out(gpio.High); err != nil {
			return err
		}
		t.wait()
	}
	return nil
}

// wait spins for half a clock period. Sleeping would overshoot by orders of
// magnitude at SPI rates.
func (t *BitBangTransport) wait() {
	if t.half == 0 {
		return
	}
	for start := time.Now(); time.Since(start) < t.half; {
	}
}
