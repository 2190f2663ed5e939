package st7735

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/st7735/rgb565"
)

// Controller opcodes.
const (
	swReset     = 0x01
	sleepOut    = 0x11
	inverseOff  = 0x20
	inverseOn   = 0x21
	displayOff  = 0x28
	displayOn   = 0x29
	columnAddr  = 0x2A
	rowAddr     = 0x2B
	memoryWrite = 0x2C
	pixelFormat = 0x3A

	// colorMode16 selects 16 bits per pixel for pixelFormat.
	colorMode16 = 0x05
)

// maxDim is the largest panel side addressable with 8-bit coordinates.
const maxDim = 256

// DefaultFreq is the SPI clock used when Opts.Freq is zero.
const DefaultFreq = 4 * physic.MegaHertz

var (
	// ErrHalted is returned by drawing operations after Halt.
	ErrHalted = errors.New("st7735: halted")
	// ErrWindow is returned when Opts.CheckBounds is set and a window is
	// inverted or falls outside the panel.
	ErrWindow = errors.New("st7735: window out of range")
	// ErrScale is returned for a text size or bitmap scale below 1.
	ErrScale = errors.New("st7735: scale must be at least 1")
)

// Timing holds the power-on delays. Zero fields take the value from
// DefaultTiming.
type Timing struct {
	ResetPulse  time.Duration // RST held low
	ResetSettle time.Duration // after RST is released
	SoftReset   time.Duration // after SWRESET
	SleepOut    time.Duration // after SLPOUT
}

// DefaultTiming matches the controller datasheet minimums with some margin.
var DefaultTiming = Timing{
	ResetPulse:  10 * time.Millisecond,
	ResetSettle: 120 * time.Millisecond,
	SoftReset:   120 * time.Millisecond,
	SleepOut:    120 * time.Millisecond,
}

func (t Timing) withDefaults() Timing {
	if t.ResetPulse == 0 {
		t.ResetPulse = DefaultTiming.ResetPulse
	}
	if t.ResetSettle == 0 {
		t.ResetSettle = DefaultTiming.ResetSettle
	}
	if t.SoftReset == 0 {
		t.SoftReset = DefaultTiming.SoftReset
	}
	if t.SleepOut == 0 {
		t.SleepOut = DefaultTiming.SleepOut
	}
	return t
}

// Command is a controller command with its parameter bytes and the delay to
// observe after it.
type Command struct {
	Cmd   byte
	Data  []byte
	Delay time.Duration
}

// Opts is the configuration for the ST7735 display.
type Opts struct {
	// Panel dimensions in pixels (default: 128x128, each at most 256).
	W int
	H int

	// Optional chip-select line. Leave nil when the transport drives CS
	// itself, like a spidev chip enable.
	CS Line
	// Optional hardware reset line.
	RST Line

	// Bus clock for NewSPI and NewBitBang (default: DefaultFreq).
	Freq physic.Frequency

	Timing Timing

	// InitCmds are issued after sleep-out and before the pixel format is
	// set. Use them for panel-specific frame rate, power and gamma settings.
	InitCmds []Command

	// CheckBounds rejects inverted or off-panel windows with ErrWindow
	// instead of sending them to the controller.
	CheckBounds bool

	// Sleep waits for power-on delays (default: time.Sleep).
	Sleep func(time.Duration)
}

// Dev is the device handle for the ST7735 display.
//
// All methods are safe for concurrent use. Each call owns the bus from the
// window setup through the last pixel byte.
type Dev struct {
	mu sync.Mutex

	// Communication
	t   Transport
	dc  Line
	cs  Line
	rst Line

	rect        image.Rectangle
	timing      Timing
	initCmds    []Command
	checkBounds bool
	sleep       func(time.Duration)

	halted bool
}

var _ display.Drawer = &Dev{}

// New returns a Dev that talks to the controller through t, then runs Init.
//
// dc is the command/data select line and is required.
// opts can be nil to use defaults.
func New(t Transport, dc Line, opts *Opts) (*Dev, error) {
	if t == nil {
		return nil, errors.New("st7735: transport is required")
	}
	if dc == nil {
		return nil, errors.New("st7735: dc line is required")
	}
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.W == 0 {
		o.W = 128
	}
	if o.H == 0 {
		o.H = 128
	}
	if o.W < 0 || o.W > maxDim {
		return nil, fmt.Errorf("st7735: width must be between 1 and %d", maxDim)
	}
	if o.H < 0 || o.H > maxDim {
		return nil, fmt.Errorf("st7735: height must be between 1 and %d", maxDim)
	}

	d := &Dev{
		t:           t,
		dc:          dc,
		cs:          o.CS,
		rst:         o.RST,
		rect:        image.Rect(0, 0, o.W, o.H),
		timing:      o.Timing.withDefaults(),
		initCmds:    o.InitCmds,
		checkBounds: o.CheckBounds,
		sleep:       o.Sleep,
	}
	if d.cs == nil {
		d.cs = noLine{}
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}

	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewSPI returns a Dev on a hardware SPI port.
//
// The port is configured for Mode0 (CPOL=0, CPHA=0), 8-bit transfers, at
// opts.Freq.
func NewSPI(p spi.Port, dc Line, opts *Opts) (*Dev, error) {
	c, err := p.Connect(freq(opts), spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("st7735: %w", err)
	}
	return New(NewConnTransport(c), dc, opts)
}

// NewBitBang returns a Dev whose bus is clocked by toggling the sck and sdo
// lines at roughly opts.Freq.
func NewBitBang(sck, sdo, dc Line, opts *Opts) (*Dev, error) {
	if sck == nil || sdo == nil {
		return nil, errors.New("st7735: sck and sdo lines are required")
	}
	return New(NewBitBangTransport(sck, sdo, freq(opts)), dc, opts)
}

func freq(opts *Opts) physic.Frequency {
	if opts == nil || opts.Freq == 0 {
		return DefaultFreq
	}
	return opts.Freq
}

// Init resets the controller and runs the bring-up sequence: software
// reset, sleep out, any Opts.InitCmds, 16-bit pixel format, display on.
//
// The controller's window and write pointer are unknown afterwards; every
// drawing call programs its own window.
func (d *Dev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Idle level for the active-low lines.
	for _, l := range []Line{d.cs, d.dc} {
		if err := l.Out(gpio.High); err != nil {
			return fmt.Errorf("st7735: failed to idle control line: %w", err)
		}
	}

	if d.rst != nil {
		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("st7735: failed to pull RST high: %w", err)
		}
		if err := d.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("st7735: failed to pull RST low: %w", err)
		}
		d.sleep(d.timing.ResetPulse)
		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("st7735: failed to pull RST high: %w", err)
		}
		d.sleep(d.timing.ResetSettle)
	}

	cmds := []Command{
		{Cmd: swReset, Delay: d.timing.SoftReset},
		{Cmd: sleepOut, Delay: d.timing.SleepOut},
	}
	cmds = append(cmds, d.initCmds...)
	cmds = append(cmds,
		Command{Cmd: pixelFormat, Data: []byte{colorMode16}},
		Command{Cmd: displayOn},
	)
	for _, c := range cmds {
		if err := d.send(c); err != nil {
			return err
		}
	}

	d.halted = false
	return nil
}

// send issues a command, its parameters, then waits out its delay.
func (d *Dev) send(c Command) error {
	if err := d.writeCommand(c.Cmd); err != nil {
		return err
	}
	for _, b := range c.Data {
		if err := d.writeData(b); err != nil {
			return err
		}
	}
	if c.Delay != 0 {
		d.sleep(c.Delay)
	}
	return nil
}

// writeCommand sends one opcode byte with DC and CS asserted.
func (d *Dev) writeCommand(cmd byte) error {
	err := d.dc.Out(gpio.Low)
	if err == nil {
		err = d.cs.Out(gpio.Low)
	}
	if err == nil {
		err = d.t.Transmit(cmd)
	}
	return release(err, d.dc, d.cs)
}

// writeData sends one parameter or pixel byte. DC is left at its idle
// level, which the controller reads as data.
func (d *Dev) writeData(b byte) error {
	err := d.cs.Out(gpio.Low)
	if err == nil {
		err = d.t.Transmit(b)
	}
	return release(err, d.cs)
}

// stream runs f with CS held low for its whole duration.
func (d *Dev) stream(f func() error) error {
	err := d.cs.Out(gpio.Low)
	if err == nil {
		err = f()
	}
	return release(err, d.cs)
}

// release returns lines to their idle high level, even when err is set.
// The first error wins.
func release(err error, lines ...Line) error {
	for _, l := range lines {
		if e := l.Out(gpio.High); err == nil {
			err = e
		}
	}
	return err
}

// SetWindow programs the column and row address window and leaves the
// controller expecting pixel data. Corners are inclusive.
func (d *Dev) SetWindow(x1, y1, x2, y2 int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if err := d.checkRect(x1, y1, x2, y2); err != nil {
		return err
	}
	return d.setWindow(x1, y1, x2, y2)
}

func (d *Dev) setWindow(x1, y1, x2, y2 int) error {
	if err := d.send(Command{Cmd: columnAddr, Data: []byte{0x00, byte(x1), 0x00, byte(x2)}}); err != nil {
		return err
	}
	if err := d.send(Command{Cmd: rowAddr, Data: []byte{0x00, byte(y1), 0x00, byte(y2)}}); err != nil {
		return err
	}
	return d.writeCommand(memoryWrite)
}

func (d *Dev) checkRect(x1, y1, x2, y2 int) error {
	if !d.checkBounds {
		return nil
	}
	if x1 > x2 || y1 > y2 || !image.Pt(x1, y1).In(d.rect) || !image.Pt(x2, y2).In(d.rect) {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d) on %dx%d", ErrWindow, x1, y1, x2, y2, d.rect.Dx(), d.rect.Dy())
	}
	return nil
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return rgb565.Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Invert turns display color inversion on or off.
func (d *Dev) Invert(invert bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	cmd := byte(inverseOff)
	if invert {
		cmd = inverseOn
	}
	return d.writeCommand(cmd)
}

// Halt turns the display off. Drawing operations fail with ErrHalted until
// Init is called again.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeCommand(displayOff); err != nil {
		return err
	}
	d.halted = true
	return nil
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("st7735.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}
