package st7735

import (
	"bytes"
	"errors"
	"image"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/devices/v3/st7735/rgb565"
	"periph.io/x/devices/v3/st7735/st7735test"
)

// newTestDev returns an initialized Dev on a Recorder whose log has been
// cleared after Init.
func newTestDev(t *testing.T, opts *Opts) (*Dev, *st7735test.Recorder) {
	t.Helper()
	r := &st7735test.Recorder{}
	var o Opts
	if opts != nil {
		o = *opts
	}
	o.CS = r.Line(st7735test.CS)
	o.Sleep = r.Sleep
	d, err := New(r, r.Line(st7735test.DC), &o)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	r.Reset()
	return d, r
}

// assertIdle checks that the control lines ended high and that no byte was
// clocked with CS high.
func assertIdle(t *testing.T, r *st7735test.Recorder) {
	t.Helper()
	if r.Level(st7735test.CS) != gpio.High {
		t.Error("CS left low")
	}
	if r.Level(st7735test.DC) != gpio.High {
		t.Error("DC left low")
	}
	if v := r.Violations(); len(v) != 0 {
		t.Errorf("bytes clocked with CS high: %v", v)
	}
}

func TestOptsValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    *Opts
		wantErr bool
		want    image.Rectangle
	}{
		{"nil options (uses defaults)", nil, false, image.Rect(0, 0, 128, 128)},
		{"valid 128x160", &Opts{W: 128, H: 160}, false, image.Rect(0, 0, 128, 160)},
		{"valid 1x1 (minimum)", &Opts{W: 1, H: 1}, false, image.Rect(0, 0, 1, 1)},
		{"valid 256x256 (maximum)", &Opts{W: 256, H: 256}, false, image.Rect(0, 0, 256, 256)},
		{"negative width", &Opts{W: -1, H: 128}, true, image.Rectangle{}},
		{"width > 256", &Opts{W: 320, H: 128}, true, image.Rectangle{}},
		{"height > 256", &Opts{W: 128, H: 300}, true, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &st7735test.Recorder{}
			if tt.opts != nil {
				tt.opts.Sleep = r.Sleep
			}
			d, err := New(r, r.Line(st7735test.DC), tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.Bounds() != tt.want {
				t.Errorf("Bounds() = %v, want %v", d.Bounds(), tt.want)
			}
		})
	}
}

func TestNewRequiresLines(t *testing.T) {
	r := &st7735test.Recorder{}
	if _, err := New(nil, r.Line(st7735test.DC), nil); err == nil {
		t.Error("New() accepted a nil transport")
	}
	if _, err := New(r, nil, nil); err == nil {
		t.Error("New() accepted a nil dc line")
	}
	if _, err := NewBitBang(nil, r.Line(st7735test.SDO), r.Line(st7735test.DC), nil); err == nil {
		t.Error("NewBitBang() accepted a nil sck line")
	}
}

func TestInitSequence(t *testing.T) {
	r := &st7735test.Recorder{}
	d, err := New(r, r.Line(st7735test.DC), &Opts{
		CS:    r.Line(st7735test.CS),
		RST:   r.Line(st7735test.RST),
		Sleep: r.Sleep,
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []st7735test.Frame{
		{Cmd: swReset},
		{Cmd: sleepOut},
		{Cmd: pixelFormat, Data: []byte{colorMode16}},
		{Cmd: displayOn},
	}
	assertFrames(t, r.Frames(), want)

	wantSleeps := []time.Duration{
		DefaultTiming.ResetPulse,
		DefaultTiming.ResetSettle,
		DefaultTiming.SoftReset,
		DefaultTiming.SleepOut,
	}
	if got := r.Sleeps(); !equalDurations(got, wantSleeps) {
		t.Errorf("Sleeps() = %v, want %v", got, wantSleeps)
	}

	// The reset pulse comes before any byte.
	events := r.Events()
	var rst []gpio.Level
	for _, e := range events {
		if e.Kind == st7735test.ByteOut {
			break
		}
		if e.Kind == st7735test.LineOut && e.Line == st7735test.RST {
			rst = append(rst, e.Level)
		}
	}
	if len(rst) != 3 || rst[0] != gpio.High || rst[1] != gpio.Low || rst[2] != gpio.High {
		t.Errorf("RST sequence before first byte = %v, want [High Low High]", rst)
	}
	assertIdle(t, r)
	if d.halted {
		t.Error("device halted after Init")
	}
}

func TestInitCustomCommands(t *testing.T) {
	r := &st7735test.Recorder{}
	_, err := New(r, r.Line(st7735test.DC), &Opts{
		CS:    r.Line(st7735test.CS),
		Sleep: r.Sleep,
		Timing: Timing{
			SoftReset: 150 * time.Millisecond,
		},
		InitCmds: []Command{
			{Cmd: 0xB1, Data: []byte{0x01, 0x2C, 0x2D}},
			{Cmd: 0x36, Data: []byte{0xC8}, Delay: 10 * time.Millisecond},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	assertFrames(t, r.Frames(), []st7735test.Frame{
		{Cmd: swReset},
		{Cmd: sleepOut},
		{Cmd: 0xB1, Data: []byte{0x01, 0x2C, 0x2D}},
		{Cmd: 0x36, Data: []byte{0xC8}},
		{Cmd: pixelFormat, Data: []byte{colorMode16}},
		{Cmd: displayOn},
	})
	want := []time.Duration{150 * time.Millisecond, DefaultTiming.SleepOut, 10 * time.Millisecond}
	if got := r.Sleeps(); !equalDurations(got, want) {
		t.Errorf("Sleeps() = %v, want %v", got, want)
	}
}

func TestInitWithoutCS(t *testing.T) {
	r := &st7735test.Recorder{}
	d, err := New(r, r.Line(st7735test.DC), &Opts{Sleep: r.Sleep})
	if err != nil {
		t.Fatal(err)
	}
	r.Reset()
	if err := d.FillRectangle(0, 0, 0, 0, rgb565.White); err != nil {
		t.Fatal(err)
	}
	for _, e := range r.Events() {
		if e.Kind == st7735test.LineOut && e.Line == st7735test.CS {
			t.Fatalf("CS line touched without a CS option: %v", e)
		}
	}
	// 11 window bytes and one pixel.
	if got := len(r.Bytes()); got != 13 {
		t.Errorf("sent %d bytes, want 13", got)
	}
}

func TestSetWindow(t *testing.T) {
	d, r := newTestDev(t, nil)
	if err := d.SetWindow(2, 3, 100, 120); err != nil {
		t.Fatal(err)
	}
	window := []st7735test.Frame{
		{Cmd: columnAddr, Data: []byte{0x00, 2, 0x00, 100}},
		{Cmd: rowAddr, Data: []byte{0x00, 3, 0x00, 120}},
		{Cmd: memoryWrite},
	}
	assertFrames(t, r.Frames(), window)
	assertIdle(t, r)

	// No caching: a repeat sends the same frames again.
	if err := d.SetWindow(2, 3, 100, 120); err != nil {
		t.Fatal(err)
	}
	assertFrames(t, r.Frames(), append(append([]st7735test.Frame{}, window...), window...))
}

func TestFillRectangle(t *testing.T) {
	tests := []struct {
		name           string
		x1, y1, x2, y2 int
		c              rgb565.Color
	}{
		{"single pixel", 5, 5, 5, 5, 0xF00F},
		{"row", 0, 10, 9, 10, 0x1234},
		{"column", 3, 0, 3, 6, 0xFFAA},
		{"block", 12, 12, 24, 24, 0x0990},
		{"zero color", 0, 0, 7, 3, 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, r := newTestDev(t, nil)
			if err := d.FillRectangle(tt.x1, tt.y1, tt.x2, tt.y2, tt.c); err != nil {
				t.Fatal(err)
			}
			ws := windows(t, r.Frames())
			if len(ws) != 1 {
				t.Fatalf("got %d windows, want 1", len(ws))
			}
			w := ws[0]
			if w.Rect != image.Rect(tt.x1, tt.y1, tt.x2, tt.y2) {
				t.Errorf("window = %v", w.Rect)
			}
			n := (tt.x2 - tt.x1 + 1) * (tt.y2 - tt.y1 + 1)
			if len(w.Pixels) != 2*n {
				t.Fatalf("sent %d data bytes, want %d", len(w.Pixels), 2*n)
			}
			hi, lo := tt.c.Bytes()
			for i := 0; i < len(w.Pixels); i += 2 {
				if w.Pixels[i] != hi || w.Pixels[i+1] != lo {
					t.Fatalf("pixel %d = % x, want %02x %02x", i/2, w.Pixels[i:i+2], hi, lo)
				}
			}
			assertIdle(t, r)
		})
	}
}

func TestFillFullScreen(t *testing.T) {
	d, r := newTestDev(t, nil)
	if err := d.FillRectangle(0, 0, 127, 127, 0x0000); err != nil {
		t.Fatal(err)
	}
	frames := r.Frames()
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	px := frames[2].Data
	if len(px) != 32768 {
		t.Fatalf("sent %d data bytes, want 32768", len(px))
	}
	if !bytes.Equal(px, make([]byte, 32768)) {
		t.Error("pixel stream is not all zero")
	}
	// 3 commands, 8 window parameters and one frame for the whole stream.
	if n := r.CSToggles(); n != 12 {
		t.Errorf("CS asserted %d times, want 12", n)
	}
	assertIdle(t, r)
}

func TestFillRectangleInverted(t *testing.T) {
	d, r := newTestDev(t, nil)
	if err := d.FillRectangle(10, 10, 5, 5, rgb565.White); err != nil {
		t.Fatal(err)
	}
	frames := r.Frames()
	if len(frames) != 3 || len(frames[2].Data) != 0 {
		t.Errorf("inverted fill sent %+v, want a window and no pixels", frames)
	}
	assertIdle(t, r)
}

func TestDrawPixelIsDegenerateFill(t *testing.T) {
	const c = rgb565.Color(0xABCD)
	d, r := newTestDev(t, nil)
	if err := d.DrawPixel(5, 6, c); err != nil {
		t.Fatal(err)
	}
	got := r.Frames()

	d2, r2 := newTestDev(t, nil)
	if err := d2.FillRectangle(5, 6, 6, 7, c); err != nil {
		t.Fatal(err)
	}
	fill := r2.Frames()

	// Same window as the fill of (x, y)-(x+1, y+1), but one pixel only.
	want := []st7735test.Frame{fill[0], fill[1], {Cmd: memoryWrite, Data: []byte{0xAB, 0xCD}}}
	assertFrames(t, got, want)
	assertIdle(t, r)
}

func TestDrawPixelLastColumn(t *testing.T) {
	tests := []struct {
		name           string
		opts           *Opts
		x, y           int
		wantX2, wantY2 byte
	}{
		{"256x256 corner", &Opts{W: 256, H: 256, CheckBounds: true}, 255, 255, 0xFF, 0xFF},
		{"256 wide last column", &Opts{W: 256, H: 128}, 255, 10, 0xFF, 11},
		{"128x160 corner", &Opts{W: 128, H: 160, CheckBounds: true}, 127, 159, 128, 160},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, r := newTestDev(t, tt.opts)
			if err := d.DrawPixel(tt.x, tt.y, rgb565.White); err != nil {
				t.Fatal(err)
			}
			want := []st7735test.Frame{
				{Cmd: columnAddr, Data: []byte{0x00, byte(tt.x), 0x00, tt.wantX2}},
				{Cmd: rowAddr, Data: []byte{0x00, byte(tt.y), 0x00, tt.wantY2}},
				{Cmd: memoryWrite, Data: []byte{0xFF, 0xFF}},
			}
			assertFrames(t, r.Frames(), want)
			assertIdle(t, r)
		})
	}
}

func TestCheckBounds(t *testing.T) {
	tests := []struct {
		name    string
		call    func(d *Dev) error
		wantErr bool
	}{
		{"inverted x", func(d *Dev) error { return d.FillRectangle(5, 0, 4, 0, 0) }, true},
		{"inverted y", func(d *Dev) error { return d.SetWindow(0, 5, 0, 4) }, true},
		{"negative", func(d *Dev) error { return d.FillRectangle(-1, 0, 4, 0, 0) }, true},
		{"past edge", func(d *Dev) error { return d.FillRectangle(0, 0, 128, 10, 0) }, true},
		{"pixel past edge", func(d *Dev) error { return d.DrawPixel(0, 128, 0) }, true},
		{"corner pixel", func(d *Dev) error { return d.DrawPixel(127, 127, 0) }, false},
		{"full screen", func(d *Dev) error { return d.FillRectangle(0, 0, 127, 127, 0) }, false},
		{"text off edge", func(d *Dev) error { return d.DrawString(120, 0, 0xFFFF, 1, "AB") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, r := newTestDev(t, &Opts{CheckBounds: true})
			err := tt.call(d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrWindow) {
				t.Errorf("error = %v, want ErrWindow", err)
			}
			assertIdle(t, r)
		})
	}
}

func TestCheckBoundsSendsNothing(t *testing.T) {
	d, r := newTestDev(t, &Opts{CheckBounds: true})
	if err := d.FillRectangle(0, 0, 200, 200, 0); !errors.Is(err, ErrWindow) {
		t.Fatalf("FillRectangle() = %v, want ErrWindow", err)
	}
	if b := r.Bytes(); len(b) != 0 {
		t.Errorf("sent % x for a rejected window", b)
	}
}

func TestBusIdleAfterEveryOperation(t *testing.T) {
	ops := []struct {
		name string
		call func(d *Dev) error
	}{
		{"Init", func(d *Dev) error { return d.Init() }},
		{"SetWindow", func(d *Dev) error { return d.SetWindow(0, 0, 3, 3) }},
		{"DrawPixel", func(d *Dev) error { return d.DrawPixel(1, 1, rgb565.Red) }},
		{"FillRectangle", func(d *Dev) error { return d.FillRectangle(0, 0, 3, 3, rgb565.Green) }},
		{"DrawBitmap", func(d *Dev) error { return d.DrawBitmap(0, 0, 2, []uint16{1, 1, 0xFFFF}) }},
		{"DrawChar", func(d *Dev) error { return d.DrawChar(0, 0, 'x', rgb565.Blue, 2) }},
		{"DrawString", func(d *Dev) error { return d.DrawString(0, 0, rgb565.White, 1, "ok") }},
		{"Draw", func(d *Dev) error {
			return d.Draw(image.Rect(0, 0, 2, 2), image.NewUniform(rgb565.Cyan), image.Point{})
		}},
		{"Write", func(d *Dev) error {
			_, err := d.Write(make([]byte, 2*128*128))
			return err
		}},
		{"Invert", func(d *Dev) error { return d.Invert(true) }},
		{"Halt", func(d *Dev) error { return d.Halt() }},
	}

	for _, tt := range ops {
		t.Run(tt.name, func(t *testing.T) {
			d, r := newTestDev(t, nil)
			if err := tt.call(d); err != nil {
				t.Fatal(err)
			}
			if len(r.Bytes()) == 0 {
				t.Fatal("no bytes sent")
			}
			assertIdle(t, r)
		})
	}
}

var errBus = errors.New("bus fault")

// failAfter fails every Transmit once n bytes have gone through.
type failAfter struct {
	*st7735test.Recorder
	n int
}

func (f *failAfter) Transmit(b byte) error {
	if f.n == 0 {
		return errBus
	}
	f.n--
	return f.Recorder.Transmit(b)
}

func TestErrorsReleaseLines(t *testing.T) {
	for _, n := range []int{0, 1, 5, 12, 20} {
		r := &st7735test.Recorder{}
		f := &failAfter{Recorder: r, n: -1}
		d, err := New(f, r.Line(st7735test.DC), &Opts{CS: r.Line(st7735test.CS), Sleep: r.Sleep})
		if err != nil {
			t.Fatal(err)
		}
		f.n = n
		if err := d.FillRectangle(0, 0, 3, 3, rgb565.White); !errors.Is(err, errBus) {
			t.Errorf("after %d bytes: FillRectangle() = %v, want %v", n, err, errBus)
		}
		assertIdle(t, r)
	}
}

func TestLineErrorReleasesLines(t *testing.T) {
	d, r := newTestDev(t, nil)
	r.Fail = errBus
	if err := d.FillRectangle(0, 0, 1, 1, 0); !errors.Is(err, errBus) {
		t.Fatalf("FillRectangle() = %v, want %v", err, errBus)
	}
	assertIdle(t, r)
}

func TestInvert(t *testing.T) {
	d, r := newTestDev(t, nil)
	if err := d.Invert(true); err != nil {
		t.Fatal(err)
	}
	if err := d.Invert(false); err != nil {
		t.Fatal(err)
	}
	assertFrames(t, r.Frames(), []st7735test.Frame{{Cmd: inverseOn}, {Cmd: inverseOff}})
}

func TestDevHalt(t *testing.T) {
	d, r := newTestDev(t, nil)
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	assertFrames(t, r.Frames(), []st7735test.Frame{{Cmd: displayOff}})

	if err := d.SetWindow(0, 0, 1, 1); err != ErrHalted {
		t.Errorf("SetWindow() = %v, want ErrHalted", err)
	}
	if err := d.DrawPixel(0, 0, 0); err != ErrHalted {
		t.Errorf("DrawPixel() = %v, want ErrHalted", err)
	}
	if err := d.FillRectangle(0, 0, 1, 1, 0); err != ErrHalted {
		t.Errorf("FillRectangle() = %v, want ErrHalted", err)
	}
	if err := d.DrawBitmap(0, 0, 1, []uint16{0, 0}); err != ErrHalted {
		t.Errorf("DrawBitmap() = %v, want ErrHalted", err)
	}
	if err := d.DrawChar(0, 0, 'A', 0, 1); err != ErrHalted {
		t.Errorf("DrawChar() = %v, want ErrHalted", err)
	}
	if err := d.DrawString(0, 0, 0, 1, "A"); err != ErrHalted {
		t.Errorf("DrawString() = %v, want ErrHalted", err)
	}
	if err := d.Draw(d.Bounds(), image.NewRGBA(d.Bounds()), image.Point{}); err != ErrHalted {
		t.Errorf("Draw() = %v, want ErrHalted", err)
	}
	if _, err := d.Write(make([]byte, 2*128*128)); err != ErrHalted {
		t.Errorf("Write() = %v, want ErrHalted", err)
	}
	if err := d.Invert(true); err != ErrHalted {
		t.Errorf("Invert() = %v, want ErrHalted", err)
	}

	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.DrawPixel(0, 0, 0); err != nil {
		t.Errorf("DrawPixel() after Init = %v", err)
	}
}

func TestDevHaltBusError(t *testing.T) {
	d, r := newTestDev(t, nil)
	r.Fail = errBus
	if err := d.Halt(); !errors.Is(err, errBus) {
		t.Fatalf("Halt() = %v, want %v", err, errBus)
	}
	assertIdle(t, r)

	// The panel may still be on, so drawing keeps working.
	if err := d.DrawPixel(0, 0, 0); err != nil {
		t.Errorf("DrawPixel() after failed Halt = %v", err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := d.DrawPixel(0, 0, 0); err != ErrHalted {
		t.Errorf("DrawPixel() = %v, want ErrHalted", err)
	}
}

func TestDevBounds(t *testing.T) {
	d, _ := newTestDev(t, &Opts{W: 128, H: 160})
	want := image.Rect(0, 0, 128, 160)
	if got := d.Bounds(); got != want {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}
}

func TestDevColorModel(t *testing.T) {
	dev := &Dev{}
	if dev.ColorModel() != rgb565.Model {
		t.Error("ColorModel() did not return rgb565.Model")
	}
}

func TestDevString(t *testing.T) {
	dev := &Dev{
		rect: image.Rect(0, 0, 128, 160),
	}
	want := "st7735.Dev{128x160}"
	if got := dev.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTimingDefaults(t *testing.T) {
	got := Timing{SleepOut: time.Second}.withDefaults()
	want := DefaultTiming
	want.SleepOut = time.Second
	if got != want {
		t.Errorf("withDefaults() = %+v, want %+v", got, want)
	}
}

// window is one set-window-then-stream round trip decoded from frames.
type window struct {
	Rect   image.Rectangle // inclusive corners, Max is (x2, y2)
	Pixels []byte
}

// windows decodes frames made only of CASET, RASET, RAMWR triples.
func windows(t *testing.T, frames []st7735test.Frame) []window {
	t.Helper()
	if len(frames)%3 != 0 {
		t.Fatalf("%d frames is not a whole number of windows", len(frames))
	}
	var out []window
	for i := 0; i < len(frames); i += 3 {
		col, row, mem := frames[i], frames[i+1], frames[i+2]
		if col.Cmd != columnAddr || row.Cmd != rowAddr || mem.Cmd != memoryWrite {
			t.Fatalf("frames %d-%d are %#02x %#02x %#02x, want a window", i, i+2, col.Cmd, row.Cmd, mem.Cmd)
		}
		if len(col.Data) != 4 || len(row.Data) != 4 || col.Data[0] != 0 || col.Data[2] != 0 || row.Data[0] != 0 || row.Data[2] != 0 {
			t.Fatalf("bad address parameters % x / % x", col.Data, row.Data)
		}
		out = append(out, window{
			Rect:   image.Rectangle{Min: image.Pt(int(col.Data[1]), int(row.Data[1])), Max: image.Pt(int(col.Data[3]), int(row.Data[3]))},
			Pixels: mem.Data,
		})
	}
	return out
}

func assertFrames(t *testing.T, got, want []st7735test.Frame) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d frames %+v, want %d %+v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i].Cmd != want[i].Cmd || !bytes.Equal(got[i].Data, want[i].Data) {
			t.Errorf("frame %d = {%#02x % x}, want {%#02x % x}", i, got[i].Cmd, got[i].Data, want[i].Cmd, want[i].Data)
		}
	}
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
