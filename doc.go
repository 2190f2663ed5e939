// Package st7735 controls a ST7735-family TFT LCD controller over SPI.
//
// The ST7735 drives small RGB panels, typically 128×128 or 128×160, in
// 16-bit RGB565 color. This driver streams pixels straight to the
// controller's frame memory; it keeps no frame buffer of its own.
//
// # Theory of Operation
//
// The controller memory is written in rectangular windows. A drawing call
// programs the column and row address window, issues a memory write and
// then streams two bytes per pixel. The controller advances its write
// pointer row-major inside the window. Every drawing call reprograms the
// window, so the controller state left by a previous call never matters.
//
// The driver implements the display.Drawer interface from periph.io and
// also offers simple primitives:
//
//	dev.FillRectangle(0, 0, 127, 127, rgb565.Black)
//	dev.DrawPixel(10, 10, rgb565.Red)
//	dev.DrawString(4, 4, rgb565.White, 2, "Hello")
//	dev.DrawBitmap(32, 32, 4, icon)
//
// # Hardware Connection
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	SCK         → SPI Clock (SCLK) or any GPIO when bit-banging
//	SDA         → SPI Data (MOSI) or any GPIO when bit-banging
//	A0/DC       → GPIO (any available pin)
//	CS          → SPI Chip Select or GPIO
//	RESET       → Optional: GPIO for hardware reset
//
// # Bus Selection
//
// Bytes reach the controller through a Transport chosen when the device is
// built:
//
//   - NewSPI opens a periph.io SPI port (ConnTransport).
//   - NewBitBang toggles two GPIO lines (BitBangTransport).
//   - New accepts any Transport, including SPITransport for TinyGo's
//     drivers.SPI and RegisterTransport for a raw shift register.
//
// # Basic Usage
//
//	package main
//
//	import (
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/devices/v3/st7735"
//		"periph.io/x/devices/v3/st7735/rgb565"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//		p, _ := spireg.Open("")
//		dev, _ := st7735.NewSPI(p, gpioreg.ByName("GPIO25"), &st7735.Opts{
//			W:   128,
//			H:   128,
//			RST: gpioreg.ByName("GPIO24"),
//		})
//		defer dev.Halt()
//		dev.FillRectangle(0, 0, 127, 127, rgb565.Blue)
//	}
//
// # Initialization
//
// Init pulses RST when one is provided, then sends software reset, sleep
// out, the optional Opts.InitCmds, 16-bit pixel format and display on. The
// settle delays are real durations taken from Opts.Timing and do not depend
// on the CPU clock.
//
// # Coordinates
//
// Coordinates are sent as 8-bit values, so panels are limited to 256 pixels
// per side. Windows are not clipped or reordered; the controller's behavior
// outside its addressable area is undefined. Set Opts.CheckBounds while
// developing to get ErrWindow instead.
//
// # Testing
//
// Package st7735test provides a Recorder that stands in for the transport
// and control lines and decodes the traffic into command frames.
package st7735
