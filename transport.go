package st7735

import (
	"errors"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"tinygo.org/x/drivers"
)

// Transport clocks single bytes onto the bus. Transmit returns once the
// byte has been fully shifted out. It must not touch the CS or DC lines.
//
// The implementation is picked when the Dev is built, so the per-byte path
// carries no mode switch.
type Transport interface {
	Transmit(b byte) error
}

// Line is an active-low control line. gpio.PinOut satisfies it.
type Line interface {
	Out(l gpio.Level) error
}

type noLine struct{}

func (noLine) Out(gpio.Level) error { return nil }

// ConnTransport sends bytes over a periph.io connection, typically a spidev
// port opened with spi.Port.Connect.
type ConnTransport struct {
	c   conn.Conn
	buf [1]byte
}

// NewConnTransport returns a Transport writing to c.
func NewConnTransport(c conn.Conn) *ConnTransport {
	return &ConnTransport{c: c}
}

// Transmit implements Transport.
func (t *ConnTransport) Transmit(b byte) error {
	t.buf[0] = b
	return t.c.Tx(t.buf[:], nil)
}

func (t *ConnTransport) String() string {
	return t.c.String()
}

// SPITransport sends bytes through a TinyGo SPI peripheral such as
// machine.SPI0. The bus must already be configured.
type SPITransport struct {
	bus drivers.SPI
}

// NewSPITransport returns a Transport writing to bus.
func NewSPITransport(bus drivers.SPI) *SPITransport {
	return &SPITransport{bus: bus}
}

// Transmit implements Transport.
func (t *SPITransport) Transmit(b byte) error {
	_, err := t.bus.Transfer(b)
	return err
}

// ErrBusTimeout is returned when a shift register never reports completion.
var ErrBusTimeout = errors.New("st7735: timed out waiting for transmit")

// DefaultPolls bounds the busy-wait of a RegisterTransport.
const DefaultPolls = 1 << 16

// ShiftRegister is a memory-mapped SPI transmit buffer.
type ShiftRegister interface {
	// Load writes b to the transmit buffer, starting the shift.
	Load(b byte)
	// Done reports whether the last loaded byte has been shifted out.
	Done() bool
}

// RegisterTransport drives a ShiftRegister directly, busy-waiting on its
// completion flag after each byte.
type RegisterTransport struct {
	r     ShiftRegister
	polls int
}

// NewRegisterTransport returns a Transport on r that gives up after polls
// reads of the completion flag. polls <= 0 selects DefaultPolls.
func NewRegisterTransport(r ShiftRegister, polls int) *RegisterTransport {
	if polls <= 0 {
		polls = DefaultPolls
	}
	return &RegisterTransport{r: r, polls: polls}
}

// Transmit implements Transport.
func (t *RegisterTransport) Transmit(b byte) error {
	t.r.Load(b)
	for i := 0; i < t.polls; i++ {
		if t.r.Done() {
			return nil
		}
	}
	return ErrBusTimeout
}
