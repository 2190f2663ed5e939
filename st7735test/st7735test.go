// Package st7735test provides a simulated bus for testing code that drives a
// ST7735 without hardware.
//
// A Recorder stands in for both the byte transport and the control lines.
// It logs every level change, every byte and every delay request in order,
// so tests can assert on the exact wire traffic.
package st7735test

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Names of the lines a Recorder uses to classify bytes.
const (
	CS  = "CS"
	DC  = "DC"
	RST = "RST"
	SCK = "SCK"
	SDO = "SDO"
)

// Kind identifies an Event.
type Kind int

// Event kinds.
const (
	LineOut Kind = iota
	ByteOut
	Sleep
)

// Event is one recorded bus action.
type Event struct {
	Kind Kind

	// LineOut
	Line  string
	Level gpio.Level

	// ByteOut, with the CS and DC levels at the time the byte was clocked.
	B      byte
	CS, DC gpio.Level

	// Sleep
	D time.Duration
}

func (e Event) String() string {
	switch e.Kind {
	case LineOut:
		return fmt.Sprintf("%s=%s", e.Line, e.Level)
	case ByteOut:
		return fmt.Sprintf("byte %#02x (CS=%s DC=%s)", e.B, e.CS, e.DC)
	default:
		return fmt.Sprintf("sleep %s", e.D)
	}
}

// Frame is a command byte followed by its data bytes.
type Frame struct {
	Cmd  byte
	Data []byte
}

// Recorder records traffic. The zero value is ready to use; every line
// starts Low.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	levels map[string]gpio.Level
	// Fail, when set, is returned by the next Transmit or Out call and then
	// cleared. The failing call is not recorded.
	Fail error
}

// Line returns a named output line backed by r.
func (r *Recorder) Line(name string) *Line {
	return &Line{r: r, name: name}
}

// Transmit implements the byte transport. It always succeeds unless Fail is
// set.
func (r *Recorder) Transmit(b byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFail(); err != nil {
		return err
	}
	r.events = append(r.events, Event{Kind: ByteOut, B: b, CS: r.levels[CS], DC: r.levels[DC]})
	return nil
}

// Sleep records a delay request without waiting.
func (r *Recorder) Sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: Sleep, D: d})
}

// Level returns the current level of the named line.
func (r *Recorder) Level(name string) gpio.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[name]
}

// Events returns a copy of the log.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset clears the log. Line levels are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Bytes returns every byte clocked out, in order.
func (r *Recorder) Bytes() []byte {
	var out []byte
	for _, e := range r.Events() {
		if e.Kind == ByteOut {
			out = append(out, e.B)
		}
	}
	return out
}

// Sleeps returns every recorded delay, in order.
func (r *Recorder) Sleeps() []time.Duration {
	var out []time.Duration
	for _, e := range r.Events() {
		if e.Kind == Sleep {
			out = append(out, e.D)
		}
	}
	return out
}

// Frames groups the recorded bytes into command frames. A byte clocked with
// DC low starts a frame; bytes clocked with DC high are appended to it. Data
// bytes seen before any command are attributed to a NOP (0x00) frame.
func (r *Recorder) Frames() []Frame {
	var out []Frame
	for _, e := range r.Events() {
		if e.Kind != ByteOut {
			continue
		}
		if e.DC == gpio.Low {
			out = append(out, Frame{Cmd: e.B})
			continue
		}
		if len(out) == 0 {
			out = append(out, Frame{})
		}
		out[len(out)-1].Data = append(out[len(out)-1].Data, e.B)
	}
	return out
}

// Violations lists the bytes that were clocked while CS was high.
func (r *Recorder) Violations() []string {
	var out []string
	for i, e := range r.Events() {
		if e.Kind == ByteOut && e.CS == gpio.High {
			out = append(out, fmt.Sprintf("event %d: %s", i, e))
		}
	}
	return out
}

// CSToggles counts CS transitions from high to low.
func (r *Recorder) CSToggles() int {
	n := 0
	prev := gpio.High
	for _, e := range r.Events() {
		if e.Kind == LineOut && e.Line == CS {
			if prev == gpio.High && e.Level == gpio.Low {
				n++
			}
			prev = e.Level
		}
	}
	return n
}

func (r *Recorder) out(name string, l gpio.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFail(); err != nil {
		return err
	}
	if r.levels == nil {
		r.levels = map[string]gpio.Level{}
	}
	r.levels[name] = l
	r.events = append(r.events, Event{Kind: LineOut, Line: name, Level: l})
	return nil
}

func (r *Recorder) takeFail() error {
	err := r.Fail
	r.Fail = nil
	return err
}

// Line is an output line that records into its Recorder.
type Line struct {
	r    *Recorder
	name string
}

// Out sets the line level.
func (l *Line) Out(v gpio.Level) error {
	return l.r.out(l.name, v)
}

// Level returns the current line level.
func (l *Line) Level() gpio.Level {
	return l.r.Level(l.name)
}

func (l *Line) String() string {
	return l.name
}

// DecodeSPI rebuilds the bytes of a bit-banged mode 0 trace. Bits are
// sampled from the SDO line on each SCK rising edge, most significant bit
// first. It fails if CS is high on a rising edge, or if the trace ends in the
// middle of a byte.
func DecodeSPI(events []Event) ([]byte, error) {
	levels := map[string]gpio.Level{}
	var out []byte
	var cur byte
	n := 0
	for i, e := range events {
		if e.Kind != LineOut {
			continue
		}
		rising := e.Line == SCK && levels[SCK] == gpio.Low && e.Level == gpio.High
		levels[e.Line] = e.Level
		if !rising {
			continue
		}
		if levels[CS] == gpio.High {
			return out, fmt.Errorf("st7735test: event %d: clock edge with CS high", i)
		}
		cur <<= 1
		if levels[SDO] == gpio.High {
			cur |= 1
		}
		if n++; n == 8 {
			out = append(out, cur)
			cur, n = 0, 0
		}
	}
	if n != 0 {
		return out, errors.New("st7735test: trace ends mid-byte")
	}
	return out, nil
}
