// Package serial collects the configuration a DNP3 serial ByteChannel
// implementation needs: baud rate, parity, stop bits, and the
// idle-line timing a multi-drop RS-232/RS-485 transport must respect
// before asserting a new frame. It does not open a port; constructing
// a real termios-backed implementation is left to the caller, per the
// runtime.ByteChannel boundary.
package serial

import "time"

// BaudRate is a standard serial line speed.
type BaudRate int

// Baud rates in common use on DNP3 serial profiles.
const (
	Baud1200   BaudRate = 1200
	Baud2400   BaudRate = 2400
	Baud4800   BaudRate = 4800
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
)

// Parity selects the serial line's parity bit scheme.
type Parity int

// Parity modes.
const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// StopBits selects the number of stop bits framing each character.
type StopBits int

// Stop bit counts.
const (
	StopBitsOne StopBits = iota
	StopBitsTwo
)

// Config describes a serial line's framing. It mirrors the fields a
// real backend would pass to golang.org/x/sys/unix.Termios (c_cflag's
// baud/parity/stop-bit bits); this package only holds the values.
type Config struct {
	Device   string
	Baud     BaudRate
	DataBits int
	Parity   Parity
	StopBits StopBits

	// IdleTimeout is the minimum silence on the line before a new frame
	// may be asserted, the serial analogue of FT1.2's inter-frame gap
	// (cs101/ft.go's startVarFrame/startFixFrame framing assumes the
	// same idle-then-start-byte discipline).
	IdleTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = Baud9600
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = charTimeout(c.Baud) * 3
	}
}

// DefaultConfig returns a Config with DNP3's common serial defaults:
// 9600 baud, 8 data bits, no parity, one stop bit.
func DefaultConfig(device string) Config {
	c := Config{Device: device}
	c.applyDefaults()
	return c
}

// charTimeout estimates the wall-clock time to transmit one 11-bit
// serial character (start + 8 data + parity + stop; 11 bits are counted
// whatever the configured parity and stop bits) at baud,
// the unit multi-drop idle-line detection is built from.
func charTimeout(baud BaudRate) time.Duration {
	if baud <= 0 {
		baud = Baud9600
	}
	bitsPerChar := 11
	return time.Duration(float64(bitsPerChar) / float64(baud) * float64(time.Second))
}
