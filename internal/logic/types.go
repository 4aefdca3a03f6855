// Package logic contains the pure decoding logic for the 433MHz weather sensor:
// pulse classification, frame assembly, datagram decoding and the dedup gate.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time and time.Duration parameters.
package logic

import (
	"strings"
	"time"
)

// FrameBits is the number of bits in one sensor datagram.
const FrameBits = 40

// Level is the polarity of a signal edge.
type Level uint8

const (
	Falling Level = 0
	Rising  Level = 1
)

func (l Level) String() string {
	if l == Rising {
		return "RISING"
	}
	return "FALLING"
}

// Edge is a single transition reported by an edge source.
type Edge struct {
	// Timestamp is monotonic; only differences between edges are meaningful.
	Timestamp time.Duration
	Level     Level
}

// Symbol is the meaning assigned to one measured edge-to-edge duration.
type Symbol string

const (
	SymbolPreamble  Symbol = "PREAMBLE"
	SymbolOne       Symbol = "ONE"
	SymbolZero      Symbol = "ZERO"
	SymbolSeparator Symbol = "SEPARATOR"
	SymbolError     Symbol = "ERROR"
)

// Frame is a completed datagram. Index 0 is the first bit received.
type Frame [FrameBits]bool

// Field returns bits [from, to) as an unsigned integer, MSB first.
func (f Frame) Field(from, to int) uint32 {
	var v uint32
	for i := from; i < to; i++ {
		v <<= 1
		if f[i] {
			v |= 1
		}
	}
	return v
}

// SetField writes v into bits [from, to), MSB first. Bits of v above the
// field width are ignored.
func (f *Frame) SetField(from, to int, v uint32) {
	for i := to - 1; i >= from; i-- {
		f[i] = v&1 == 1
		v >>= 1
	}
}

// String renders the frame as a run of 0/1 characters.
func (f Frame) String() string {
	var b strings.Builder
	b.Grow(FrameBits)
	for _, bit := range f {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Reading is a decoded sensor datagram in engineering units.
type Reading struct {
	Address        uint8
	Channel        uint8
	TemperatureRaw uint16
	HumidityRaw    uint8
	TemperatureF   float64
	TemperatureC   float64
	Humidity       int
	BatteryLow     bool
}

// AssemblerStats counts assembler outcomes since startup.
type AssemblerStats struct {
	Preambles int // frames started from Idle
	Resyncs   int // preamble seen while receiving; partial bits discarded
	Aborts    int // out-of-window symbol while receiving
	Frames    int // completed 40-bit frames
}

// GateStats counts dedup gate decisions since startup.
type GateStats struct {
	Emitted    int
	Suppressed int
}
