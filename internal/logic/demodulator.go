package logic

import "time"

// Step describes how one edge was interpreted. It is returned for tracing.
type Step struct {
	Edge     Edge
	Duration time.Duration
	Symbol   Symbol
	State    State
	Bits     int
}

// Demodulator measures edge-to-edge durations, classifies them and feeds
// the assembler. Durations are taken since the previous edge of either
// polarity, so with alternating levels a rising edge measures the low gap
// before it and a falling edge measures the pulse width.
type Demodulator struct {
	timing Timing
	asm    *Assembler
	last   time.Duration
	synced bool
}

// NewDemodulator creates a demodulator using the given timing windows.
func NewDemodulator(timing Timing) *Demodulator {
	return &Demodulator{
		timing: timing,
		asm:    NewAssembler(),
	}
}

// Feed processes one edge. It returns the completed frame and true when
// this edge delivered the 40th bit.
func (d *Demodulator) Feed(e Edge) (Frame, bool, Step) {
	if !d.synced {
		d.synced = true
		d.last = e.Timestamp
		return Frame{}, false, Step{Edge: e, State: d.asm.State()}
	}

	dur := e.Timestamp - d.last
	d.last = e.Timestamp

	sym := d.timing.Classify(dur, e.Level)
	frame, ok := d.asm.Push(sym, e.Level)
	return frame, ok, Step{
		Edge:     e,
		Duration: dur,
		Symbol:   sym,
		State:    d.asm.State(),
		Bits:     d.asm.Len(),
	}
}

// Reset drops any partial frame and forgets the timing reference, so the
// next edge only re-establishes it.
func (d *Demodulator) Reset() {
	d.asm.Reset()
	d.synced = false
}

// Timing returns the classification windows in use.
func (d *Demodulator) Timing() Timing {
	return d.timing
}

// State returns the assembler state.
func (d *Demodulator) State() State {
	return d.asm.State()
}

// Stats returns the assembler counters.
func (d *Demodulator) Stats() AssemblerStats {
	return d.asm.Stats()
}
