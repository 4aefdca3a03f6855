package gpio

import (
	"time"

	"github.com/sweeney/weather433/internal/logic"
)

// FakeSource is a test double that replays scripted edges.
type FakeSource struct {
	// Closed tracks if Close was called.
	Closed bool

	// DroppedCount is returned by Dropped.
	DroppedCount uint64

	edges chan logic.Edge
}

// NewFakeSource creates a FakeSource that delivers the given edges and then
// closes its channel.
func NewFakeSource(edges []logic.Edge) *FakeSource {
	ch := make(chan logic.Edge, len(edges))
	for _, e := range edges {
		ch <- e
	}
	close(ch)
	return &FakeSource{edges: ch}
}

// Edges returns the scripted edge channel.
func (f *FakeSource) Edges() <-chan logic.Edge {
	return f.edges
}

// Dropped returns DroppedCount.
func (f *FakeSource) Dropped() uint64 {
	return f.DroppedCount
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Nominal waveform timings of the sensor.
const (
	PulseWidth  = 500 * time.Microsecond
	PreambleGap = 8000 * time.Microsecond
	OneGap      = 4000 * time.Microsecond
	ZeroGap     = 1800 * time.Microsecond
)

// Transmission returns the edges of one datagram starting at start: a
// falling edge, the preamble gap, then a low gap and a pulse per bit. The
// returned end time is the timestamp of the last edge.
func Transmission(start time.Duration, f logic.Frame) ([]logic.Edge, time.Duration) {
	t := start
	edges := make([]logic.Edge, 0, 2*logic.FrameBits+3)
	edges = append(edges, logic.Edge{Timestamp: t, Level: logic.Falling})

	symbol := func(gap time.Duration) {
		t += gap
		edges = append(edges, logic.Edge{Timestamp: t, Level: logic.Rising})
		t += PulseWidth
		edges = append(edges, logic.Edge{Timestamp: t, Level: logic.Falling})
	}

	symbol(PreambleGap)
	for _, bit := range f {
		if bit {
			symbol(OneGap)
		} else {
			symbol(ZeroGap)
		}
	}
	return edges, t
}

// Burst returns n back-to-back transmissions of the same frame, the way the
// sensor repeats each datagram: each repeat's preamble gap follows the last
// pulse of the previous one.
func Burst(start time.Duration, f logic.Frame, n int) []logic.Edge {
	var edges []logic.Edge
	t := start
	for i := 0; i < n; i++ {
		e, end := Transmission(t, f)
		if i > 0 {
			e = e[1:]
		}
		edges = append(edges, e...)
		t = end
	}
	return edges
}
