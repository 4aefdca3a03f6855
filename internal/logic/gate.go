package logic

import (
	"bytes"
	"time"
)

// DefaultDedupWindow is how long an identical reading is treated as a
// retransmission of the last published one.
const DefaultDedupWindow = 6000 * time.Millisecond

// Gate decides whether a serialized reading is forwarded. It holds the
// last published payload and the time of that decision for the lifetime of
// the process.
type Gate struct {
	window time.Duration
	last   []byte
	lastAt time.Time
	primed bool
	stats  GateStats
}

// NewGate creates a gate with the given dedup window.
func NewGate(window time.Duration) *Gate {
	return &Gate{window: window}
}

// Allow reports whether payload should be published at now. A payload is
// emitted if it differs from the last emitted one or if more than the dedup
// window has elapsed since the last emit. State is only updated on emit.
func (g *Gate) Allow(payload []byte, now time.Time) bool {
	if g.primed && bytes.Equal(payload, g.last) && now.Sub(g.lastAt) <= g.window {
		g.stats.Suppressed++
		return false
	}

	g.last = append(g.last[:0], payload...)
	g.lastAt = now
	g.primed = true
	g.stats.Emitted++
	return true
}

// Window returns the dedup window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// Stats returns the decision counters.
func (g *Gate) Stats() GateStats {
	return g.stats
}
