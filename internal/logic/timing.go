package logic

import (
	"fmt"
	"time"
)

// Window is an open duration interval: Min < d < Max.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Contains reports whether d lies strictly inside the window.
func (w Window) Contains(d time.Duration) bool {
	return d > w.Min && d < w.Max
}

func (w Window) overlaps(o Window) bool {
	return w.Min < o.Max && o.Min < w.Max
}

func (w Window) String() string {
	return fmt.Sprintf("%d-%dus", w.Min.Microseconds(), w.Max.Microseconds())
}

// AltZeroWindow is the zero-bit window used by a later firmware revision.
var AltZeroWindow = Window{Min: 1300 * time.Microsecond, Max: 2300 * time.Microsecond}

// Timing holds the classification windows. Rising-edge durations are low
// gaps (preamble/one/zero); falling-edge durations are pulse widths.
type Timing struct {
	Preamble Window
	One      Window
	Zero     Window
	Pulse    Window
}

// DefaultTiming returns the windows the sensor was calibrated against.
func DefaultTiming() Timing {
	return Timing{
		Preamble: Window{Min: 7000 * time.Microsecond, Max: 9000 * time.Microsecond},
		One:      Window{Min: 3200 * time.Microsecond, Max: 4900 * time.Microsecond},
		Zero:     Window{Min: 1200 * time.Microsecond, Max: 2400 * time.Microsecond},
		Pulse:    Window{Min: 400 * time.Microsecond, Max: 900 * time.Microsecond},
	}
}

// Validate checks that every window is non-empty and that the rising-edge
// windows are pairwise disjoint.
func (t Timing) Validate() error {
	named := []struct {
		name string
		w    Window
	}{
		{"preamble", t.Preamble},
		{"one", t.One},
		{"zero", t.Zero},
		{"pulse", t.Pulse},
	}
	for _, n := range named {
		if n.w.Min < 0 || n.w.Max-n.w.Min < 2*time.Microsecond {
			return fmt.Errorf("%s window %s is empty", n.name, n.w)
		}
	}
	rising := named[:3]
	for i := range rising {
		for j := i + 1; j < len(rising); j++ {
			if rising[i].w.overlaps(rising[j].w) {
				return fmt.Errorf("%s window %s overlaps %s window %s",
					rising[i].name, rising[i].w, rising[j].name, rising[j].w)
			}
		}
	}
	return nil
}

// Classify maps a duration measured on an edge of the given polarity to a
// symbol. Durations in the dead zones between windows classify as
// SymbolError.
func (t Timing) Classify(d time.Duration, level Level) Symbol {
	if level == Falling {
		if t.Pulse.Contains(d) {
			return SymbolSeparator
		}
		return SymbolError
	}

	switch {
	case t.Preamble.Contains(d):
		return SymbolPreamble
	case t.One.Contains(d):
		return SymbolOne
	case t.Zero.Contains(d):
		return SymbolZero
	default:
		return SymbolError
	}
}
