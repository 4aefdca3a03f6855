package logic

import (
	"testing"
	"time"
)

func us(n int) time.Duration { return time.Duration(n) * time.Microsecond }

func TestClassifyRising(t *testing.T) {
	tm := DefaultTiming()
	tests := []struct {
		d    time.Duration
		want Symbol
	}{
		{us(8000), SymbolPreamble},
		{us(7001), SymbolPreamble},
		{us(8999), SymbolPreamble},
		{us(7000), SymbolError}, // bounds are exclusive
		{us(9000), SymbolError},
		{us(4000), SymbolOne},
		{us(3201), SymbolOne},
		{us(4899), SymbolOne},
		{us(1800), SymbolZero},
		{us(1201), SymbolZero},
		{us(2399), SymbolZero},
		{us(2800), SymbolError}, // dead zone between zero and one
		{us(6000), SymbolError}, // dead zone between one and preamble
		{us(500), SymbolError},
		{0, SymbolError},
		{us(20000), SymbolError},
	}
	for _, tt := range tests {
		if got := tm.Classify(tt.d, Rising); got != tt.want {
			t.Errorf("Classify(%v, Rising): got %s, want %s", tt.d, got, tt.want)
		}
	}
}

func TestClassifyFalling(t *testing.T) {
	tm := DefaultTiming()
	tests := []struct {
		d    time.Duration
		want Symbol
	}{
		{us(500), SymbolSeparator},
		{us(401), SymbolSeparator},
		{us(899), SymbolSeparator},
		{us(400), SymbolError},
		{us(900), SymbolError},
		{us(1800), SymbolError}, // a zero-length gap is not a valid pulse
		{us(8000), SymbolError},
	}
	for _, tt := range tests {
		if got := tm.Classify(tt.d, Falling); got != tt.want {
			t.Errorf("Classify(%v, Falling): got %s, want %s", tt.d, got, tt.want)
		}
	}
}

// Every duration maps to exactly one symbol and rising windows never share
// a duration.
func TestClassifyTotalAndDisjoint(t *testing.T) {
	tm := DefaultTiming()
	for d := time.Duration(0); d <= us(12000); d += us(1) {
		hits := 0
		for _, w := range []Window{tm.Preamble, tm.One, tm.Zero} {
			if w.Contains(d) {
				hits++
			}
		}
		if hits > 1 {
			t.Fatalf("duration %v falls in %d rising windows", d, hits)
		}

		rs := tm.Classify(d, Rising)
		switch rs {
		case SymbolPreamble, SymbolOne, SymbolZero, SymbolError:
		default:
			t.Fatalf("rising %v: unexpected symbol %s", d, rs)
		}
		if (hits == 0) != (rs == SymbolError) {
			t.Fatalf("rising %v: got %s with %d window hits", d, rs, hits)
		}

		fs := tm.Classify(d, Falling)
		if fs != SymbolSeparator && fs != SymbolError {
			t.Fatalf("falling %v: unexpected symbol %s", d, fs)
		}
	}
}

func TestClassifyAltZeroWindow(t *testing.T) {
	tm := DefaultTiming()
	tm.Zero = AltZeroWindow

	if got := tm.Classify(us(1250), Rising); got != SymbolError {
		t.Errorf("1250us with narrow zero window: got %s, want ERROR", got)
	}
	if got := tm.Classify(us(1800), Rising); got != SymbolZero {
		t.Errorf("1800us with narrow zero window: got %s, want ZERO", got)
	}
	if got := DefaultTiming().Classify(us(1250), Rising); got != SymbolZero {
		t.Errorf("1250us with default zero window: got %s, want ZERO", got)
	}
}

func TestTimingValidate(t *testing.T) {
	if err := DefaultTiming().Validate(); err != nil {
		t.Fatalf("default timing invalid: %v", err)
	}

	alt := DefaultTiming()
	alt.Zero = AltZeroWindow
	if err := alt.Validate(); err != nil {
		t.Fatalf("alt zero timing invalid: %v", err)
	}

	overlap := DefaultTiming()
	overlap.Zero = Window{Min: us(1200), Max: us(3500)}
	if err := overlap.Validate(); err == nil {
		t.Error("expected overlap error for zero/one")
	}

	empty := DefaultTiming()
	empty.Pulse = Window{Min: us(900), Max: us(400)}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for inverted pulse window")
	}

	// Touching bounds do not overlap because both are exclusive.
	touching := DefaultTiming()
	touching.Zero = Window{Min: us(1200), Max: us(3200)}
	if err := touching.Validate(); err != nil {
		t.Errorf("touching windows should be valid: %v", err)
	}
}

func TestWindowString(t *testing.T) {
	if got := DefaultTiming().Zero.String(); got != "1200-2400us" {
		t.Errorf("got %q, want 1200-2400us", got)
	}
}
