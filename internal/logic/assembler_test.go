package logic

import (
	"math/rand"
	"testing"
	"time"
)

// pushFrame feeds a preamble followed by the given bits, with a separator
// after every bit. It returns the result of the last push.
func pushFrame(a *Assembler, bits []bool) (Frame, bool) {
	a.Push(SymbolPreamble, Rising)
	a.Push(SymbolSeparator, Falling)
	var (
		f  Frame
		ok bool
	)
	for _, b := range bits {
		sym := SymbolZero
		if b {
			sym = SymbolOne
		}
		f, ok = a.Push(sym, Rising)
		if ok {
			return f, ok
		}
		a.Push(SymbolSeparator, Falling)
	}
	return f, ok
}

func randomBits(r *rand.Rand) []bool {
	bits := make([]bool, FrameBits)
	for i := range bits {
		bits[i] = r.Intn(2) == 1
	}
	return bits
}

func TestNewAssemblerIdle(t *testing.T) {
	a := NewAssembler()
	if a.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", a.State())
	}
	if a.Len() != 0 {
		t.Errorf("expected 0 bits, got %d", a.Len())
	}
}

func TestAssemblerFrameMatchesArrivalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		a := NewAssembler()
		bits := randomBits(r)

		f, ok := pushFrame(a, bits)
		if !ok {
			t.Fatalf("iteration %d: frame not completed", i)
		}
		for j, b := range bits {
			if f[j] != b {
				t.Fatalf("iteration %d: bit %d: got %v, want %v", i, j, f[j], b)
			}
		}
		if a.State() != StateIdle || a.Len() != 0 {
			t.Errorf("iteration %d: expected IDLE/0 after completion, got %s/%d", i, a.State(), a.Len())
		}
	}
}

func TestAssemblerIdleIgnoresNonPreamble(t *testing.T) {
	a := NewAssembler()
	for _, sym := range []Symbol{SymbolOne, SymbolZero, SymbolError, SymbolSeparator} {
		if _, ok := a.Push(sym, Rising); ok {
			t.Fatalf("%s: unexpected frame", sym)
		}
		if a.State() != StateIdle {
			t.Fatalf("%s: expected IDLE, got %s", sym, a.State())
		}
	}
	// A preamble-length pulse on a falling edge does not start a frame.
	a.Push(SymbolPreamble, Falling)
	if a.State() != StateIdle {
		t.Errorf("falling preamble: expected IDLE, got %s", a.State())
	}
}

func TestAssemblerPreambleStartsReceiving(t *testing.T) {
	a := NewAssembler()
	a.Push(SymbolPreamble, Rising)
	if a.State() != StateReceiving {
		t.Fatalf("expected RECEIVING, got %s", a.State())
	}
	if a.Len() != 0 {
		t.Errorf("expected 0 bits, got %d", a.Len())
	}
	a.Push(SymbolSeparator, Falling)
	a.Push(SymbolOne, Rising)
	if a.Len() != 1 {
		t.Errorf("expected 1 bit, got %d", a.Len())
	}
}

func TestAssemblerMidFramePreambleResyncs(t *testing.T) {
	a := NewAssembler()
	a.Push(SymbolPreamble, Rising)
	for i := 0; i < 17; i++ {
		a.Push(SymbolOne, Rising)
	}
	a.Push(SymbolPreamble, Rising)
	if a.State() != StateReceiving {
		t.Fatalf("expected RECEIVING after resync, got %s", a.State())
	}
	if a.Len() != 0 {
		t.Fatalf("expected partial bits discarded, got %d", a.Len())
	}

	// The resynced frame contains only bits after the second preamble.
	var last Frame
	var ok bool
	for i := 0; i < FrameBits; i++ {
		last, ok = a.Push(SymbolZero, Rising)
	}
	if !ok {
		t.Fatal("expected frame after 40 bits")
	}
	if last != (Frame{}) {
		t.Errorf("expected all-zero frame, got %s", last)
	}
	if s := a.Stats(); s.Resyncs != 1 || s.Preambles != 1 || s.Frames != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestAssemblerErrorAborts(t *testing.T) {
	tests := []struct {
		name  string
		level Level
	}{
		{"rising error", Rising},
		{"falling error", Falling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			a.Push(SymbolPreamble, Rising)
			for i := 0; i < 39; i++ {
				a.Push(SymbolOne, Rising)
			}
			if _, ok := a.Push(SymbolError, tt.level); ok {
				t.Fatal("unexpected frame")
			}
			if a.State() != StateIdle || a.Len() != 0 {
				t.Fatalf("expected IDLE/0, got %s/%d", a.State(), a.Len())
			}
			// Bits after the abort are ignored until the next preamble.
			if _, ok := a.Push(SymbolOne, Rising); ok {
				t.Fatal("unexpected frame after abort")
			}
			if a.Len() != 0 {
				t.Errorf("expected 0 bits, got %d", a.Len())
			}
			if a.Stats().Aborts != 1 {
				t.Errorf("expected 1 abort, got %d", a.Stats().Aborts)
			}
		})
	}
}

func TestAssemblerSeparatorNoChange(t *testing.T) {
	a := NewAssembler()
	a.Push(SymbolPreamble, Rising)
	a.Push(SymbolZero, Rising)
	for i := 0; i < 5; i++ {
		a.Push(SymbolSeparator, Falling)
	}
	if a.State() != StateReceiving || a.Len() != 1 {
		t.Errorf("expected RECEIVING/1, got %s/%d", a.State(), a.Len())
	}
}

func TestAssemblerLenBounded(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	symbols := []Symbol{SymbolPreamble, SymbolOne, SymbolZero, SymbolSeparator, SymbolError}
	a := NewAssembler()
	for i := 0; i < 20000; i++ {
		// Bias towards bits so frames actually complete.
		sym := symbols[r.Intn(len(symbols))]
		if r.Intn(10) > 0 {
			sym = symbols[1+r.Intn(2)]
		}
		level := Rising
		if sym == SymbolSeparator || r.Intn(10) == 0 {
			level = Falling
		}
		a.Push(sym, level)
		if a.Len() < 0 || a.Len() > FrameBits {
			t.Fatalf("step %d: length %d out of range", i, a.Len())
		}
		if a.State() == StateIdle && a.Len() != 0 {
			t.Fatalf("step %d: idle with %d bits", i, a.Len())
		}
	}
	if a.Stats().Frames == 0 {
		t.Error("expected at least one completed frame")
	}
}

// edgesForFrame encodes a preamble and the frame bits as alternating edges:
// low gap then a 500us pulse for each symbol.
func edgesForFrame(start time.Duration, f Frame) []Edge {
	t := start
	edges := []Edge{{Timestamp: t, Level: Falling}}
	emit := func(gap time.Duration) {
		t += gap
		edges = append(edges, Edge{Timestamp: t, Level: Rising})
		t += us(500)
		edges = append(edges, Edge{Timestamp: t, Level: Falling})
	}
	emit(us(8000))
	for _, b := range f {
		if b {
			emit(us(4000))
		} else {
			emit(us(1800))
		}
	}
	return edges
}

func TestDemodulatorDecodesEdgeStream(t *testing.T) {
	var want Frame
	want.SetField(0, 8, 0xa7)
	want.SetField(16, 28, 1187)
	want[39] = true

	d := NewDemodulator(DefaultTiming())
	var (
		got   Frame
		count int
	)
	for _, e := range edgesForFrame(us(123456), want) {
		if f, ok, _ := d.Feed(e); ok {
			got = f
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected 1 frame, got %d", count)
	}
	if got != want {
		t.Errorf("frame mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestDemodulatorFirstEdgeOnlySyncs(t *testing.T) {
	d := NewDemodulator(DefaultTiming())
	_, _, step := d.Feed(Edge{Timestamp: us(8000), Level: Rising})
	if step.Symbol != "" {
		t.Errorf("first edge should not be classified, got %s", step.Symbol)
	}
	if d.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", d.State())
	}
	_, _, step = d.Feed(Edge{Timestamp: us(8500), Level: Falling})
	if step.Duration != us(500) || step.Symbol != SymbolSeparator {
		t.Errorf("unexpected step: %+v", step)
	}
}

func TestDemodulatorBadPulseAborts(t *testing.T) {
	d := NewDemodulator(DefaultTiming())
	d.Feed(Edge{Timestamp: 0, Level: Falling})
	d.Feed(Edge{Timestamp: us(8000), Level: Rising})
	if d.State() != StateReceiving {
		t.Fatalf("expected RECEIVING, got %s", d.State())
	}
	// 1500us pulse width is outside the separator window.
	_, _, step := d.Feed(Edge{Timestamp: us(9500), Level: Falling})
	if step.Symbol != SymbolError {
		t.Errorf("expected ERROR, got %s", step.Symbol)
	}
	if d.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", d.State())
	}
}

func TestDemodulatorReset(t *testing.T) {
	d := NewDemodulator(DefaultTiming())
	d.Feed(Edge{Timestamp: 0, Level: Falling})
	d.Feed(Edge{Timestamp: us(8000), Level: Rising})
	d.Reset()
	if d.State() != StateIdle {
		t.Fatalf("expected IDLE after reset, got %s", d.State())
	}
	// After reset a preamble-length gap measured from a stale reference must
	// not start a frame; the edge only re-syncs.
	_, _, step := d.Feed(Edge{Timestamp: us(16000), Level: Rising})
	if step.Symbol != "" || d.State() != StateIdle {
		t.Errorf("expected resync only, got %+v", step)
	}
}
