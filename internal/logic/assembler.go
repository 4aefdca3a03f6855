package logic

// State is the assembler's receive state.
type State string

const (
	StateIdle      State = "IDLE"
	StateReceiving State = "RECEIVING"
)

// Assembler turns a symbol stream into 40-bit frames.
type Assembler struct {
	state State
	bits  Frame
	n     int
	stats AssemblerStats
}

// NewAssembler returns an idle assembler.
func NewAssembler() *Assembler {
	return &Assembler{state: StateIdle}
}

// Push feeds one classified symbol measured on an edge of the given level.
// It returns the completed frame and true when the 40th bit arrives, after
// which the assembler is idle again.
func (a *Assembler) Push(sym Symbol, level Level) (Frame, bool) {
	if a.state == StateIdle {
		if level == Rising && sym == SymbolPreamble {
			a.stats.Preambles++
			a.start()
		}
		return Frame{}, false
	}

	switch sym {
	case SymbolPreamble:
		a.stats.Resyncs++
		a.start()
	case SymbolOne, SymbolZero:
		a.bits[a.n] = sym == SymbolOne
		a.n++
		if a.n == FrameBits {
			f := a.bits
			a.stats.Frames++
			a.Reset()
			return f, true
		}
	case SymbolSeparator:
	default:
		a.stats.Aborts++
		a.Reset()
	}
	return Frame{}, false
}

func (a *Assembler) start() {
	a.state = StateReceiving
	a.bits = Frame{}
	a.n = 0
}

// Reset discards any partial frame and returns to Idle.
func (a *Assembler) Reset() {
	a.state = StateIdle
	a.bits = Frame{}
	a.n = 0
}

// State returns the current receive state.
func (a *Assembler) State() State {
	return a.state
}

// Len returns the number of bits accumulated in the current frame.
func (a *Assembler) Len() int {
	return a.n
}

// Stats returns the outcome counters.
func (a *Assembler) Stats() AssemblerStats {
	return a.stats
}
