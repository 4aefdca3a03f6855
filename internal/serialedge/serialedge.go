// Package serialedge reads edge events from a microcontroller that
// timestamps the receiver's data pin and prints one line per edge over a
// serial port:
//
//	<micros> <level>
//
// where micros is the controller's free-running 32-bit microsecond counter
// and level is 1 for a rising edge and 0 for a falling edge.
package serialedge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"

	"github.com/sweeney/weather433/internal/logic"
)

// ErrBadLine is returned by ParseLine for malformed input.
var ErrBadLine = errors.New("serialedge: malformed edge line")

// Opener opens a serial port. It is replaced in tests.
type Opener func(path string, mode *serial.Mode) (serial.Port, error)

// Source delivers edges decoded from a serial line stream.
type Source struct {
	r       io.ReadCloser
	edges   chan logic.Edge
	dropped atomic.Uint64
	bad     atomic.Uint64
	logger  *log.Logger
	done    chan struct{}
}

// Open opens the serial port at path and starts reading edges from it.
func Open(path string, baud, bufferSize int, logger *log.Logger) (*Source, error) {
	return OpenWith(serial.Open, path, baud, bufferSize, logger)
}

// OpenWith is Open with an injectable opener.
func OpenWith(open Opener, path string, baud, bufferSize int, logger *log.Logger) (*Source, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	logger.Info("serial edge source ready", "port", path, "baud", baud)
	return NewSource(port, bufferSize, logger), nil
}

// NewSource starts reading edge lines from r.
func NewSource(r io.ReadCloser, bufferSize int, logger *log.Logger) *Source {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	s := &Source{
		r:      r,
		edges:  make(chan logic.Edge, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Source) readLoop() {
	defer close(s.done)
	defer close(s.edges)

	var clock unwrapper
	sc := bufio.NewScanner(s.r)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		micros, level, err := ParseLine(line)
		if err != nil {
			// Partial lines are expected right after the port opens.
			s.bad.Add(1)
			s.logger.Debug("skipping serial line", "line", line, "err", err)
			continue
		}
		e := logic.Edge{Timestamp: clock.extend(micros), Level: level}
		select {
		case s.edges <- e:
		default:
			s.dropped.Add(1)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Warn("serial read stopped", "err", err)
	}
}

// Edges returns the edge channel. It is closed when the stream ends.
func (s *Source) Edges() <-chan logic.Edge {
	return s.edges
}

// Dropped returns the number of edges discarded on overflow.
func (s *Source) Dropped() uint64 {
	return s.dropped.Load()
}

// BadLines returns the number of lines that failed to parse.
func (s *Source) BadLines() uint64 {
	return s.bad.Load()
}

// Close closes the port and waits for the reader to stop.
func (s *Source) Close() error {
	err := s.r.Close()
	<-s.done
	if err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	return nil
}

// ParseLine parses one "<micros> <level>" line.
func ParseLine(line string) (uint32, logic.Level, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadLine, line)
	}
	micros, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: timestamp %q", ErrBadLine, fields[0])
	}
	switch fields[1] {
	case "1":
		return uint32(micros), logic.Rising, nil
	case "0":
		return uint32(micros), logic.Falling, nil
	default:
		return 0, 0, fmt.Errorf("%w: level %q", ErrBadLine, fields[1])
	}
}

// unwrapper extends the controller's 32-bit microsecond counter, which
// wraps about every 71 minutes, into a monotonic duration.
type unwrapper struct {
	last  uint32
	epoch uint64
	init  bool
}

func (u *unwrapper) extend(micros uint32) time.Duration {
	if u.init && micros < u.last {
		u.epoch += 1 << 32
	}
	u.last = micros
	u.init = true
	return time.Duration(u.epoch+uint64(micros)) * time.Microsecond
}
