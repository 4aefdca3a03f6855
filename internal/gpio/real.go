//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/sweeney/weather433/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealSource receives both-edge events from a GPIO line. Edge timestamps
// come from the kernel, so they are unaffected by scheduling latency.
type RealSource struct {
	chip    *gpiocdev.Chip
	line    *gpiocdev.Line
	edges   chan logic.Edge
	dropped atomic.Uint64
	logger  *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewRealSource requests pin on chip as an input with edge detection.
func NewRealSource(chip string, pin, bufferSize int, logger *log.Logger) (*RealSource, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	s := &RealSource{
		chip:   c,
		edges:  make(chan logic.Edge, bufferSize),
		logger: logger,
	}

	// The receiver module drives the line, so no bias is applied.
	line, err := c.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithMonotonicEventClock,
		gpiocdev.WithEventHandler(s.handleEvent),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request data pin %d: %w", pin, err)
	}
	s.line = line

	logger.Info("gpio edge source ready", "chip", chip, "pin", pin, "buffer", bufferSize)
	return s, nil
}

// handleEvent runs on the gpiocdev event goroutine. It never blocks: when
// the consumer is busy the edge is dropped and counted.
func (s *RealSource) handleEvent(evt gpiocdev.LineEvent) {
	e := logic.Edge{Timestamp: evt.Timestamp, Level: logic.Falling}
	if evt.Type == gpiocdev.LineEventRisingEdge {
		e.Level = logic.Rising
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.edges <- e:
	default:
		s.dropped.Add(1)
	}
}

// Edges returns the edge channel.
func (s *RealSource) Edges() <-chan logic.Edge {
	return s.edges
}

// Dropped returns the number of edges discarded on overflow.
func (s *RealSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Close releases the line and chip and closes the edge channel.
func (s *RealSource) Close() error {
	var errs []error

	if s.line != nil {
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data pin: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.edges)
	}
	s.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
