//go:build !linux

package gpio

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/sweeney/weather433/internal/logic"
)

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns an error on non-Linux platforms.
func NewRealSource(chip string, pin, bufferSize int, logger *log.Logger) (*RealSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Edges returns a nil channel on non-Linux platforms.
func (s *RealSource) Edges() <-chan logic.Edge {
	return nil
}

// Dropped is always zero on non-Linux platforms.
func (s *RealSource) Dropped() uint64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
