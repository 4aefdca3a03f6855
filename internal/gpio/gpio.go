// Package gpio provides edge-event input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/weather433/internal/logic"

// Source delivers timestamped edges from the 433MHz receiver's data pin.
type Source interface {
	// Edges returns the channel edges are delivered on. It is closed when
	// the source is closed.
	Edges() <-chan logic.Edge

	// Dropped returns the number of edges discarded because the consumer
	// fell behind.
	Dropped() uint64

	// Close releases the underlying resources.
	Close() error
}

// Defaults for the receiver wiring.
const (
	DefaultChip       = "gpiochip0"
	DefaultPin        = 17 // BCM numbering
	DefaultBufferSize = 1024
)
