package mqtt

import (
	"errors"
	"sync"

	"github.com/sweeney/weather433/internal/logic"
)

// errFakeTransient is returned for calls consumed by FailNext.
var errFakeTransient = errors.New("fake: transient publish failure")

// FakePublisher records published readings for test assertions.
// It is safe for use from the pipeline goroutine while a test polls it.
type FakePublisher struct {
	mu sync.Mutex

	// Readings contains all readings that were published.
	Readings []logic.Reading

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Attempts counts Publish calls, including failed ones.
	Attempts int

	// FailNext makes the next N Publish calls fail.
	FailNext int

	// PublishError, if set, will be returned by every Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a connected FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// Publish records the reading.
func (f *FakePublisher) Publish(reading logic.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Attempts++
	if f.PublishError != nil {
		return f.PublishError
	}
	if f.FailNext > 0 {
		f.FailNext--
		return errFakeTransient
	}

	payload, err := FormatPayload(reading)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, reading)
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Published returns the number of successfully published readings.
func (f *FakePublisher) Published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Readings)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes the reported connection state.
func (f *FakePublisher) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected = connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Readings = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Attempts = 0
	f.FailNext = 0
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = true
}
