// Package status provides a thread-safe status tracker for the weather433 daemon.
// It is written by the decode pipeline and read by HTTP handlers and
// lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/weather433/internal/logic"
)

// Outcome is what happened to a decoded reading.
type Outcome string

const (
	OutcomePublished Outcome = "PUBLISHED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeOffline   Outcome = "OFFLINE"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker        string
	Topic         string
	Source        string // e.g. "gpio gpiochip0/17" or "serial /dev/ttyACM0"
	ZeroWindow    string // active zero-bit calibration, e.g. "1200-2400us"
	DedupWindowMs int64
	HeartbeatMs   int64
	HTTPAddr      string
}

// Counts aggregates decoder and publish counters since startup.
type Counts struct {
	Preambles       int
	Resyncs         int
	Aborts          int
	Frames          int
	Published       int
	Duplicates      int
	PublishRetries  int
	PublishFailures int
	Offline         int
	SuppressedEdges uint64
	DroppedEdges    uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
	Counts        Counts

	// LastReading is nil until the first frame is decoded.
	LastReading   *logic.Reading
	LastReadingAt time.Time
	LastOutcome   Outcome
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given boot ID, start time and config.
func NewTracker(bootID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetAssemblerStats copies the frame assembler counters.
func (t *Tracker) SetAssemblerStats(s logic.AssemblerStats) {
	t.mu.Lock()
	t.snap.Counts.Preambles = s.Preambles
	t.snap.Counts.Resyncs = s.Resyncs
	t.snap.Counts.Aborts = s.Aborts
	t.snap.Counts.Frames = s.Frames
	t.mu.Unlock()
}

// RecordReading stores the latest decoded reading and counts its outcome.
func (t *Tracker) RecordReading(r logic.Reading, at time.Time, outcome Outcome) {
	t.mu.Lock()
	t.snap.LastReading = &r
	t.snap.LastReadingAt = at
	t.snap.LastOutcome = outcome
	switch outcome {
	case OutcomePublished:
		t.snap.Counts.Published++
	case OutcomeDuplicate:
		t.snap.Counts.Duplicates++
	case OutcomeFailed:
		t.snap.Counts.PublishFailures++
	case OutcomeOffline:
		t.snap.Counts.Offline++
	}
	t.mu.Unlock()
}

// RecordRetry counts a publish retry.
func (t *Tracker) RecordRetry() {
	t.mu.Lock()
	t.snap.Counts.PublishRetries++
	t.mu.Unlock()
}

// AddSuppressedEdges counts edges discarded while a frame was in flight.
func (t *Tracker) AddSuppressedEdges(n uint64) {
	t.mu.Lock()
	t.snap.Counts.SuppressedEdges += n
	t.mu.Unlock()
}

// SetDroppedEdges sets the edge source overflow count.
func (t *Tracker) SetDroppedEdges(n uint64) {
	t.mu.Lock()
	t.snap.Counts.DroppedEdges = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	s.Now = time.Now()
	return s
}
