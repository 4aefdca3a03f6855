// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/weather433/internal/logic"
)

// Default topics. Both can be overridden in the config file.
const (
	DefaultTopic       = "sensors/weather433/readings"
	DefaultSystemTopic = "sensors/weather433/system"
)

// ErrNotConnected is returned when publishing while the broker connection
// is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends a decoded reading to the readings topic.
	// Returns error if publishing fails (should not crash the process).
	Publish(reading logic.Reading) error

	// PublishSystem sends a system lifecycle event to the system topic.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the reading message. Field order is part of the wire format
// and the payload bytes are what the dedup gate compares.
type Payload struct {
	SensorAddress string  `json:"SensorAddress"`
	Channel       uint8   `json:"Channel"`
	TemperatureF  float64 `json:"TemperatureF"`
	TemperatureC  float64 `json:"TemperatureC"`
	Humidity      int     `json:"Humidity"`
	BatteryLow    bool    `json:"BatteryLow"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r logic.Reading) ([]byte, error) {
	return json.Marshal(Payload{
		SensorAddress: r.SensorAddress(),
		Channel:       r.Channel,
		TemperatureF:  r.TemperatureF,
		TemperatureC:  r.TemperatureC,
		Humidity:      r.Humidity,
		BatteryLow:    r.BatteryLow,
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
