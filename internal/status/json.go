package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	LastReading   *ReadingJSON `json:"last_reading,omitempty"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
}

// ReadingJSON is the JSON representation of the last decoded reading.
type ReadingJSON struct {
	SensorAddress string  `json:"sensor_address"`
	Channel       uint8   `json:"channel"`
	TemperatureF  float64 `json:"temperature_f"`
	TemperatureC  float64 `json:"temperature_c"`
	Humidity      int     `json:"humidity"`
	BatteryLow    bool    `json:"battery_low"`
	ReceivedAt    string  `json:"received_at"`
	Outcome       string  `json:"outcome"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Preambles       int    `json:"preambles"`
	Resyncs         int    `json:"resyncs"`
	Aborts          int    `json:"aborts"`
	Frames          int    `json:"frames"`
	Published       int    `json:"published"`
	Duplicates      int    `json:"duplicates"`
	PublishRetries  int    `json:"publish_retries"`
	PublishFailures int    `json:"publish_failures"`
	Offline         int    `json:"offline"`
	SuppressedEdges uint64 `json:"suppressed_edges"`
	DroppedEdges    uint64 `json:"dropped_edges"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Source        string `json:"source"`
	ZeroWindow    string `json:"zero_window"`
	DedupWindowMs int64  `json:"dedup_window_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Counts
	inner := StatusInner{
		BootID:        snap.BootID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Topic:     snap.Config.Topic,
		},
		Counts: CountsJSON{
			Preambles:       c.Preambles,
			Resyncs:         c.Resyncs,
			Aborts:          c.Aborts,
			Frames:          c.Frames,
			Published:       c.Published,
			Duplicates:      c.Duplicates,
			PublishRetries:  c.PublishRetries,
			PublishFailures: c.PublishFailures,
			Offline:         c.Offline,
			SuppressedEdges: c.SuppressedEdges,
			DroppedEdges:    c.DroppedEdges,
		},
		Config: ConfigJSON{
			Source:        snap.Config.Source,
			ZeroWindow:    snap.Config.ZeroWindow,
			DedupWindowMs: snap.Config.DedupWindowMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}

	if r := snap.LastReading; r != nil {
		inner.LastReading = &ReadingJSON{
			SensorAddress: r.SensorAddress(),
			Channel:       r.Channel,
			TemperatureF:  r.TemperatureF,
			TemperatureC:  r.TemperatureC,
			Humidity:      r.Humidity,
			BatteryLow:    r.BatteryLow,
			ReceivedAt:    snap.LastReadingAt.UTC().Format(time.RFC3339),
			Outcome:       string(snap.LastOutcome),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
