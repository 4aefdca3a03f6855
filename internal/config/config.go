// Package config loads the daemon configuration from a JSON file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe; command-line flags are applied on top by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/weather433/internal/gpio"
	"github.com/sweeney/weather433/internal/logic"
	"github.com/sweeney/weather433/internal/mqtt"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/weather433/config.json"

const maxFileSize = 64 * 1024

// Source kinds.
const (
	SourceGPIO   = "gpio"
	SourceSerial = "serial"
)

// Duration is a time.Duration that reads and writes as a string like "6s".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the root configuration.
type Config struct {
	MQTT        MQTT     `json:"mqtt"`
	Source      Source   `json:"source"`
	Timing      Timing   `json:"timing"`
	DedupWindow Duration `json:"dedup_window"`
	Heartbeat   Duration `json:"heartbeat"`
	HTTPAddr    string   `json:"http_addr"`
}

// MQTT configures the publish sink.
type MQTT struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Topic       string `json:"topic"`
	SystemTopic string `json:"system_topic"`
}

// Source configures where edges come from.
type Source struct {
	Kind       string `json:"kind"`
	Chip       string `json:"chip"`
	Pin        int    `json:"pin"`
	SerialPort string `json:"serial_port,omitempty"`
	BaudRate   int    `json:"baud_rate,omitempty"`
	BufferSize int    `json:"buffer_size"`
}

// Timing holds the classification windows in microseconds. Bounds are
// exclusive.
type Timing struct {
	PreambleMinUs int `json:"preamble_min_us"`
	PreambleMaxUs int `json:"preamble_max_us"`
	OneMinUs      int `json:"one_min_us"`
	OneMaxUs      int `json:"one_max_us"`
	ZeroMinUs     int `json:"zero_min_us"`
	ZeroMaxUs     int `json:"zero_max_us"`
	PulseMinUs    int `json:"pulse_min_us"`
	PulseMaxUs    int `json:"pulse_max_us"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MQTT: MQTT{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "weather433",
			Topic:       mqtt.DefaultTopic,
			SystemTopic: mqtt.DefaultSystemTopic,
		},
		Source: Source{
			Kind:       SourceGPIO,
			Chip:       gpio.DefaultChip,
			Pin:        gpio.DefaultPin,
			BaudRate:   115200,
			BufferSize: gpio.DefaultBufferSize,
		},
		Timing:      TimingFrom(logic.DefaultTiming()),
		DedupWindow: Duration(logic.DefaultDedupWindow),
		Heartbeat:   Duration(15 * time.Minute),
		HTTPAddr:    ":80",
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", cleanPath, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required")
	}
	switch c.Source.Kind {
	case SourceGPIO:
		if c.Source.Pin < 0 {
			return fmt.Errorf("source.pin must be >= 0, got %d", c.Source.Pin)
		}
	case SourceSerial:
		if c.Source.SerialPort == "" {
			return errors.New("source.serial_port is required for serial source")
		}
	default:
		return fmt.Errorf("unsupported source.kind %q: expected %q or %q", c.Source.Kind, SourceGPIO, SourceSerial)
	}
	if c.DedupWindow < 0 {
		return fmt.Errorf("dedup_window must not be negative, got %s", time.Duration(c.DedupWindow))
	}
	if err := c.Timing.Logic().Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	return nil
}

// Logic converts the microsecond windows to classifier timing.
func (t Timing) Logic() logic.Timing {
	w := func(lo, hi int) logic.Window {
		return logic.Window{Min: time.Duration(lo) * time.Microsecond, Max: time.Duration(hi) * time.Microsecond}
	}
	return logic.Timing{
		Preamble: w(t.PreambleMinUs, t.PreambleMaxUs),
		One:      w(t.OneMinUs, t.OneMaxUs),
		Zero:     w(t.ZeroMinUs, t.ZeroMaxUs),
		Pulse:    w(t.PulseMinUs, t.PulseMaxUs),
	}
}

// TimingFrom converts classifier timing to its microsecond form.
func TimingFrom(t logic.Timing) Timing {
	return Timing{
		PreambleMinUs: int(t.Preamble.Min.Microseconds()),
		PreambleMaxUs: int(t.Preamble.Max.Microseconds()),
		OneMinUs:      int(t.One.Min.Microseconds()),
		OneMaxUs:      int(t.One.Max.Microseconds()),
		ZeroMinUs:     int(t.Zero.Min.Microseconds()),
		ZeroMaxUs:     int(t.Zero.Max.Microseconds()),
		PulseMinUs:    int(t.Pulse.Min.Microseconds()),
		PulseMaxUs:    int(t.Pulse.Max.Microseconds()),
	}
}

// ParseWindow parses "min-max" in microseconds, e.g. "1300-2300".
func ParseWindow(s string) (minUs, maxUs int, err error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("window %q: expected min-max in microseconds", s)
	}
	minUs, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("window %q: min: %w", s, err)
	}
	maxUs, err = strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("window %q: max: %w", s, err)
	}
	if minUs >= maxUs {
		return 0, 0, fmt.Errorf("window %q: min must be below max", s)
	}
	return minUs, maxUs, nil
}
