// Command weather433 decodes 433MHz weather sensor transmissions from an OOK
// receiver and publishes readings to MQTT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sweeney/weather433/internal/config"
	"github.com/sweeney/weather433/internal/gpio"
	"github.com/sweeney/weather433/internal/mqtt"
	"github.com/sweeney/weather433/internal/receiver"
	"github.com/sweeney/weather433/internal/serialedge"
	"github.com/sweeney/weather433/internal/status"
	"github.com/sweeney/weather433/internal/web"
)

// errSourceClosed is returned when the edge stream ends without a signal,
// e.g. the serial receiver was unplugged.
var errSourceClosed = errors.New("edge source closed")

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to JSON config file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	topic := flag.String("topic", "", "MQTT readings topic (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	level := flag.String("level", "info", "Log level (debug, info, warn, error)")
	zeroWindow := flag.String("zero-window", "", `Zero-bit gap window in microseconds, e.g. "1300-2300" (overrides config)`)
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	lvl, err := log.ParseLevel(*level)
	if err != nil {
		logger.Fatal("failed to parse log level", "level", *level, "err", err)
	}
	logger.SetLevel(lvl)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "path", *configPath, "err", err)
	}
	err = applyFlags(&cfg, overrides{
		Broker:     *broker,
		Topic:      *topic,
		HTTPAddr:   *httpAddr,
		ZeroWindow: *zeroWindow,
	})
	if err != nil {
		logger.Fatal("invalid flags", "err", err)
	}

	if *printConfig {
		fmt.Println(string(formatConfig(cfg)))
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("fatal", "err", err)
	}
}

// overrides holds flag values; empty strings leave the config untouched.
type overrides struct {
	Broker     string
	Topic      string
	HTTPAddr   string
	ZeroWindow string
}

func applyFlags(cfg *config.Config, o overrides) error {
	if o.Broker != "" {
		cfg.MQTT.Broker = o.Broker
	}
	if o.Topic != "" {
		cfg.MQTT.Topic = o.Topic
	}
	switch o.HTTPAddr {
	case "":
	case "off":
		cfg.HTTPAddr = ""
	default:
		cfg.HTTPAddr = o.HTTPAddr
	}
	if o.ZeroWindow != "" {
		lo, hi, err := config.ParseWindow(o.ZeroWindow)
		if err != nil {
			return fmt.Errorf("-zero-window: %w", err)
		}
		cfg.Timing.ZeroMinUs, cfg.Timing.ZeroMaxUs = lo, hi
	}
	return cfg.Validate()
}

// formatConfig renders cfg as indented JSON with the broker password masked.
func formatConfig(cfg config.Config) []byte {
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "********"
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return data
}

func describeSource(s config.Source) string {
	if s.Kind == config.SourceSerial {
		return fmt.Sprintf("serial %s@%d", s.SerialPort, s.BaudRate)
	}
	return fmt.Sprintf("gpio %s/%d", s.Chip, s.Pin)
}

func openSource(s config.Source, logger *log.Logger) (gpio.Source, error) {
	if s.Kind == config.SourceSerial {
		src, err := serialedge.Open(s.SerialPort, s.BaudRate, s.BufferSize, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := gpio.NewRealSource(s.Chip, s.Pin, s.BufferSize, logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func run(cfg config.Config, logger *log.Logger) error {
	timing := cfg.Timing.Logic()

	// Initialize edge source
	src, err := openSource(cfg.Source, logger.WithPrefix("source"))
	if err != nil {
		return fmt.Errorf("init edge source: %w", err)
	}
	defer src.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		Topic:       cfg.MQTT.Topic,
		SystemTopic: cfg.MQTT.SystemTopic,
	}, logger.WithPrefix("mqtt"))
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(uuid.NewString(), time.Now(), status.Config{
		Broker:        cfg.MQTT.Broker,
		Topic:         cfg.MQTT.Topic,
		Source:        describeSource(cfg.Source),
		ZeroWindow:    timing.Zero.String(),
		DedupWindowMs: time.Duration(cfg.DedupWindow).Milliseconds(),
		HeartbeatMs:   time.Duration(cfg.Heartbeat).Milliseconds(),
		HTTPAddr:      cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	refresh := func() { refreshStatus(tracker, publisher, src) }

	pipe, err := receiver.New(receiver.Options{
		Timing:       timing,
		DedupWindow:  time.Duration(cfg.DedupWindow),
		Publisher:    publisher,
		Conn:         publisher,
		Tracker:      tracker,
		Logger:       logger.WithPrefix("receiver"),
		DroppedEdges: src.Dropped,
	})
	if err != nil {
		return fmt.Errorf("init receiver: %w", err)
	}

	// Publish startup event with full status snapshot
	refresh()
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", "err", err)
	} else {
		logger.Info("published startup event", "boot_id", snap.BootID)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, refresh)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	logger.Info("started",
		"source", describeSource(cfg.Source),
		"broker", cfg.MQTT.Broker,
		"topic", cfg.MQTT.Topic,
		"zero_window", timing.Zero,
		"dedup_window", time.Duration(cfg.DedupWindow),
		"heartbeat", time.Duration(cfg.Heartbeat))

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(time.Duration(cfg.Heartbeat))
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(pipe, src, publisher, publisher, tracker, time.Now, heartbeat, sigCh, logger)
}

// runLoop runs the receiver until a signal arrives or the edge source ends,
// publishing heartbeats in between. A SHUTDOWN event is published on the way
// out in both cases.
func runLoop(pipe *receiver.Pipeline, src gpio.Source, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- pipe.Run(ctx, src.Edges())
	}()

	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			cancel()
			<-done
			publishShutdown(publisher, mqttStatus, tracker, src, now, signalName, logger)
			return nil

		case err := <-done:
			publishShutdown(publisher, mqttStatus, tracker, src, now, "SOURCE_CLOSED", logger)
			if err != nil {
				return fmt.Errorf("receiver: %w", err)
			}
			return errSourceClosed

		case <-heartbeat:
			refreshStatus(tracker, mqttStatus, src)
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			logger.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"frames", snap.Counts.Frames,
				"published", snap.Counts.Published,
				"duplicates", snap.Counts.Duplicates,
				"failures", snap.Counts.PublishFailures,
				"aborts", snap.Counts.Aborts)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				logger.Warn("heartbeat publish error", "err", err)
			}
		}
	}
}

func publishShutdown(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, src gpio.Source, now func() time.Time, reason string, logger *log.Logger) {
	refreshStatus(tracker, mqttStatus, src)
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warn("failed to publish shutdown event", "err", err)
	} else {
		logger.Info("published shutdown event", "reason", reason)
	}
}

// refreshStatus copies state owned by other components into the tracker.
func refreshStatus(tracker *status.Tracker, mqttStatus mqtt.ConnectionStatus, src gpio.Source) {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	if src != nil {
		tracker.SetDroppedEdges(src.Dropped())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
