package mqtt

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/weather433/internal/logic"
)

// Options configures the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	Topic       string
	SystemTopic string
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client      paho.Client
	topic       string
	systemTopic string
	logger      *log.Logger
}

// NewRealPublisher creates a publisher for the given broker. Connection
// attempts continue in the background if the broker is unreachable at
// startup; readings decoded meanwhile are dropped.
func NewRealPublisher(opts Options, logger *log.Logger) (*RealPublisher, error) {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.SystemTopic == "" {
		opts.SystemTopic = DefaultSystemTopic
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	p := &RealPublisher{
		topic:       opts.Topic,
		systemTopic: opts.SystemTopic,
		logger:      logger,
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(opts.SystemTopic, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("mqtt connected", "broker", opts.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("mqtt connect still pending, retrying in background", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a reading to the MQTT broker.
func (p *RealPublisher) Publish(reading logic.Reading) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := FormatPayload(reading)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle events should survive a flaky link
	token := p.client.Publish(p.systemTopic, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
