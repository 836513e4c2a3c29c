// Package mqtt publishes detections to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/seisnet-go/internal/conf"
)

const (
	componentName = "mqtt"

	// DetectionsSubtopic is appended to the configured topic prefix.
	DetectionsSubtopic = "detections"

	defaultTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // topic prefix
	QoS      byte
	Retain   bool // true to retain messages at the broker
	Timeout  time.Duration
}

// NewConfig converts settings. An empty client id gets a random one.
func NewConfig(settings *conf.MQTTSettings) Config {
	cfg := Config{
		Broker:   settings.Broker,
		ClientID: settings.ClientID,
		Username: settings.Username,
		Password: settings.Password,
		Topic:    settings.Topic,
		QoS:      settings.QoS,
		Retain:   settings.Retain,
		Timeout:  settings.Timeout,
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "seisnet-" + uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg
}
