package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/privacy"
)

// client implements the Client interface on paho.
type client struct {
	config         Config
	internalClient paho.Client
	newClient      func(*paho.ClientOptions) paho.Client
	mu             sync.Mutex
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
}

// NewClient creates a paho backed client. m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics, log logger.Logger) Client {
	return &client{
		config:    cfg,
		newClient: paho.NewClient,
		metrics:   m,
		log:       logger.OrDiscard(log).Module(componentName),
	}
}

func mqttError(err error, broker string) *errors.ErrorBuilder {
	return errors.New(privacy.WrapError(err)).
		Component(componentName).
		Category(errors.CategoryMQTT).
		Context("broker", privacy.RedactURL(broker))
}

// Connect resolves the broker host and connects.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		return errors.NewConfigError(componentName, "invalid broker URL %q", privacy.RedactURL(c.config.Broker))
	}

	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return mqttError(err, c.config.Broker).Context("operation", "resolve").Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.Timeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = c.newClient(opts)

	token := c.internalClient.Connect()
	if err := c.wait(ctx, token); err != nil {
		return mqttError(err, c.config.Broker).Context("operation", "connect").Build()
	}

	c.setConnected(true)
	return nil
}

// wait blocks until token completes, ctx is done or the timeout expires.
func (c *client) wait(ctx context.Context, token paho.Token) error {
	timer := time.NewTimer(c.config.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Newf("timed out after %v", c.config.Timeout).
			Component(componentName).
			Category(errors.CategoryTimeout).
			Build()
	}
}

// Publish sends payload to topic with the configured QoS and retain flag.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient == nil || !c.internalClient.IsConnected() {
		return mqttError(errors.NewStd("not connected to MQTT broker"), c.config.Broker).
			Context("topic", topic).
			Build()
	}

	started := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	err := c.wait(ctx, token)
	if c.metrics != nil {
		c.metrics.RecordPublish(len(payload), started, err)
	}
	if err != nil {
		return mqttError(err, c.config.Broker).Context("topic", topic).Build()
	}
	c.log.Trace("published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(disconnectQuiesce)
		c.setConnected(false)
	}
}

func (c *client) setConnected(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

func (c *client) onConnect(_ paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", privacy.RedactURL(c.config.Broker)))
	c.setConnected(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", privacy.RedactURL(c.config.Broker)),
		logger.Error(err))
	c.setConnected(false)
}
