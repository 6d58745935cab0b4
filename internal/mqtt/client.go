package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/observability/metrics"
)

// client implements the Client interface on top of paho. Reconnects are
// left to paho's auto reconnect.
type client struct {
	config  Config
	log     logger.Logger
	metrics *metrics.MQTTMetrics // optional

	mu       sync.Mutex
	internal paho.Client
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(cfg Config, log logger.Logger, m *metrics.MQTTMetrics) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	return &client{config: cfg, log: log, metrics: m}, nil
}

// Connect resolves the broker host and connects. It returns an error when
// no connection is made before ctx or the connect timeout expires; paho
// keeps retrying in the background after that.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connError(err, c.config.Broker, "parse_url")
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connError(err, c.config.Broker, "resolve_host")
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectDelay)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	if c.internal != nil {
		c.internal.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
	c.internal = paho.NewClient(opts)

	token := c.internal.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return connError(ctx.Err(), c.config.Broker, "connect")
	case <-time.After(c.config.ConnectTimeout):
		return connError(errors.NewStd("connection timeout"), c.config.Broker, "connect")
	}
	if err := token.Error(); err != nil {
		c.incErrors()
		return connError(err, c.config.Broker, "connect")
	}
	return nil
}

// Publish sends payload with QoS 0.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	internal := c.internal
	c.mu.Unlock()

	if internal == nil || !internal.IsConnected() {
		return publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	var timer *metrics.PublishTimer
	if c.metrics != nil {
		timer = c.metrics.StartPublishTimer()
	}
	token := internal.Publish(topic, 0, c.config.Retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.incErrors()
		return publishError(ctx.Err(), topic)
	case <-time.After(c.config.PublishTimeout):
		c.incErrors()
		return publishError(errors.NewStd("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		c.incErrors()
		return publishError(err, topic)
	}
	if c.metrics != nil {
		timer.ObserveDuration()
		c.metrics.IncrementMessagesDelivered(len(payload))
	}
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal != nil && c.internal.IsConnected()
}

func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internal == nil {
		return
	}
	c.internal.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.internal = nil
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
	c.log.Info("disconnected from MQTT broker", logger.String("broker", c.config.Broker))
}

func (c *client) onConnect(paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("MQTT connection lost", logger.String("broker", c.config.Broker), logger.Error(err))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
	c.incErrors()
}

func (c *client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.log.Debug("reconnecting to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.IncrementReconnectAttempts()
	}
}

func (c *client) incErrors() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}

func connError(err error, broker, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryMQTTConnection).
		Context("broker", broker).
		Context("operation", op).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}
