package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gatewayctl/internal/infrastructure/config"
)

// Logger receives handler failures and reconnect notices.
// *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is gatewayctl's broker connection. It publishes scene events,
// receives scene triggers and keeps a retained online/offline marker on
// Topics().SystemStatus().
//
// All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	cfg      config.MQTTConfig
	topics   Topics
	clientID string

	connected atomic.Bool

	mu           sync.RWMutex // Protects fields below
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
	subs         []subscription
}

// Connect dials the broker described by cfg and waits for the first
// connection. The client reconnects on its own afterwards; every
// (re)connect restores subscriptions and announces the process online.
//
// Returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		cfg:      cfg,
		topics:   NewTopics(cfg.TopicPrefix),
		clientID: clientIDFor(cfg),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, c.clientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.log(); log != nil {
			log.Warn("MQTT reconnecting", "broker", brokerURL(cfg))
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := wait(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs asynchronously; mark the client usable now
	// so callers can subscribe straight away.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) connectionUp() {
	c.connected.Store(true)

	c.mu.RLock()
	subs := append([]subscription(nil), c.subs...)
	hook := c.onConnect
	c.mu.RUnlock()

	for _, s := range subs {
		c.paho.Subscribe(s.topic, s.qos, c.deliver(s.handler))
	}
	c.announce(statusOnline, "")

	if hook != nil {
		hook()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// announce publishes the retained process status without waiting for the broker.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	return c.paho.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, statusPayload(c.clientID, status, reason))
}

// Close announces a graceful shutdown and disconnects. It is a no-op on a
// nil or never-connected client.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		c.announce(statusOffline, reasonShutdown).WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports the last known connection state. Safe on a nil client.
func (c *Client) IsConnected() bool {
	if c == nil || c.paho == nil {
		return false
	}
	return c.connected.Load() && c.paho.IsConnected()
}

// SetOnConnect sets a hook run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect sets a hook run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures. Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
