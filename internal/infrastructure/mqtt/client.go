package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/boxlink/internal/infrastructure/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	keepAlive        = 60 * time.Second
	quiesceMillis    = 1000

	maxQoS = 2
)

// Logger is the logging interface used by the client.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one inbound message. It runs on a paho goroutine
// and should return quickly; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is a broker connection for the boxlink mirror. It announces itself
// on the status topic, with a retained offline will for crashes, and replays
// its subscriptions after a reconnect. Safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	topics   Topics
	clientID string

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	online atomic.Bool
	logger atomic.Pointer[Logger]
}

// New builds a client without connecting it. The broker sees the
// configured client id plus a random suffix, so two boxlink processes on
// one broker do not steal each other's session.
func New(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		clientID:      cfg.Broker.ClientID + "-" + uuid.NewString()[:8],
		subscriptions: make(map[string]subscription),
	}
	c.client = pahomqtt.NewClient(c.options())
	return c
}

// Connect builds a client and waits up to ten seconds for the broker.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client; the retained status payload says "online"
//   - error: ErrConnectionFailed if the broker cannot be reached in time
//
// Example:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return fmt.Errorf("connecting to mqtt: %w", err)
//	}
//	defer client.Close()
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := New(cfg)
	if err := await(c.client.Connect(), ErrConnectionFailed); err != nil {
		return nil, err
	}
	// onConnect may not have run yet.
	c.online.Store(true)
	return c, nil
}

func (c *Client) options() *pahomqtt.ClientOptions {
	b := c.cfg.Broker
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port))
	opts.SetClientID(c.clientID)
	if c.cfg.Auth.Username != "" {
		opts.SetUsername(c.cfg.Auth.Username)
		opts.SetPassword(c.cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(c.topics.Status(), statusPayload("offline", c.clientID, "unexpected_disconnect"), 1, true)

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	return opts
}

// status is the retained payload of the status topic.
type status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(state, clientID, reason string) string {
	b, _ := json.Marshal(status{ //nolint:errcheck // plain strings always marshal
		Status:    state,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(b)
}

func (c *Client) onConnect() {
	c.online.Store(true)
	c.resubscribe()
	c.client.Publish(c.topics.Status(), c.qos(), true, statusPayload("online", c.clientID, ""))
}

func (c *Client) onConnectionLost(err error) {
	c.online.Store(false)
	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt connection lost", "error", err)
	}
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated to 0..2 by config
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// ClientID returns the id presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.client.IsConnected()
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close announces a graceful shutdown on the status topic and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(c.topics.Status(), c.qos(), true,
			statusPayload("offline", c.clientID, "graceful_shutdown")).WaitTimeout(operationTimeout)
	}
	c.client.Disconnect(quiesceMillis)
	c.online.Store(false)
	return nil
}

// SetLogger sets the logger for connection loss and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.logger.Store(&logger)
}

func (c *Client) getLogger() Logger {
	if l := c.logger.Load(); l != nil {
		return *l
	}
	return nil
}
