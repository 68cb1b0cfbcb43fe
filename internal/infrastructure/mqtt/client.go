package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
)

// Client is one broker session on top of paho.
//
// The long-lived provisioning session and the short per-device activation
// sessions share this type; the Option values passed to Connect decide the
// client ID, credentials and whether paho reconnects on its own.
//
// All methods are safe for concurrent use. Subscriptions made through
// Subscribe are replayed after an automatic reconnect.
type Client struct {
	paho    pahomqtt.Client
	cfg     config.MQTTConfig
	session sessionOptions

	connected atomic.Bool

	// mu guards subs and the hooks below.
	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. logging.Logger and slog.Logger fit.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler processes one inbound message. It runs on paho's delivery
// goroutine and must not block. A returned error is logged and otherwise
// ignored; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Connect opens a session and waits for CONNACK, at most
// cfg.ConnectTimeout. A refused CONNACK (an unknown device token, for
// instance) and a timeout both return ErrConnectionFailed.
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		session: resolveSessionOptions(cfg, opts),
		subs:    make(map[string]subscription),
	}

	pahoOpts := buildClientOptions(cfg, c.session)
	pahoOpts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	c.paho = pahomqtt.NewClient(pahoOpts)

	timeout := connectTimeout(cfg)
	token := c.paho.Connect()
	if !token.WaitTimeout(timeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: no CONNACK within %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// paho runs the connect handler asynchronously.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) connectionUp() {
	c.connected.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subs {
		// Best effort; a failed replay shows up as missing responses.
		c.paho.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	hook := c.onConnect
	c.mu.RUnlock()

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

// Close disconnects after a short quiesce. Closing a client that never
// connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the session is down, or the
// context error if ctx is already done.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// ClientID returns the client ID this session connected with.
func (c *Client) ClientID() string {
	return c.session.clientID
}

// SetOnConnect registers a hook run after every successful (re)connect.
func (c *Client) SetOnConnect(hook func()) {
	c.mu.Lock()
	c.onConnect = hook
	c.mu.Unlock()
}

// SetOnDisconnect registers a hook run when the connection drops.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.mu.Lock()
	c.onDisconnect = hook
	c.mu.Unlock()
}

// SetLogger sets where handler errors and panics are reported. Without a
// logger they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) opTimeout() time.Duration {
	return operationTimeout(c.cfg)
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.deliver(handler, msg.Topic(), msg.Payload())
	}
}

// deliver runs handler, turning a panic or an error into a log line.
func (c *Client) deliver(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.currentLogger(); logger != nil {
				logger.Error("mqtt handler panicked", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.currentLogger(); logger != nil {
			logger.Warn("mqtt handler rejected message", "topic", topic, "error", err)
		}
	}
}
