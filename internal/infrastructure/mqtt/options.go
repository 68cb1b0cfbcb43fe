package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout is used when the config leaves operation_timeout unset.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// sessionOptions holds the per-session settings that differ between the
// shared provisioning session and the per-device activation sessions.
type sessionOptions struct {
	clientID      string
	username      string
	password      string
	autoReconnect bool
}

// Option customises a single session created by Connect.
type Option func(*sessionOptions)

// WithClientID overrides the configured client ID.
func WithClientID(id string) Option {
	return func(o *sessionOptions) {
		o.clientID = id
	}
}

// WithCredentials overrides the configured username and password.
//
// Device sessions authenticate with the access token as the username
// and an empty password.
func WithCredentials(username, password string) Option {
	return func(o *sessionOptions) {
		o.username = username
		o.password = password
	}
}

// WithoutReconnect disables automatic reconnection. A session created
// this way reports a lost connection and stays down.
func WithoutReconnect() Option {
	return func(o *sessionOptions) {
		o.autoReconnect = false
	}
}

// resolveSessionOptions applies opts over the values taken from cfg.
func resolveSessionOptions(cfg config.MQTTConfig, opts []Option) sessionOptions {
	so := sessionOptions{
		clientID:      cfg.Broker.ClientID,
		username:      cfg.Auth.Username,
		password:      cfg.Auth.Password,
		autoReconnect: true,
	}
	for _, opt := range opts {
		opt(&so)
	}
	return so
}

// connectTimeout returns the configured CONNACK wait, or the default.
func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}

// operationTimeout returns the configured publish/subscribe wait, or the default.
func operationTimeout(cfg config.MQTTConfig) time.Duration {
	if cfg.OperationTimeout > 0 {
		return cfg.OperationTimeout
	}
	return defaultOperationTimeout
}

// brokerURL builds the paho broker URL (tcp:// or ssl:// based on TLS setting).
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions creates paho MQTT options from config and session options.
//
// This configures:
//   - Broker URL
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff (shared session only)
//   - TLS configuration (if enabled)
//   - Clean session mode
//
// Connect retry is always off: a refused or unreachable first connection
// must surface as an error within the connect timeout instead of retrying
// in the background.
func buildClientOptions(cfg config.MQTTConfig, so sessionOptions) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(so.clientID)

	if so.username != "" {
		opts.SetUsername(so.username)
		opts.SetPassword(so.password)
	}

	opts.SetCleanSession(true)

	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(so.autoReconnect)
	if so.autoReconnect && cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(connectTimeout(cfg))
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetOrderMatters(false)

	if cfg.Broker.TLS {
		tlsConfig := &tls.Config{
			MinVersion: tlsMinVersion,
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}
