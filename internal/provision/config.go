package provision

import (
	"time"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/mqtt"
)

// Default values applied by ConfigFrom when the source leaves them empty.
const (
	DefaultSuccessStatus = "SUCCESS"
	DefaultDeviceTimeout = 5 * time.Second
)

// Config holds the settings a Provisioner needs for one batch.
type Config struct {
	Key           string
	Secret        string
	RequestTopic  string
	ResponseTopic string
	QoS           byte
	DeviceTimeout time.Duration
	SuccessStatus string
}

// ConfigFrom extracts the provisioning settings from the loaded config.
func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		Key:           cfg.Provisioning.Key,
		Secret:        cfg.Provisioning.Secret,
		RequestTopic:  cfg.Provisioning.RequestTopic,
		ResponseTopic: cfg.Provisioning.ResponseTopic,
		QoS:           byte(cfg.MQTT.QoS),
		DeviceTimeout: cfg.Provisioning.DeviceTimeout,
		SuccessStatus: cfg.Provisioning.SuccessStatus,
	}
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.RequestTopic == "" {
		c.RequestTopic = mqtt.TopicProvisionRequest
	}
	if c.ResponseTopic == "" {
		c.ResponseTopic = mqtt.TopicProvisionResponse
	}
	if c.SuccessStatus == "" {
		c.SuccessStatus = DefaultSuccessStatus
	}
	if c.DeviceTimeout <= 0 {
		c.DeviceTimeout = DefaultDeviceTimeout
	}
	return c
}

func (c Config) request(name string) DeviceRequest {
	return DeviceRequest{Name: name, Key: c.Key, Secret: c.Secret}
}
