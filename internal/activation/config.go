package activation

import (
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/mqtt"
)

// DefaultFirmwareVersion is reported when no version is configured.
const DefaultFirmwareVersion = "1.0.0"

// Config holds the settings an Activator needs.
type Config struct {
	TelemetryTopic  string
	FirmwareVersion string
	QoS             byte
	Workers         int
}

// ConfigFrom extracts the activation settings from the loaded config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		TelemetryTopic:  cfg.Activation.TelemetryTopic,
		FirmwareVersion: cfg.Activation.FirmwareVersion,
		QoS:             byte(cfg.MQTT.QoS),
		Workers:         cfg.Activation.Workers,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.TelemetryTopic == "" {
		c.TelemetryTopic = mqtt.TopicDeviceTelemetry
	}
	if c.FirmwareVersion == "" {
		c.FirmwareVersion = DefaultFirmwareVersion
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}
