package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the provisioner.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Activation   ActivationConfig   `yaml:"activation"`
	Report       ReportConfig       `yaml:"report"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// ConnectTimeout bounds the wait for CONNACK on every session.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// OperationTimeout bounds subscribe and publish acknowledgements.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// ThingsBoard accepts any username for the provisioning session.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// ProvisioningConfig contains the settings for one provisioning batch.
type ProvisioningConfig struct {
	// Key and Secret are the device profile's provisioning credentials.
	Key    string `yaml:"key"`
	Secret string `yaml:"secret"`

	// DevicePrefix is prepended to the random suffix of generated names.
	DevicePrefix string `yaml:"device_prefix"`

	// SuffixBytes is the number of random bytes rendered as upper-case hex.
	SuffixBytes int `yaml:"suffix_bytes"`

	// Count is the number of devices to generate. Ignored when DeviceNames is set.
	Count int `yaml:"count"`

	// DeviceNames supplies explicit names instead of generated ones.
	DeviceNames []string `yaml:"device_names,omitempty"`

	// DeviceTimeout bounds the wait for each correlated response.
	DeviceTimeout time.Duration `yaml:"device_timeout"`

	RequestTopic  string `yaml:"request_topic"`
	ResponseTopic string `yaml:"response_topic"`

	// SuccessStatus is the response status value that means the device was created.
	SuccessStatus string `yaml:"success_status"`
}

// ActivationConfig contains the settings for the activation phase.
type ActivationConfig struct {
	TelemetryTopic  string `yaml:"telemetry_topic"`
	FirmwareVersion string `yaml:"firmware_version"`

	// Workers is the number of devices activated concurrently. Default: 1
	Workers int `yaml:"workers"`
}

// ReportConfig contains settings for the CSV batch report.
type ReportConfig struct {
	Path string `yaml:"path"`

	// FlushEachRow rewrites the report after every recorded device
	// instead of only at the end of the batch.
	FlushEachRow bool `yaml:"flush_each_row"`
}

// LedgerConfig contains SQLite run ledger settings.
type LedgerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GLPROVISION_SECTION_KEY
// For example: GLPROVISION_MQTT_HOST, GLPROVISION_PROVISION_SECRET
//
// Load does not validate; callers apply command-line overrides first and
// then call Validate.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file
// or environment variable.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "glprovision",
			},
			Auth: MQTTAuthConfig{
				Username: "provision",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     10,
			},
			ConnectTimeout:   10 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Provisioning: ProvisioningConfig{
			DevicePrefix:  "ESP32",
			SuffixBytes:   6,
			Count:         10,
			DeviceTimeout: 5 * time.Second,
			RequestTopic:  "/provision/request",
			ResponseTopic: "/provision/response",
			SuccessStatus: "SUCCESS",
		},
		Activation: ActivationConfig{
			TelemetryTopic:  "v1/devices/me/telemetry",
			FirmwareVersion: "1.0.0",
			Workers:         1,
		},
		Report: ReportConfig{
			Path:         "provision_results.csv",
			FlushEachRow: true,
		},
		Ledger: LedgerConfig{
			Path:        "./data/provision.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLPROVISION_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("GLPROVISION_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GLPROVISION_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing GLPROVISION_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("GLPROVISION_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GLPROVISION_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Provisioning credentials (keep these out of the config file)
	if v := os.Getenv("GLPROVISION_PROVISION_KEY"); v != "" {
		cfg.Provisioning.Key = v
	}
	if v := os.Getenv("GLPROVISION_PROVISION_SECRET"); v != "" {
		cfg.Provisioning.Secret = v
	}

	// Report
	if v := os.Getenv("GLPROVISION_REPORT_PATH"); v != "" {
		cfg.Report.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GLPROVISION_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the settings shared by every command.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.OperationTimeout <= 0 {
		errs = append(errs, "mqtt.operation_timeout must be positive")
	}

	if c.Report.Path == "" {
		errs = append(errs, "report.path is required")
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		errs = append(errs, "ledger.path is required when the ledger is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateProvisioning checks the settings needed by the provision command.
func (c *Config) ValidateProvisioning() error {
	if err := c.Validate(); err != nil {
		return err
	}

	p := c.Provisioning
	var errs []string

	if p.Key == "" {
		errs = append(errs, "provisioning.key is required (set GLPROVISION_PROVISION_KEY)")
	}
	if p.Secret == "" {
		errs = append(errs, "provisioning.secret is required (set GLPROVISION_PROVISION_SECRET)")
	}
	if len(p.DeviceNames) == 0 {
		if p.Count < 1 {
			errs = append(errs, "provisioning.count must be at least 1")
		}
		if p.DevicePrefix == "" {
			errs = append(errs, "provisioning.device_prefix is required")
		}
		if p.SuffixBytes < 1 {
			errs = append(errs, "provisioning.suffix_bytes must be at least 1")
		}
	}
	if p.DeviceTimeout <= 0 {
		errs = append(errs, "provisioning.device_timeout must be positive")
	}
	if p.RequestTopic == "" || p.ResponseTopic == "" {
		errs = append(errs, "provisioning.request_topic and provisioning.response_topic are required")
	}
	if p.SuccessStatus == "" {
		errs = append(errs, "provisioning.success_status is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateActivation checks the settings needed by the activate command.
func (c *Config) ValidateActivation() error {
	if err := c.Validate(); err != nil {
		return err
	}

	var errs []string
	if c.Activation.TelemetryTopic == "" {
		errs = append(errs, "activation.telemetry_topic is required")
	}
	if c.Activation.Workers < 1 {
		errs = append(errs, "activation.workers must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BrokerAddress returns the host:port of the configured broker.
func (c MQTTConfig) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}
