package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/logging"
)

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	EnvVars: []string{"GLPROVISION_CONFIG"},
	Usage:   "path to the YAML configuration file (defaults and environment only when empty)",
}

var flagLogLevel = &cli.StringFlag{
	Name:  "log-level",
	Usage: "debug, info, warn or error",
}

var flagLogFormat = &cli.StringFlag{
	Name:  "log-format",
	Usage: "text or json",
}

var flagBrokerHost = &cli.StringFlag{
	Name:  "broker-host",
	Usage: "MQTT broker host",
}

var flagBrokerPort = &cli.IntFlag{
	Name:  "broker-port",
	Usage: "MQTT broker port",
}

var flagOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "CSV report path",
}

var flagCount = &cli.IntFlag{
	Name:    "count",
	Aliases: []string{"n"},
	Usage:   "number of devices to provision with generated names",
}

var flagPrefix = &cli.StringFlag{
	Name:  "prefix",
	Usage: "device name prefix for generated names",
}

var flagDevice = &cli.StringSliceFlag{
	Name:  "device",
	Usage: "provision this device name (repeatable); overrides --count and --prefix",
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Usage: "how long to wait for each device's provisioning response",
}

var flagWorkers = &cli.IntFlag{
	Name:  "workers",
	Usage: "device sessions activated in parallel",
}

var flagFirmware = &cli.StringFlag{
	Name:  "firmware",
	Usage: "firmware version reported in the activation telemetry",
}

var flagLimit = &cli.IntFlag{
	Name:  "limit",
	Value: 20,
	Usage: "number of runs to list",
}

// loadConfig reads the configuration and applies the flags the operator
// set explicitly. Flags are looked up through the lineage so global flags
// work before or after the command name.
func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String(flagConfig.Name))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cCtx.IsSet(flagLogLevel.Name) {
		cfg.Logging.Level = cCtx.String(flagLogLevel.Name)
	}
	if cCtx.IsSet(flagLogFormat.Name) {
		cfg.Logging.Format = cCtx.String(flagLogFormat.Name)
	}
	if cCtx.IsSet(flagBrokerHost.Name) {
		cfg.MQTT.Broker.Host = cCtx.String(flagBrokerHost.Name)
	}
	if cCtx.IsSet(flagBrokerPort.Name) {
		cfg.MQTT.Broker.Port = cCtx.Int(flagBrokerPort.Name)
	}
	if cCtx.IsSet(flagOutput.Name) {
		cfg.Report.Path = cCtx.String(flagOutput.Name)
	}
	if cCtx.IsSet(flagCount.Name) {
		cfg.Provisioning.Count = cCtx.Int(flagCount.Name)
	}
	if cCtx.IsSet(flagPrefix.Name) {
		cfg.Provisioning.DevicePrefix = cCtx.String(flagPrefix.Name)
	}
	if cCtx.IsSet(flagDevice.Name) {
		cfg.Provisioning.DeviceNames = cCtx.StringSlice(flagDevice.Name)
	}
	if cCtx.IsSet(flagTimeout.Name) {
		cfg.Provisioning.DeviceTimeout = cCtx.Duration(flagTimeout.Name)
	}
	if cCtx.IsSet(flagWorkers.Name) {
		cfg.Activation.Workers = cCtx.Int(flagWorkers.Name)
	}
	if cCtx.IsSet(flagFirmware.Name) {
		cfg.Activation.FirmwareVersion = cCtx.String(flagFirmware.Name)
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(cfg.Logging, version)
}
