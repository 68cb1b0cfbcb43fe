// glprovision provisions batches of devices against an IoT platform over
// MQTT and then brings them online.
//
// A run has two phases:
//   - provision: request credentials for each device, strictly one
//     request in flight, and write a CSV report
//   - activate: connect as each provisioned device and publish one
//     telemetry message, updating only the report's activated column
//
// Configuration comes from an optional YAML file, GLPROVISION_* environment
// variables and command-line flags, in increasing order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/gray-logic-provisioner/internal/activation"
	"github.com/nerrad567/gray-logic-provisioner/internal/provision"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	// Ctrl+C stops the batch between devices; the report keeps every
	// outcome recorded so far.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "glprovision",
		Usage:   "bulk MQTT device provisioning and activation",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			flagConfig,
			flagLogLevel,
			flagLogFormat,
			flagBrokerHost,
			flagBrokerPort,
			flagOutput,
		},
		Commands: []*cli.Command{
			provisionCommand(),
			activateCommand(),
			runsCommand(),
		},
	}
}

func exitCode(err error) int {
	if errors.Is(err, provision.ErrInterrupted) || errors.Is(err, activation.ErrInterrupted) {
		return exitInterrupted
	}
	return 1
}
