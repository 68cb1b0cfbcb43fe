package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/provision"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

func provisionCommand() *cli.Command {
	return &cli.Command{
		Name:  "provision",
		Usage: "request credentials for a batch of devices",
		Description: "Publishes one provisioning request at a time on the shared session and\n" +
			"waits for its response or the per-device timeout before the next one.\n" +
			"Every attempted device gets one row in the CSV report.",
		Flags: []cli.Flag{
			flagCount,
			flagPrefix,
			flagDevice,
			flagTimeout,
		},
		Action: runProvision,
	}
}

func runProvision(cCtx *cli.Context) error {
	ctx := cCtx.Context

	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if err := cfg.ValidateProvisioning(); err != nil {
		return err
	}

	log := newLogger(cfg)
	log.Info("starting provisioning",
		"version", version,
		"broker", cfg.MQTT.BrokerAddress(),
		"report", cfg.Report.Path,
	)

	pcfg := provision.ConfigFrom(cfg)
	requests, err := buildRequests(cfg, pcfg)
	if err != nil {
		return err
	}

	sinks, err := openSinks(ctx, cfg, report.PhaseProvision, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sinks.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Error("closing sinks", "error", closeErr)
		}
	}()

	recorder := report.NewRecorder(cfg.Report.Path, nil,
		report.WithSinks(sinks.sinks...),
		report.WithFlushEachRow(cfg.Report.FlushEachRow),
		report.WithLogger(log),
	)

	p := provision.New(pcfg, provision.MQTTDialer(cfg.MQTT, log.With("component", "mqtt")), recorder, provision.WithLogger(log.With("component", "provisioner")))
	summary, runErr := p.Run(ctx, requests)

	// Shutdown work must not inherit the interrupt.
	finishCtx := context.WithoutCancel(ctx)

	if errors.Is(runErr, provision.ErrTransportFatal) {
		// No device was attempted; leave any previous report untouched.
		sinks.markInterrupted(finishCtx)
		return runErr
	}
	if errors.Is(runErr, provision.ErrInterrupted) {
		sinks.markInterrupted(finishCtx)
	}

	closeErr := recorder.Close(finishCtx)
	if closeErr != nil {
		log.Error("writing report", "path", cfg.Report.Path, "error", closeErr)
	}

	log.Info("provisioning summary",
		"total", summary.Total,
		"success", summary.Success,
		"error", summary.Error,
		"timeout", summary.Timeout,
		"report", cfg.Report.Path,
	)
	fmt.Fprintf(cCtx.App.Writer, "provisioned %d/%d devices (error %d, timeout %d), report: %s\n",
		summary.Success, summary.Total, summary.Error, summary.Timeout, cfg.Report.Path)

	return errors.Join(runErr, closeErr)
}

func buildRequests(cfg *config.Config, pcfg provision.Config) ([]provision.DeviceRequest, error) {
	if len(cfg.Provisioning.DeviceNames) > 0 {
		return provision.SuppliedRequests(pcfg, cfg.Provisioning.DeviceNames)
	}
	gen := provision.NewNameGenerator(cfg.Provisioning.DevicePrefix, cfg.Provisioning.SuffixBytes)
	return provision.GenerateRequests(pcfg, gen, cfg.Provisioning.Count)
}
