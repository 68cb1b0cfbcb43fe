package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/gray-logic-provisioner/internal/activation"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

func activateCommand() *cli.Command {
	return &cli.Command{
		Name:  "activate",
		Usage: "bring provisioned devices online",
		Description: "Reads the provisioning report, connects as each SUCCESS device using its\n" +
			"token and publishes one telemetry message. Only the activated column of\n" +
			"the report is rewritten.",
		Flags: []cli.Flag{
			flagWorkers,
			flagFirmware,
		},
		Action: runActivate,
	}
}

func runActivate(cCtx *cli.Context) error {
	ctx := cCtx.Context

	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if err := cfg.ValidateActivation(); err != nil {
		return err
	}

	log := newLogger(cfg)

	base, err := report.Load(cfg.Report.Path)
	if err != nil {
		return fmt.Errorf("reading provisioning report: %w", err)
	}
	rows := base.Rows()
	log.Info("starting activation",
		"version", version,
		"broker", cfg.MQTT.BrokerAddress(),
		"report", cfg.Report.Path,
		"rows", len(rows),
	)

	sinks, err := openSinks(ctx, cfg, report.PhaseActivation, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sinks.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Error("closing sinks", "error", closeErr)
		}
	}()

	recorder := report.NewRecorder(cfg.Report.Path, base,
		report.WithSinks(sinks.sinks...),
		report.WithFlushEachRow(cfg.Report.FlushEachRow),
		report.WithLogger(log),
	)

	a := activation.New(activation.ConfigFrom(cfg), activation.MQTTDialer(cfg.MQTT, log.With("component", "mqtt")), recorder, activation.WithLogger(log.With("component", "activator")))
	summary, runErr := a.Run(ctx, rows)

	finishCtx := context.WithoutCancel(ctx)
	if errors.Is(runErr, activation.ErrInterrupted) {
		sinks.markInterrupted(finishCtx)
	}

	closeErr := recorder.Close(finishCtx)
	if closeErr != nil {
		log.Error("writing report", "path", cfg.Report.Path, "error", closeErr)
	}

	log.Info("activation summary",
		"total", summary.Total,
		"activated", summary.Activated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"report", cfg.Report.Path,
	)
	fmt.Fprintf(cCtx.App.Writer, "activated %d/%d devices (skipped %d, failed %d), report: %s\n",
		summary.Activated, summary.Total, summary.Skipped, summary.Failed, cfg.Report.Path)

	return errors.Join(runErr, closeErr)
}
