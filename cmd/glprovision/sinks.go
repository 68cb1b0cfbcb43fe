package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-provisioner/internal/ledger"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

// batchSinks holds the optional destinations a run feeds besides the CSV.
type batchSinks struct {
	log    *logging.Logger
	store  *ledger.Store
	run    *ledger.Run
	influx *influxdb.Client
	sinks  []report.Sink
}

// openSinks opens the ledger and metrics backends enabled in cfg.
//
// A ledger that cannot be opened fails the command: it is a local file
// and a failure means misconfiguration. An unreachable InfluxDB only
// disables metrics for this run.
func openSinks(ctx context.Context, cfg *config.Config, phase report.Phase, log *logging.Logger) (*batchSinks, error) {
	b := &batchSinks{log: log}

	if cfg.Ledger.Enabled {
		store, err := ledger.Open(ctx, database.FromLedger(cfg.Ledger.Path, cfg.Ledger.WALMode, cfg.Ledger.BusyTimeout))
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		run, err := store.StartRun(ctx, phase, cfg.Report.Path)
		if err != nil {
			store.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, err
		}
		b.store, b.run = store, run
		b.sinks = append(b.sinks, run)
		log.Info("ledger run started", "run_id", run.ID(), "path", cfg.Ledger.Path)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		switch {
		case err != nil:
			log.Warn("metrics disabled for this run", "error", err)
		default:
			client.SetOnError(func(err error) {
				log.Warn("metrics write failed", "error", err)
			})
			b.influx = client
			b.sinks = append(b.sinks, report.NewMetricsSink(client, phase))
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	}

	return b, nil
}

// markInterrupted closes the ledger run as interrupted. The later Flush
// from the Recorder leaves that mark in place.
func (b *batchSinks) markInterrupted(ctx context.Context) {
	if b.run == nil {
		return
	}
	if err := b.run.Finish(ctx, true); err != nil {
		b.log.Warn("marking ledger run interrupted", "error", err)
	}
}

// Close releases the backends. An InfluxDB server that stopped answering
// during the run is reported, since its buffered points are lost.
func (b *batchSinks) Close(ctx context.Context) error {
	var errs []error
	if b.influx != nil {
		if err := b.influx.HealthCheck(ctx); err != nil {
			b.log.Warn("metrics backend unreachable at batch end", "error", err)
		}
		errs = append(errs, b.influx.Close())
	}
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	return errors.Join(errs...)
}
