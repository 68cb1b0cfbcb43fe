// Package influxdb sends provisioning metrics to InfluxDB v2.
//
// It wraps influxdb-client-go with a ping on connect and a non-blocking,
// batched write path. The client satisfies report.PointWriter, so a
// report.MetricsSink can forward every recorded outcome as a point.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("metrics write", "error", err) })
package influxdb
