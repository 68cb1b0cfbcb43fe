// Package report holds the outcome of a provisioning batch: one row per
// device, in processing order, and the CSV file it is persisted to.
//
// The CSV layout is fixed:
//
//	deviceName,status,token,activated,errorMsg
//
// The provisioning columns (deviceName, status, token, errorMsg) are
// written once. The activation phase may only change the activated
// column of an existing row.
//
// A Recorder owns the in-memory report for the duration of a batch and
// forwards every recorded row to optional sinks (the SQLite run ledger,
// InfluxDB metrics). Sink failures are logged and never stop a batch.
package report
