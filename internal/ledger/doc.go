// Package ledger keeps a SQLite history of batch runs.
//
// Every provision or activation run gets a row in batch_runs and each
// recorded outcome is appended to run_outcomes in order. A *Run satisfies
// report.Sink, so the Recorder feeds it alongside the CSV file.
//
// The CSV report stays the source of truth for activation input; the
// ledger answers "what happened in earlier runs" without keeping old
// report files around.
package ledger
