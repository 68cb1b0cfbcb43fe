// Package activation brings provisioned devices online.
//
// For every SUCCESS row of a provisioning report an Activator opens a
// dedicated broker session authenticated with the device's token and
// publishes one telemetry message. Rows without a token are skipped
// without contacting the broker. Only the activated column of a row is
// ever changed.
//
// Devices are activated one at a time by default. Config.Workers allows a
// bounded number of sessions in flight; results are reported against the
// row index so the report order never changes.
package activation
