package influxdb

import "errors"

var (
	// ErrNotConnected is returned when the client was closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps asynchronous write errors passed to the
	// SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when metrics are disabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
