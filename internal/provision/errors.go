package provision

import "errors"

// Domain errors for the provision package.
var (
	// ErrTransportFatal is returned when the shared session cannot be
	// connected or subscribed. No device is attempted.
	ErrTransportFatal = errors.New("provision: transport unavailable")

	// ErrInterrupted is returned when the batch is cancelled between
	// devices. Outcomes recorded before the cancellation are kept.
	ErrInterrupted = errors.New("provision: batch interrupted")

	// ErrAlreadyArmed is returned by Arm while another request is pending.
	ErrAlreadyArmed = errors.New("provision: a request is already pending")

	// ErrMalformedResponse is returned by HandleMessage for a payload that
	// is not a JSON object. The pending request keeps waiting.
	ErrMalformedResponse = errors.New("provision: malformed response")

	// ErrInvalidDeviceName is returned for an empty supplied device name.
	ErrInvalidDeviceName = errors.New("provision: invalid device name")

	// ErrDuplicateDeviceName is returned when a batch names a device twice.
	ErrDuplicateDeviceName = errors.New("provision: duplicate device name")
)
