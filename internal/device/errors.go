package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDirectoryUnavailable) {
//	    // abort the current operation
//	}
var (
	// ErrDirectoryUnavailable is returned when the device list could not be
	// fetched or held no usable devices.
	ErrDirectoryUnavailable = errors.New("device: directory unavailable")

	// ErrDeviceNotFound is returned when a device ID is not in the directory.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a device object cannot be decoded.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidLimit is returned when a first-N request asks for fewer than one device.
	ErrInvalidLimit = errors.New("device: invalid limit")
)
