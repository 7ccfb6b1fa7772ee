package scene

import "errors"

// Domain errors for the scene package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, scene.ErrNoDevices) {
//	    // directory was empty or unavailable
//	}
var (
	// ErrNoDevices is returned when the run has no devices to act on.
	ErrNoDevices = errors.New("scene: no devices")

	// ErrInvalidLimit is returned when a first-N run asks for fewer than one device.
	ErrInvalidLimit = errors.New("scene: invalid limit")

	// ErrInvalidTrigger is returned when a trigger payload cannot be decoded
	// or names an unknown scope.
	ErrInvalidTrigger = errors.New("scene: invalid trigger")
)
