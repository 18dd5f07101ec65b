package board

import (
	"errors"
	"fmt"
)

// Shared error taxonomy. Callers match with errors.Is:
//
//	if errors.Is(err, board.ErrDeviceNotPresent) {
//	    // rescan and retry
//	}
var (
	// ErrMediumUnavailable is returned when a backend's transport cannot be
	// queried at all (driver absent, permission denied). It fails that
	// backend's discovery pass without aborting other backends.
	ErrMediumUnavailable = errors.New("board: medium unavailable")

	// ErrDeviceNotPresent is returned when a unit disappeared between
	// discovery and bind, or when a capability is called on a detached
	// device. Recoverable: rescan.
	ErrDeviceNotPresent = errors.New("board: device not present")

	// ErrFirmwareMismatch is returned when a backend declines to drive a
	// unit whose firmware is outside its supported range.
	ErrFirmwareMismatch = errors.New("board: firmware mismatch")

	// ErrCapabilityNotSupported is returned when a capability kind is
	// requested that the backend does not advertise for this device type.
	ErrCapabilityNotSupported = errors.New("board: capability not supported")

	// ErrUnknownDeviceType is returned for a device type with no registered
	// backend in the active medium.
	ErrUnknownDeviceType = errors.New("board: unknown device type")
)

// DeviceError wraps a failure with the identity of the offending unit so
// operators can correlate errors to physical hardware.
type DeviceError struct {
	Type   DeviceType
	Serial string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Serial == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Type, e.Serial, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// WrapDevice attaches unit identity to err. Returns nil if err is nil.
func WrapDevice(d Descriptor, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Type: d.Type, Serial: d.Serial, Err: err}
}
