package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrNoDeviceID is returned when a server record carries no device identifier.
	ErrNoDeviceID = errors.New("device: record has no id")

	// ErrRefreshEmpty is returned when a targeted fetch returns no data.
	ErrRefreshEmpty = errors.New("device: refresh returned no data")

	// ErrConfirmDeviceID is returned when a control response echoes the wrong device.
	ErrConfirmDeviceID = errors.New("device: confirmation device id mismatch")

	// ErrConfirmValue is returned when a control response echoes the wrong value.
	ErrConfirmValue = errors.New("device: confirmation value mismatch")

	// ErrInvalidMode is returned when an alarm mode is not standby, home or away.
	ErrInvalidMode = errors.New("device: invalid alarm mode")

	// ErrAreaMismatch is returned when a mode-set response names the wrong area.
	ErrAreaMismatch = errors.New("device: mode confirmation area mismatch")

	// ErrModeMismatch is returned when a mode-set response echoes the wrong mode.
	ErrModeMismatch = errors.New("device: mode confirmation mode mismatch")

	// ErrInvalidDefaultMode is returned when the arming default is not home or away.
	ErrInvalidDefaultMode = errors.New("device: default mode must be home or away")
)
