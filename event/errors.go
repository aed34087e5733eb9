package event

import "errors"

// Sentinel errors for callback registration.
var (
	// ErrUnknownDevice indicates a callback was registered against a
	// device id the registry has never seen.
	ErrUnknownDevice = errors.New("event: unknown device")

	// ErrUnknownGroup indicates a callback was registered against an
	// event group outside AllGroups.
	ErrUnknownGroup = errors.New("event: unknown event group")

	// ErrNoEventCode indicates a timeline callback registration without
	// an event code.
	ErrNoEventCode = errors.New("event: missing event code")

	// ErrNoCallback indicates a nil callback was supplied.
	ErrNoCallback = errors.New("event: nil callback")
)
