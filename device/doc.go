// Package device provides the Device Registry and the command/confirmation
// protocol for the Hearth client.
//
// The registry is the canonical in-memory catalogue of every entity on the
// account: sensors, locks, switches, cameras, and the alarm panel itself
// (synthesized as a device with the reserved "area_1" identifier).
//
// # Identity-preserving merges
//
// Listings and refreshes never replace a Device; they merge new server
// data into the existing state blob in place. A *Device obtained before a
// refresh is the same object after it; only the field values change. The
// event dispatcher and host callbacks depend on this: they hold device
// references across updates.
//
// The merge rule only overwrites keys already present in the blob; fields
// absent from the original snapshot are never introduced later. This
// matches the deployed server's partial-response shapes.
//
// # Command confirmation
//
// Control requests (SetField, Alarm.SetMode) validate the server's echoed
// id/value (or area/mode) against the request before the local blob is
// touched. A failed check leaves local state exactly as it was, so the
// cache never diverges from confirmed server state. Devices with no
// control endpoint are read-only; SetField reports (false, nil) for them
// rather than an error.
//
// # Thread Safety
//
// The registry map and every Device blob are mutex-guarded: the caller's
// synchronous refreshes and the event-stream goroutine both mutate them.
package device
