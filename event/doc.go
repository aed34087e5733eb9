// Package event routes push notifications to caller callbacks.
//
// The Controller sits between the stream client and the device registry.
// Wire events carry minimal payloads (a device id, a mode string, a
// timeline entry); the controller turns each into its local effect and
// then fans it out:
//
//   - device updates: targeted REST refresh, then per-device callbacks
//   - mode broadcasts: cached alarm mode forced to the broadcast value
//   - timeline entries: dispatch by exact code, by the all-events
//     sentinel, and by mapped group
//   - connect/disconnect: full listing refresh plus connection-status
//     callbacks
//
// Callbacks run sequentially on the stream goroutine. A panic in one
// callback is logged and contained; it never reaches the stream loop or
// suppresses later callbacks.
package event
