// Package telemetry records client health metrics to InfluxDB 2.x.
//
// The sink is optional and is fed by the client's event forwarders: the
// cloud push-channel state becomes a connectivity gauge plus a reconnect
// counter, and device updates become per-device status points (status
// string, battery and supervision fault flags).
//
// All writes are batched and asynchronous; telemetry can never block or
// slow the event path.
package telemetry
