// Package mqttbridge republishes Hearth push events to a local MQTT
// broker.
//
// The bridge is a pure publisher fed by the client's event forwarders:
// device updates become retained per-device state topics, alarm mode
// changes get their
// own retained mode topic, timeline events flow through a non-retained
// firehose topic, and the cloud connection state is mirrored so LAN
// consumers can tell stale-retained data from live data.
//
// The bridge's own liveness is covered by a Last Will and Testament on
// hearth/bridge/status.
package mqttbridge
