package mqttbridge

import "fmt"

// Topic prefixes for the local republish hierarchy.
//
// Everything the bridge emits lives under hearth/:
//
//	hearth/device/{id}/state   retained, per-device state snapshots
//	hearth/alarm/{area}/mode   retained, current panel mode
//	hearth/timeline            event firehose, not retained
//	hearth/bridge/status       retained online/offline, also the LWT
//	hearth/bridge/stream       retained cloud-connection state
const (
	TopicPrefix = "hearth"

	topicBridgeStatus = TopicPrefix + "/bridge/status"
	topicStreamStatus = TopicPrefix + "/bridge/stream"
	topicTimeline     = TopicPrefix + "/timeline"
)

// Topics provides builders for the bridge's MQTT topics. Using these
// helpers keeps topic naming consistent between publisher and consumers.
type Topics struct{}

// DeviceState returns the retained state topic for one device.
//
// Example: hearth/device/ZB:001/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// AlarmMode returns the retained mode topic for one panel area.
//
// Example: hearth/alarm/1/mode
func (Topics) AlarmMode(area string) string {
	return fmt.Sprintf("%s/alarm/%s/mode", TopicPrefix, area)
}

// Timeline returns the timeline event topic.
func (Topics) Timeline() string {
	return topicTimeline
}

// BridgeStatus returns the bridge's own online/offline topic.
func (Topics) BridgeStatus() string {
	return topicBridgeStatus
}

// StreamStatus returns the cloud push-channel state topic.
func (Topics) StreamStatus() string {
	return topicStreamStatus
}
