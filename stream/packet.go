package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outer transport packet types. Every frame on the wire starts with one of
// these single-digit discriminators.
const (
	packetOpen    = '0'
	packetClose   = '1'
	packetPing    = '2'
	packetPong    = '3'
	packetMessage = '4'
)

// Inner message types carried inside a message packet ("4...").
const (
	messageConnect    = '0'
	messageDisconnect = '1'
	messageEvent      = '2'
	messageError      = '4'
)

// handshake is the JSON payload of the open packet. Intervals arrive in
// milliseconds.
type handshake struct {
	SessionID    string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// parseHandshake decodes an open packet payload into durations, keeping
// the configured defaults for any field the server omits.
func parseHandshake(payload []byte, interval, timeout time.Duration) (time.Duration, time.Duration, error) {
	var hs handshake
	if err := json.Unmarshal(payload, &hs); err != nil {
		return interval, timeout, fmt.Errorf("%w: bad open handshake: %s", ErrProtocol, err)
	}
	if hs.PingInterval > 0 {
		interval = time.Duration(hs.PingInterval) * time.Millisecond
	}
	if hs.PingTimeout > 0 {
		timeout = time.Duration(hs.PingTimeout) * time.Millisecond
	}
	return interval, timeout, nil
}

// parseEvent splits an event message payload, the bit after "42", into its
// event name and raw argument list.
//
// The payload is a JSON array whose first element is the event name:
//
//	["device.update","ZB:001"]
//
// Arguments are returned undecoded; each event has its own shape and the
// dispatcher decodes them per handler.
func parseEvent(payload []byte) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: bad event payload: %s", ErrProtocol, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: empty event payload", ErrProtocol)
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name is not a string", ErrProtocol)
	}
	return name, parts[1:], nil
}
