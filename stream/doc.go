// Package stream maintains the push channel to the Hearth event gateway.
//
// The gateway speaks a two-layer text framing over a single websocket:
// an outer transport layer (open/close/ping/pong/message packets keyed by
// a leading digit) and an inner message layer carried inside message
// packets (connect/disconnect/event/error). Events arrive as JSON arrays
// whose first element names the event.
//
// The Client owns one background goroutine that dials, services the
// connection and redials on failure with jittered exponential backoff.
// Liveness is enforced actively: the client pings on the server's
// negotiated schedule and declares the connection dead when nothing at
// all has arrived within the ping timeout, which catches half-open
// sockets that a blocked read would never notice.
//
// Consumers register callbacks with On. Server events and the lifecycle
// pseudo-events (started, connected, disconnected) share the same
// registration path. Callbacks run sequentially on the stream goroutine
// and are panic-isolated from each other.
package stream
