package stream

import "errors"

// Sentinel errors for event stream failures.
//
// These allow callers to use errors.Is() for error type checking while
// the wrapped messages carry session-specific detail.
var (
	// ErrProtocol indicates a frame that does not follow the expected
	// socket framing.
	ErrProtocol = errors.New("stream: protocol violation")

	// ErrPingTimeout indicates the server went silent past the negotiated
	// ping timeout and the connection was declared dead.
	ErrPingTimeout = errors.New("stream: ping timeout")

	// ErrServerClosed indicates the server sent an explicit close or
	// disconnect packet.
	ErrServerClosed = errors.New("stream: closed by server")

	// ErrCookieUnavailable indicates the session cookie needed to
	// authenticate the socket could not be obtained.
	ErrCookieUnavailable = errors.New("stream: session cookie unavailable")
)
