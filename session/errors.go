package session

import (
	"errors"
	"fmt"
)

// Domain errors for the session package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, session.ErrAuthentication) {
//	    // handle bad credentials
//	}
var (
	// ErrAuthentication is returned when login fails or credentials are missing.
	ErrAuthentication = errors.New("session: authentication failed")

	// ErrRequest is returned when a call fails after the single reauth retry.
	ErrRequest = errors.New("session: request failed")

	// ErrMFARequired is returned when the server demands a multi-factor code.
	ErrMFARequired = errors.New("session: multi-factor code required")
)

// AuthError carries the server's status code and message for a failed login.
type AuthError struct {
	// Status is the HTTP status code, or 0 for client-side failures
	// (missing credentials, unreadable response).
	Status int

	// Message is the server's error message, or a client-side description.
	Message string

	// MFA is set when the failure is a multi-factor challenge rather
	// than a credential rejection.
	MFA bool
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("session: authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("session: authentication failed (status %d): %s", e.Status, e.Message)
}

// Is reports whether this error matches ErrAuthentication, or
// ErrMFARequired for multi-factor challenges, so callers can use
// errors.Is without knowing the concrete type.
func (e *AuthError) Is(target error) bool {
	if target == ErrAuthentication {
		return true
	}
	return e.MFA && target == ErrMFARequired
}

// RequestError identifies the call that failed after its one reauth retry.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("session: request failed: %s %s", e.Method, e.URL)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches ErrRequest.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequest
}
