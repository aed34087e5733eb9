// Package session provides the authenticated HTTP transport for the Hearth
// cloud.
//
// This package manages:
//   - Login (credentials + install UUID) and bearer-token exchange
//   - Attaching the API-key and Authorization headers to every call
//   - A retry-once-after-reauth policy bounding retries per call
//   - Cookie persistence across runs via a JSON cache file
//   - Idempotent logout
//
// # Retry policy
//
// Request makes at most two attempts. If the first attempt fails for any
// reason (network error or any status >= 400), the token is cleared and a
// re-login is performed before the single retry. Concurrent callers that
// fail at the same time share one re-login (singleflight). A second failure
// surfaces as *RequestError; callers never see an unbounded retry loop
// against a permanently invalid credential.
//
// # Usage
//
//	sess, err := session.New(session.Config{
//	    BaseURL:     "https://cloud.hearth.example",
//	    Credentials: session.Credentials{Username: user, Password: pass},
//	    CachePath:   "./hearth-session.json",
//	})
//	if err != nil {
//	    return err
//	}
//	body, err := sess.Request(ctx, "get", "/api/v1/devices", nil)
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package session
