package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry returns the expiry time of the current OAuth bearer token.
//
// The token is a JWT issued by the claims endpoint. It is parsed without
// signature verification: the client holds no vendor public key, and the
// value is only used to schedule proactive re-authentication.
//
// Returns:
//   - time.Time: Expiry timestamp
//   - error: If no token is held or the token has no exp claim
func (s *Session) TokenExpiry() (time.Time, error) {
	s.mu.RLock()
	token := s.oauthToken
	s.mu.RUnlock()

	if token == "" {
		return time.Time{}, fmt.Errorf("session: no bearer token held")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("session: parsing bearer token: %w", err)
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("session: bearer token has no expiry claim")
	}

	return exp.Time, nil
}
