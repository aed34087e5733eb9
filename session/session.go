package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// REST endpoint paths owned by the session layer.
const (
	loginPath  = "/api/auth2/login"
	claimsPath = "/api/auth2/claims"
	logoutPath = "/api/v1/logout"
	panelPath  = "/api/v1/panel"
)

// APIKeyHeader is the header carrying the session token on every
// authenticated REST call.
const APIKeyHeader = "HEARTH-API-KEY"

const defaultRequestTimeout = 30 * time.Second

// Logger is the minimal logging interface used by the Session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Credentials holds the account login pair.
type Credentials struct {
	Username string
	Password string
}

// Config configures a Session.
type Config struct {
	// BaseURL is the REST API origin without a trailing slash,
	// e.g. "https://cloud.hearth.example".
	BaseURL string

	// Credentials are used for login and for re-authentication after a
	// rejected call.
	Credentials Credentials

	// CachePath is where the install UUID and session cookies are
	// persisted. Empty or DisableCache=true keeps everything in memory.
	CachePath    string
	DisableCache bool

	// HTTPClient is optional; when nil a client with a fresh cookie jar
	// and a 30s timeout is created.
	HTTPClient *http.Client
}

// Session holds the authentication token, user/panel summaries, and the
// HTTP transport for the Hearth cloud.
//
// No authenticated call proceeds without a valid token: Request performs a
// lazy login when needed, and exactly one re-authentication attempt is made
// per failed call before the error is surfaced. Concurrent callers that all
// hit an expired token share a single re-login via singleflight.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	jar     http.CookieJar
	cache   *cacheFile // nil when caching is disabled
	uuid    string

	mu         sync.RWMutex
	token      string
	oauthToken string
	user       map[string]any
	panel      map[string]any

	// reauth collapses concurrent re-login attempts into one.
	reauth singleflight.Group

	logger Logger
}

// New creates a Session. No network calls are made; login happens on the
// first Request or an explicit Login.
//
// Returns:
//   - *Session: Session ready for use
//   - error: If the base URL is invalid or the cache file is unreadable
func New(cfg Config) (*Session, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("session: invalid base URL %q", cfg.BaseURL)
	}

	s := &Session{
		baseURL: base,
		creds:   cfg.Credentials,
		logger:  noopLogger{},
	}

	if cfg.HTTPClient != nil {
		s.http = cfg.HTTPClient
		s.jar = cfg.HTTPClient.Jar
	}
	if s.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("session: creating cookie jar: %w", err)
		}
		s.jar = jar
		s.http = &http.Client{Jar: jar, Timeout: defaultRequestTimeout}
	}

	if !cfg.DisableCache && cfg.CachePath != "" {
		s.cache = &cacheFile{path: cfg.CachePath}
		if err := s.restoreCache(); err != nil {
			// A broken cache file is not fatal; start fresh.
			s.logger.Warn("discarding unreadable session cache", "path", cfg.CachePath, "error", err)
		}
	}

	if s.uuid == "" {
		s.uuid = uuid.NewString()
		s.persistCache()
	}

	return s, nil
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Login authenticates against the cloud and stores the session token,
// OAuth bearer token, and the user and panel summaries.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: *AuthError on rejected credentials or an MFA challenge
func (s *Session) Login(ctx context.Context) error {
	return s.login(ctx, "")
}

// LoginWithMFA authenticates with a one-time MFA code for accounts that
// have multi-factor enabled. Plain Login against such an account returns
// an *AuthError matching ErrMFARequired.
func (s *Session) LoginWithMFA(ctx context.Context, mfaCode string) error {
	return s.login(ctx, mfaCode)
}

func (s *Session) login(ctx context.Context, mfaCode string) error {
	if s.creds.Username == "" {
		return &AuthError{Message: "username is required"}
	}
	if s.creds.Password == "" {
		return &AuthError{Message: "password is required"}
	}

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	body := map[string]any{
		"id":       s.creds.Username,
		"password": s.creds.Password,
		"uuid":     s.uuid,
	}
	if mfaCode != "" {
		body["mfa_code"] = mfaCode
	}

	respBody, status, err := s.post(ctx, loginPath, body, nil)
	if err != nil {
		return &AuthError{Message: err.Error()}
	}
	if status != http.StatusOK {
		return &AuthError{Status: status, Message: serverMessage(respBody)}
	}

	var login struct {
		Token   string         `json:"token"`
		MFAType string         `json:"mfa_type"`
		User    map[string]any `json:"user"`
		Panel   map[string]any `json:"panel"`
	}
	if err := json.Unmarshal(respBody, &login); err != nil {
		return &AuthError{Message: fmt.Sprintf("decoding login response: %v", err)}
	}

	if login.MFAType != "" {
		return &AuthError{Status: status, Message: "multi-factor code required: " + login.MFAType, MFA: true}
	}

	// The login response sets the session cookies; persist them so a
	// later run can resume without a fresh challenge.
	s.persistCache()

	// Exchange the session for the OAuth bearer token.
	claimsBody, claimsStatus, err := s.get(ctx, claimsPath)
	if err != nil {
		return &AuthError{Message: err.Error()}
	}
	if claimsStatus != http.StatusOK {
		return &AuthError{Status: claimsStatus, Message: serverMessage(claimsBody)}
	}

	var claims struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(claimsBody, &claims); err != nil {
		return &AuthError{Message: fmt.Sprintf("decoding claims response: %v", err)}
	}

	s.mu.Lock()
	s.token = login.Token
	s.oauthToken = claims.AccessToken
	s.user = login.User
	s.panel = login.Panel
	s.mu.Unlock()

	s.logger.Info("login successful")
	return nil
}

// Request performs an authenticated call against the cloud.
//
// The current token is attached to the call. If the call fails for any
// reason (network error or status >= 400) on the first attempt, the token
// is cleared, a re-login is performed, and the call is retried exactly
// once. A second failure surfaces as *RequestError. This bounds retries
// against a permanently invalid credential.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - method: HTTP method ("get", "put", "post", ...)
//   - path: Path relative to the base URL, e.g. "/api/v1/devices"
//   - body: Optional request body, marshalled as JSON
//
// Returns:
//   - []byte: Raw response body
//   - error: *AuthError if re-login itself fails, *RequestError otherwise
func (s *Session) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	if s.currentToken() == "" {
		if err := s.reauthenticate(ctx); err != nil {
			return nil, err
		}
	}

	respBody, err := s.doAuthenticated(ctx, method, path, body)
	if err == nil {
		return respBody, nil
	}

	s.logger.Info("request rejected, re-authenticating once", "method", method, "path", path)

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if err := s.reauthenticate(ctx); err != nil {
		return nil, err
	}

	respBody, err = s.doAuthenticated(ctx, method, path, body)
	if err != nil {
		return nil, &RequestError{Method: method, URL: s.baseURL + path, Err: err}
	}
	return respBody, nil
}

// Logout invalidates the server-side token and resets local session state.
// Calling it when already logged out is a no-op returning success.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.oauthToken = ""
	s.user = nil
	s.panel = nil
	s.mu.Unlock()

	if token == "" {
		return nil
	}

	headers := map[string]string{APIKeyHeader: token}
	respBody, status, err := s.post(ctx, logoutPath, nil, headers)
	if err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	if status != http.StatusOK {
		return &AuthError{Status: status, Message: serverMessage(respBody)}
	}

	s.logger.Info("logout successful")
	return nil
}

// EventCookie verifies the session is live and returns the cookie header
// value for the push-channel handshake.
//
// A panel fetch is issued first so that an expired session is renewed
// through the normal retry-once path before the cookies are snapshotted.
func (s *Session) EventCookie(ctx context.Context) (string, error) {
	if _, err := s.Request(ctx, http.MethodGet, panelPath, nil); err != nil {
		return "", err
	}

	u, _ := url.Parse(s.baseURL)
	cookies := s.jar.Cookies(u)

	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; "), nil
}

// Token returns the current session token, or "" when logged out.
func (s *Session) Token() string {
	return s.currentToken()
}

// UUID returns the per-install identifier sent at login.
func (s *Session) UUID() string {
	return s.uuid
}

// Panel returns a copy of the panel summary captured at login.
func (s *Session) Panel() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.panel)
}

// User returns a copy of the user summary captured at login.
func (s *Session) User() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.user)
}

// reauthenticate performs a login, collapsing concurrent attempts into a
// single network call.
func (s *Session) reauthenticate(ctx context.Context) error {
	_, err, _ := s.reauth.Do("login", func() (any, error) {
		return nil, s.Login(ctx)
	})
	return err
}

// doAuthenticated performs a single attempt with the current credentials
// attached. Any status >= 400 is an error so the caller's retry-once
// policy sees it.
func (s *Session) doAuthenticated(ctx context.Context, method, path string, body any) ([]byte, error) {
	s.mu.RLock()
	token := s.token
	oauth := s.oauthToken
	s.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, token)
	if oauth != "" {
		req.Header.Set("Authorization", "Bearer "+oauth)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, serverMessage(respBody))
	}
	return respBody, nil
}

// post performs an unauthenticated POST used by the auth endpoints.
func (s *Session) post(ctx context.Context, path string, body any, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return s.do(req)
}

// get performs an unauthenticated GET used by the auth endpoints.
func (s *Session) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return s.do(req)
}

func (s *Session) do(req *http.Request) ([]byte, int, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (s *Session) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// serverMessage extracts the "message" field from an error response body,
// falling back to the raw body.
func serverMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = v
	}
	return cpy
}
