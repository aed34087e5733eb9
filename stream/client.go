package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Lifecycle pseudo-events emitted alongside server events. Handlers
// registered for these fire on client state changes rather than on wire
// traffic.
const (
	// EventStarted fires once per Start call, before the first dial.
	EventStarted = "started"

	// EventConnected fires every time a websocket connection is
	// established, including reconnects.
	EventConnected = "connected"

	// EventDisconnected fires every time an established connection is
	// lost, before the backoff wait begins.
	EventDisconnected = "disconnected"
)

// Defaults used until the server's open handshake overrides them.
const (
	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 60 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultBackoffBase  = 5 * time.Second
	DefaultBackoffCap   = 30 * time.Second
)

// CookieFunc supplies the session cookie header for a dial attempt. It is
// called before every connection so a reconnect after re-authentication
// picks up fresh cookies.
type CookieFunc func(ctx context.Context) (string, error)

// Callback receives the raw argument list of one event. Callbacks run on
// the stream goroutine; slow work belongs in the caller's own goroutine.
type Callback func(args []json.RawMessage)

// Logger is the minimal logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the stream connection parameters.
type Config struct {
	// URL is the websocket endpoint, ws:// or wss://.
	URL string

	// Origin is sent as the Origin header; some gateways reject dials
	// without it.
	Origin string

	// Cookie supplies the session cookie per dial. Optional.
	Cookie CookieFunc

	// Timing; zero values take the package defaults.
	PingInterval time.Duration
	PingTimeout  time.Duration
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
}

// Client maintains a websocket to the event gateway and dispatches its
// events to registered callbacks.
//
// One background goroutine owns the connection lifecycle: dial, read until
// failure, back off, redial. The client keeps reconnecting until Stop is
// called; individual connection failures are reported through the
// EventDisconnected pseudo-event and the logger, never as errors to the
// caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks are invoked sequentially on the stream goroutine.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	backoff *backoff
	logger  Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	conn    *websocket.Conn
	wg      sync.WaitGroup

	cbMu      sync.RWMutex
	callbacks map[string][]Callback
}

// New creates a stream client. The client does nothing until Start.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff:   newBackoff(cfg.BackoffBase, cfg.BackoffCap),
		logger:    noopLogger{},
		callbacks: make(map[string][]Callback),
	}
}

// SetLogger sets the logger for the client. Call before Start.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// On registers a callback for a named event. Multiple callbacks per event
// are allowed and fire in registration order. Lifecycle pseudo-events
// (EventStarted, EventConnected, EventDisconnected) are registered the
// same way as server events.
func (c *Client) On(event string, cb Callback) {
	if cb == nil {
		return
	}
	c.cbMu.Lock()
	c.callbacks[event] = append(c.callbacks[event], cb)
	c.cbMu.Unlock()
}

// Start launches the connection goroutine. Calling Start on a running
// client is a no-op.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	c.emit(EventStarted, nil)

	c.wg.Add(1)
	go c.run()
}

// Stop tears down the connection and waits for the stream goroutine to
// exit. Safe to call on a stopped client.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stopCh)
	if c.conn != nil {
		// Unblocks the reader goroutine mid-ReadMessage.
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Running reports whether the stream goroutine is active.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// run is the connection lifecycle loop. It exits only when Stop closes
// stopCh.
func (c *Client) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		err := c.runSession()
		if c.stopped() {
			return
		}

		delay := c.backoff.Next()
		c.logger.Warn("stream disconnected, reconnecting",
			"error", err,
			"retry_in", delay,
		)
		c.emit(EventDisconnected, nil)

		select {
		case <-time.After(delay):
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// runSession dials once and services the connection until it fails or the
// client is stopped.
func (c *Client) runSession() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}
	if c.cfg.Cookie != nil {
		cookie, err := c.cfg.Cookie(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCookieUnavailable, err)
		}
		if cookie != "" {
			header.Set("Cookie", cookie)
		}
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.backoff.Reset()
	c.logger.Info("stream connected", "url", c.cfg.URL)
	c.emit(EventConnected, nil)

	return c.serve(conn)
}

// serve pumps frames off one connection, keeps the ping schedule and
// enforces the liveness timeout.
func (c *Client) serve(conn *websocket.Conn) error {
	frames := make(chan []byte)
	readErr := make(chan error, 1)

	// done releases a reader blocked on frames once this session ends;
	// without it a frame in hand would park the goroutine until Stop.
	done := make(chan struct{})
	defer close(done)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-done:
				return
			}
		}
	}()

	pingInterval := c.cfg.PingInterval
	pingTimeout := c.cfg.PingTimeout
	lastPacket := time.Now()
	lastPing := time.Now()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("stream: read: %w", err)
				default:
					return nil
				}
			}
			lastPacket = time.Now()

			closed, interval, timeout, err := c.handleFrame(conn, frame, pingInterval, pingTimeout)
			if err != nil {
				c.logger.Warn("dropping malformed frame", "error", err)
				continue
			}
			pingInterval, pingTimeout = interval, timeout
			if closed {
				return ErrServerClosed
			}

		case <-ticker.C:
			now := time.Now()
			if now.Sub(lastPing) >= pingInterval {
				if err := conn.WriteMessage(websocket.TextMessage, []byte{packetPing}); err != nil {
					return fmt.Errorf("stream: ping write: %w", err)
				}
				lastPing = now
			}
			if now.Sub(lastPacket) > pingTimeout {
				return fmt.Errorf("%w: silent for %v", ErrPingTimeout, now.Sub(lastPacket))
			}

		case <-c.stopCh:
			return nil
		}
	}
}

// handleFrame processes one wire frame. It returns whether the server
// requested a close, plus the (possibly renegotiated) ping timings.
func (c *Client) handleFrame(conn *websocket.Conn, frame []byte, interval, timeout time.Duration) (bool, time.Duration, time.Duration, error) {
	if len(frame) == 0 {
		return false, interval, timeout, fmt.Errorf("%w: empty frame", ErrProtocol)
	}

	switch frame[0] {
	case packetOpen:
		newInterval, newTimeout, err := parseHandshake(frame[1:], interval, timeout)
		if err != nil {
			return false, interval, timeout, err
		}
		c.logger.Debug("handshake received",
			"ping_interval", newInterval,
			"ping_timeout", newTimeout,
		)
		return false, newInterval, newTimeout, nil

	case packetClose:
		return true, interval, timeout, nil

	case packetPing:
		err := conn.WriteMessage(websocket.TextMessage, []byte{packetPong})
		return false, interval, timeout, err

	case packetPong:
		return false, interval, timeout, nil

	case packetMessage:
		closed, err := c.handleMessage(frame[1:])
		return closed, interval, timeout, err

	default:
		return false, interval, timeout, fmt.Errorf("%w: unknown packet type %q", ErrProtocol, frame[0])
	}
}

// handleMessage processes the inner payload of a message frame.
func (c *Client) handleMessage(payload []byte) (bool, error) {
	if len(payload) == 0 {
		return false, fmt.Errorf("%w: empty message", ErrProtocol)
	}

	switch payload[0] {
	case messageConnect:
		c.logger.Debug("channel established")
		return false, nil

	case messageDisconnect:
		return true, nil

	case messageEvent:
		name, args, err := parseEvent(payload[1:])
		if err != nil {
			return false, err
		}
		c.emit(name, args)
		return false, nil

	case messageError:
		c.logger.Error("server error message", "payload", string(payload[1:]))
		return false, nil

	default:
		return false, fmt.Errorf("%w: unknown message type %q", ErrProtocol, payload[0])
	}
}

// emit invokes every callback registered for event. A panicking callback
// is logged and isolated so it cannot kill the stream goroutine or starve
// later callbacks.
func (c *Client) emit(event string, args []json.RawMessage) {
	c.cbMu.RLock()
	cbs := make([]Callback, len(c.callbacks[event]))
	copy(cbs, c.callbacks[event])
	c.cbMu.RUnlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("event callback panic",
						"event", event,
						"panic", r,
					)
				}
			}()
			cb(args)
		}()
	}
}
