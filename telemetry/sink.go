package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/hearth-go/config"
	"github.com/nerrad567/hearth-go/device"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10_000 // milliseconds
)

// Sentinel errors for sink setup.
var (
	// ErrDisabled is returned when the telemetry section is not enabled.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed is returned when InfluxDB cannot be reached.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)

// Logger is the minimal logging interface used by the Sink.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink records client health and device activity to InfluxDB 2.x.
//
// Writes go through the non-blocking batched write API; a slow or down
// InfluxDB never stalls the stream goroutine. Async write failures are
// drained to the logger.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	logger    Logger
	connected bool
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with token authentication
//  2. Verifies connectivity with a ping
//  3. Configures the non-blocking write API with batching
//  4. Starts draining async write errors to the logger
//
// Parameters:
//   - cfg: Telemetry section of the client configuration
//
// Returns:
//   - *Sink: Connected sink ready for use
//   - error: ErrDisabled, or ErrConnectionFailed with detail
func Connect(cfg config.TelemetryConfig) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(defaultFlushInterval),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	s := &Sink{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:    noopLogger{},
		connected: true,
	}

	go s.drainWriteErrors(s.writeAPI.Errors())

	return s, nil
}

// SetLogger sets the logger that receives async write failures.
func (s *Sink) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// RecordConnection records the connectivity gauge and bumps the
// reconnect counter on every transition to connected.
func (s *Sink) RecordConnection(connected bool) {
	s.WriteConnectivity(connected)
	if connected {
		s.WriteReconnect()
	}
}

// WriteConnectivity records the push-channel state as a 0/1 gauge.
func (s *Sink) WriteConnectivity(connected bool) {
	if !s.active() {
		return
	}

	value := 0.0
	if connected {
		value = 1.0
	}
	s.writeAPI.WritePoint(write.NewPoint(
		"stream_connectivity",
		nil,
		map[string]interface{}{"connected": value},
		time.Now(),
	))
}

// WriteReconnect records one successful (re)connect.
func (s *Sink) WriteReconnect() {
	if !s.active() {
		return
	}

	s.writeAPI.WritePoint(write.NewPoint(
		"stream_reconnects",
		nil,
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}

// WriteDeviceStatus records one device's current status and fault flags.
func (s *Sink) WriteDeviceStatus(dev *device.Device) {
	if !s.active() {
		return
	}

	s.writeAPI.WritePoint(write.NewPoint(
		"device_status",
		map[string]string{
			"device_id":    dev.ID(),
			"generic_type": string(dev.GenericType()),
		},
		map[string]interface{}{
			"status":      dev.Status(),
			"battery_low": dev.BatteryLow(),
			"no_response": dev.NoResponse(),
		},
		time.Now(),
	))
}

// Close flushes pending writes and shuts the client down.
func (s *Sink) Close() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	s.writeAPI.Flush()
	s.client.Close()
}

func (s *Sink) active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Sink) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		s.mu.RLock()
		logger := s.logger
		s.mu.RUnlock()
		logger.Warn("telemetry write failed", "error", err)
	}
}
