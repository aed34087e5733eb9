package mqttbridge

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hearth-go/config"
	"github.com/nerrad567/hearth-go/device"
	"github.com/nerrad567/hearth-go/event"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// maxPayloadSize caps publishes at 1MB, aligned with typical broker limits.
	maxPayloadSize = 1 << 20
)

// Logger is the minimal logging interface used by the Bridge.
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

// Bridge republishes Hearth push events onto a local MQTT broker so
// dashboards and automations on the LAN can consume them without their
// own cloud session.
//
// Thread Safety:
//   - All methods are safe for concurrent use; paho serialises the
//     underlying network writes.
type Bridge struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger Logger
}

// Connect establishes a connection to the local broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament on the bridge status topic
//  3. Enables auto-reconnect with backoff
//  4. Attempts initial connection with timeout
//  5. Publishes retained "online" to hearth/bridge/status
//
// Parameters:
//   - cfg: MQTT section of the client configuration
//
// Returns:
//   - *Bridge: Connected bridge ready for publishing
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig) (*Bridge, error) {
	opts := buildClientOptions(cfg)

	b := &Bridge{
		cfg:    cfg,
		logger: noopLogger{},
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		// Re-announce after every reconnect; the LWT may have fired.
		if err := b.publish(Topics{}.BridgeStatus(), []byte(`"online"`), 1, true); err != nil {
			b.logger.Warn("publishing online status", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.logger.Warn("broker connection lost", "error", err)
	})

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return b, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Close announces offline and disconnects from the broker.
func (b *Bridge) Close() {
	if err := b.publish(Topics{}.BridgeStatus(), []byte(`"offline"`), 1, true); err != nil {
		b.logger.Warn("publishing offline status", "error", err)
	}
	b.client.Disconnect(defaultDisconnectQuiesce)
}

// devicePayload is the JSON shape published to device state topics.
type devicePayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Generic string `json:"generic_type"`
	Status  string `json:"status,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// PublishDevice republishes one device's state to its retained state
// topic. Alarm devices additionally publish the current mode to the area
// mode topic.
func (b *Bridge) PublishDevice(dev *device.Device) {
	payload := devicePayload{
		ID:      dev.ID(),
		Name:    dev.Name(),
		Type:    dev.Type(),
		Generic: string(dev.GenericType()),
		Status:  dev.Status(),
	}

	var mode string
	if dev.GenericType() == device.TypeAlarm {
		if modes, ok := dev.GetValue("mode").(map[string]any); ok {
			mode, _ = modes[dev.ID()].(string)
		}
		payload.Mode = mode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("encoding device payload", "id", dev.ID(), "error", err)
		return
	}

	if err := b.publish(Topics{}.DeviceState(dev.ID()), body, byte(b.cfg.QoS), true); err != nil {
		b.logger.Warn("republishing device state", "id", dev.ID(), "error", err)
	}

	if mode != "" {
		area := deviceAreaSuffix(dev.ID())
		if err := b.publish(Topics{}.AlarmMode(area), []byte(fmt.Sprintf("%q", mode)), byte(b.cfg.QoS), true); err != nil {
			b.logger.Warn("republishing alarm mode", "error", err)
		}
	}
}

// PublishTimeline republishes one timeline event on the non-retained
// firehose topic.
func (b *Bridge) PublishTimeline(ev event.TimelineEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("encoding timeline payload", "error", err)
		return
	}
	if err := b.publish(Topics{}.Timeline(), body, byte(b.cfg.QoS), false); err != nil {
		b.logger.Warn("republishing timeline event", "code", ev.EventCode, "error", err)
	}
}

// PublishStreamStatus republishes the push-channel state on its retained
// status topic.
func (b *Bridge) PublishStreamStatus(connected bool) {
	payload := `"disconnected"`
	if connected {
		payload = `"connected"`
	}
	if err := b.publish(Topics{}.StreamStatus(), []byte(payload), 1, true); err != nil {
		b.logger.Warn("republishing stream status", "error", err)
	}
}

// publish sends one message with validation and an acknowledgment timeout.
func (b *Bridge) publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !b.client.IsConnected() {
		return ErrNotConnected
	}

	token := b.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// deviceAreaSuffix extracts the area number from a synthesized alarm id.
func deviceAreaSuffix(id string) string {
	if len(id) > len(device.AlarmDeviceIDPrefix) {
		return id[len(device.AlarmDeviceIDPrefix):]
	}
	return "1"
}

// buildClientOptions creates paho MQTT options from the client config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and credentials (if provided)
//   - Auto-reconnect with backoff
//   - Last Will and Testament on the bridge status topic
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// Broker announces us dead if the process vanishes without Close.
	opts.SetWill(Topics{}.BridgeStatus(), `"offline"`, 1, true)

	return opts
}
