package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Hearth client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	Auth      AuthConfig      `yaml:"auth"`
	Stream    StreamConfig    `yaml:"stream"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CloudConfig contains the vendor cloud endpoints.
type CloudConfig struct {
	// BaseURL is the REST API origin, e.g. "https://cloud.hearth.example".
	BaseURL string `yaml:"base_url"`

	// SocketURL is the push-channel endpoint, e.g. "wss://cloud.hearth.example/socket.io/".
	SocketURL string `yaml:"socket_url"`
}

// AuthConfig contains login credentials and session cache settings.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CachePath is where the session cache (install UUID and cookies)
	// is persisted between runs. Default: ./hearth-session.json
	CachePath string `yaml:"cache_path"`

	// DisableCache skips reading and writing the session cache file.
	DisableCache bool `yaml:"disable_cache"`
}

// StreamConfig contains push-channel tuning parameters.
// Zero values fall back to the documented defaults at connect time.
type StreamConfig struct {
	// PingInterval is the client ping cadence used until the server
	// advertises its own. Default: 25s
	PingInterval time.Duration `yaml:"ping_interval"`

	// PingTimeout is how long the connection may be silent before it is
	// declared dead. Default: 60s
	PingTimeout time.Duration `yaml:"ping_timeout"`

	// PollInterval is the liveness check cadence. Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// BackoffBase is the initial reconnect delay window. Default: 5s
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffCap bounds the reconnect delay window. Default: 30s
	BackoffCap time.Duration `yaml:"backoff_cap"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HistoryConfig contains the local timeline history store settings.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file. Default: ./hearth-history.db
	Path string `yaml:"path"`

	// Retention is how long timeline entries are kept; entries older than
	// this are removed by Prune. Default: 720h (30 days)
	Retention time.Duration `yaml:"retention"`
}

// MQTTConfig contains the optional local MQTT republisher settings.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TelemetryConfig contains the optional InfluxDB sink settings.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HEARTH_SECTION_KEY
// For example: HEARTH_AUTH_USERNAME, HEARTH_CLOUD_BASE_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// Credentials are intentionally empty and must be supplied by the caller.
func Default() *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL:   "https://cloud.hearth.example",
			SocketURL: "wss://cloud.hearth.example/socket.io/",
		},
		Auth: AuthConfig{
			CachePath: "./hearth-session.json",
		},
		Stream: StreamConfig{
			PingInterval: 25 * time.Second,
			PingTimeout:  60 * time.Second,
			PollInterval: 5 * time.Second,
			BackoffBase:  5 * time.Second,
			BackoffCap:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		History: HistoryConfig{
			Path:      "./hearth-history.db",
			Retention: 720 * time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hearth-client",
			},
			QoS: 1,
		},
		Telemetry: TelemetryConfig{
			URL:    "http://localhost:8086",
			Bucket: "hearth",
		},
	}
}

// applyEnvOverrides replaces config values with HEARTH_* environment variables
// where present.
func applyEnvOverrides(cfg *Config) {
	overrideString("HEARTH_CLOUD_BASE_URL", &cfg.Cloud.BaseURL)
	overrideString("HEARTH_CLOUD_SOCKET_URL", &cfg.Cloud.SocketURL)

	overrideString("HEARTH_AUTH_USERNAME", &cfg.Auth.Username)
	overrideString("HEARTH_AUTH_PASSWORD", &cfg.Auth.Password)
	overrideString("HEARTH_AUTH_CACHE_PATH", &cfg.Auth.CachePath)
	overrideBool("HEARTH_AUTH_DISABLE_CACHE", &cfg.Auth.DisableCache)

	overrideDuration("HEARTH_STREAM_PING_INTERVAL", &cfg.Stream.PingInterval)
	overrideDuration("HEARTH_STREAM_PING_TIMEOUT", &cfg.Stream.PingTimeout)
	overrideDuration("HEARTH_STREAM_POLL_INTERVAL", &cfg.Stream.PollInterval)
	overrideDuration("HEARTH_STREAM_BACKOFF_BASE", &cfg.Stream.BackoffBase)
	overrideDuration("HEARTH_STREAM_BACKOFF_CAP", &cfg.Stream.BackoffCap)

	overrideString("HEARTH_LOGGING_LEVEL", &cfg.Logging.Level)
	overrideString("HEARTH_LOGGING_FORMAT", &cfg.Logging.Format)
	overrideString("HEARTH_LOGGING_OUTPUT", &cfg.Logging.Output)

	overrideBool("HEARTH_HISTORY_ENABLED", &cfg.History.Enabled)
	overrideString("HEARTH_HISTORY_PATH", &cfg.History.Path)

	overrideBool("HEARTH_MQTT_ENABLED", &cfg.MQTT.Enabled)
	overrideString("HEARTH_MQTT_BROKER_HOST", &cfg.MQTT.Broker.Host)
	overrideInt("HEARTH_MQTT_BROKER_PORT", &cfg.MQTT.Broker.Port)
	overrideBool("HEARTH_MQTT_BROKER_TLS", &cfg.MQTT.Broker.TLS)
	overrideString("HEARTH_MQTT_BROKER_CLIENT_ID", &cfg.MQTT.Broker.ClientID)
	overrideString("HEARTH_MQTT_AUTH_USERNAME", &cfg.MQTT.Auth.Username)
	overrideString("HEARTH_MQTT_AUTH_PASSWORD", &cfg.MQTT.Auth.Password)

	overrideBool("HEARTH_TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	overrideString("HEARTH_TELEMETRY_URL", &cfg.Telemetry.URL)
	overrideString("HEARTH_TELEMETRY_TOKEN", &cfg.Telemetry.Token)
	overrideString("HEARTH_TELEMETRY_ORG", &cfg.Telemetry.Org)
	overrideString("HEARTH_TELEMETRY_BUCKET", &cfg.Telemetry.Bucket)
}

func overrideString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func overrideBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func overrideInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func overrideDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

// Validate checks the configuration for values the client cannot work with.
//
// Returns:
//   - error: Describing the first invalid value found, or nil
func (c *Config) Validate() error {
	if c.Cloud.BaseURL == "" {
		return fmt.Errorf("cloud.base_url is required")
	}
	if !strings.HasPrefix(c.Cloud.BaseURL, "http://") && !strings.HasPrefix(c.Cloud.BaseURL, "https://") {
		return fmt.Errorf("cloud.base_url must be an http(s) URL, got %q", c.Cloud.BaseURL)
	}
	if c.Cloud.SocketURL == "" {
		return fmt.Errorf("cloud.socket_url is required")
	}
	if !strings.HasPrefix(c.Cloud.SocketURL, "ws://") && !strings.HasPrefix(c.Cloud.SocketURL, "wss://") {
		return fmt.Errorf("cloud.socket_url must be a ws(s) URL, got %q", c.Cloud.SocketURL)
	}

	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	if c.Stream.BackoffBase <= 0 {
		return fmt.Errorf("stream.backoff_base must be positive")
	}
	if c.Stream.BackoffCap < c.Stream.BackoffBase {
		return fmt.Errorf("stream.backoff_cap must be >= stream.backoff_base")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			return fmt.Errorf("mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			return fmt.Errorf("telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Org == "" || c.Telemetry.Bucket == "" {
			return fmt.Errorf("telemetry.org and telemetry.bucket are required when telemetry is enabled")
		}
	}

	return nil
}
