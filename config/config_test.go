package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
cloud:
  base_url: "https://api.test.example"
  socket_url: "wss://api.test.example/socket.io/"
auth:
  username: "user@test.example"
  password: "hunter2"
stream:
  ping_interval: 10s
  backoff_base: 2s
  backoff_cap: 20s
logging:
  level: "debug"
  format: "text"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cloud.BaseURL != "https://api.test.example" {
		t.Errorf("Cloud.BaseURL = %q, want %q", cfg.Cloud.BaseURL, "https://api.test.example")
	}
	if cfg.Auth.Username != "user@test.example" {
		t.Errorf("Auth.Username = %q, want %q", cfg.Auth.Username, "user@test.example")
	}
	if cfg.Stream.PingInterval != 10*time.Second {
		t.Errorf("Stream.PingInterval = %v, want 10s", cfg.Stream.PingInterval)
	}

	// Unset values keep their defaults.
	if cfg.Stream.PollInterval != 5*time.Second {
		t.Errorf("Stream.PollInterval = %v, want default 5s", cfg.Stream.PollInterval)
	}
	if cfg.Auth.CachePath != "./hearth-session.json" {
		t.Errorf("Auth.CachePath = %q, want default", cfg.Auth.CachePath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/hearth.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
auth:
  username: "file-user"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("HEARTH_AUTH_USERNAME", "env-user")
	t.Setenv("HEARTH_STREAM_PING_TIMEOUT", "90s")
	t.Setenv("HEARTH_HISTORY_ENABLED", "true")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.Username != "env-user" {
		t.Errorf("Auth.Username = %q, want env override %q", cfg.Auth.Username, "env-user")
	}
	if cfg.Stream.PingTimeout != 90*time.Second {
		t.Errorf("Stream.PingTimeout = %v, want 90s", cfg.Stream.PingTimeout)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want env override true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty base url",
			mutate:  func(c *Config) { c.Cloud.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "base url without scheme",
			mutate:  func(c *Config) { c.Cloud.BaseURL = "cloud.hearth.example" },
			wantErr: true,
		},
		{
			name:    "socket url with http scheme",
			mutate:  func(c *Config) { c.Cloud.SocketURL = "https://cloud.hearth.example/socket.io/" },
			wantErr: true,
		},
		{
			name:    "backoff cap below base",
			mutate:  func(c *Config) { c.Stream.BackoffCap = time.Second },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Stream.PollInterval = 0 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: true,
		},
		{
			name: "mqtt invalid qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name: "telemetry enabled without org",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Org = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
