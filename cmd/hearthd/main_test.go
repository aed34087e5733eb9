package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HEARTH_CONFIG", "/nonexistent/path/hearth.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidCloudURL verifies run fails before any network use when
// the config is malformed.
func TestRun_InvalidCloudURL(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hearth.yaml")

	configContent := `
cloud:
  base_url: "not-a-url"
  socket_url: "wss://cloud.hearth.example/socket.io/"

auth:
  username: "user@example.com"
  password: "secret"

logging:
  level: error
  format: text
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("HEARTH_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a malformed cloud URL")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HEARTH_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("HEARTH_CONFIG", "/etc/hearth/hearth.yaml")
	if got := getConfigPath(); got != "/etc/hearth/hearth.yaml" {
		t.Errorf("getConfigPath() = %q, want the env override", got)
	}
}
