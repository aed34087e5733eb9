// Command hearthd runs a long-lived Hearth cloud client.
//
// It connects to the vendor cloud, keeps the push channel open, and feeds
// the optional local services (SQLite history, MQTT republishing, InfluxDB
// telemetry) configured in the YAML file. It is the packaged consumer of
// the library for installations that want local integrations without
// writing Go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/hearth-go"
	"github.com/nerrad567/hearth-go/config"
	"github.com/nerrad567/hearth-go/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/hearth.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting hearthd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	client, err := hearth.New(cfg)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Stop()

	if err := client.Events().AddConnectionStatusCallback("hearthd", func(up bool) {
		if up {
			log.Info("push channel connected")
		} else {
			log.Warn("push channel disconnected")
		}
	}); err != nil {
		return fmt.Errorf("registering connection callback: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting client: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// getConfigPath resolves the config file location: the HEARTH_CONFIG
// environment variable when set, the default path otherwise.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
