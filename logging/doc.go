// Package logging provides structured logging for the Hearth client.
//
// This package wraps Go's standard log/slog package to provide consistent,
// structured logging across the library.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (library, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("stream connected", "url", cfg.Cloud.SocketURL)
//
// Individual packages accept a minimal Logger interface instead of this
// concrete type, so hosts can plug in their own slog-compatible logger.
// Never log credentials, tokens, or cookie values.
package logging
