// Package logging provides structured logging for mqttwrap.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the engines, the dispatcher,
// the registry and the host service.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	reg := registry.New(registry.Options{Logger: logger.With("component", "registry")})
//
// # Security
//
// Never log broker passwords, client key passwords or InfluxDB tokens.
package logging
