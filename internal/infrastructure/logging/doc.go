// Package logging provides structured logging for Aegis Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
//
// # Relationship to the audit trail
//
// This logger is the operational channel: failures of the audit trail's own
// storage are reported here and only here, never recursively into the audit
// trail. Security-relevant decisions go to the audit trail; process-level
// events (startup, shutdown, storage errors) go here.
//
// # Security
//
// Never log secrets, session tokens, passwords, or password hashes.
// Use field redaction for sensitive data:
//
//	logger.Info("session touched", "token_prefix", token[:8]+"...")
package logging
