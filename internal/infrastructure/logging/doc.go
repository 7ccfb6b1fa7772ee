// Package logging provides structured logging for gatewayctl.
//
// This package wraps Go's standard log/slog package. Every entry carries
// the service name and build version; components add their own name via
// Component so dispatcher, scheduler and scene output can be told apart.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("dispatch").Warn("command failed, retrying", "device_id", id)
//
// Never log the gateway token or broker credentials.
package logging
