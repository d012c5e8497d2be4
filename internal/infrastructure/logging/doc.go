// Package logging provides structured logging for boxlink.
//
// It wraps log/slog: JSON output for the daemon, text output for
// development, with service and version attributes on every entry.
//
// Configuration comes from the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("scheduler").Info("polling enabled", "interval", d)
//
// Session tokens must never reach the log. Attributes named session_token,
// token, password or authorization are redacted by the handler.
package logging
