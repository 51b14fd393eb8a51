// Package logging provides structured logging for the floor plan service.
//
// It wraps log/slog so every package logs with the same handler, level and
// default fields (service, version).
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("session opened", "widget_id", id)
//
// Never log secrets or bearer tokens.
package logging
