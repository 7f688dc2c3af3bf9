// Package logger provides the structured logging interface used across instadb.
//
// It wraps zerolog with a small API supporting levels, structured fields,
// coloured console output on stderr and an optional append-only log file.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	log := logger.GetLogger().WithField("account", "natgeo")
//	log.InfoWithFields("Processed page", map[string]interface{}{
//	    "page":  3,
//	    "posts": 12,
//	})
//
// Components receive a Logger explicitly; tests pass NewNopLogger or
// NewTestLogger to capture output for assertions.
package logger
