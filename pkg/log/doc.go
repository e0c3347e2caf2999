/*
Package log provides structured logging for Brigade using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers, configurable log levels, and
helper functions for common logging patterns. All logs include timestamps
and support filtering by severity level for production debugging.

# Usage

Initializing the logger:

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Component loggers:

	apiLog := log.WithComponent("api")
	apiLog.Info().Str("route", "/cloud/auth/login").Msg("request")

	nodeLog := log.WithNode("node-abc123")
	nodeLog.Warn().Msg("heartbeat stale")

# Security

Never log secrets: node tokens, bootstrap tokens and passwords must not
appear in any log line at any level. Callers log token ids and hashes'
owning entity ids instead.
*/
package log
