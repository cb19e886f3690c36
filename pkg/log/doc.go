/*
Package log provides structured logging for idnsync using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging. Output defaults to stderr so that
CSV exports written to stdout remain machine-parseable.

# Architecture

idnsync's logging system provides structured JSON logging with minimal
overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Global Logger                   │           │
	│  │  - Zerolog instance                        │           │
	│  │  - Initialized via log.Init()              │           │
	│  │  - Thread-safe for concurrent use          │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Configuration                    │           │
	│  │  - Level: debug/info/warn/error            │           │
	│  │  - Format: JSON or console (human)         │           │
	│  │  - Output: stderr, file, or custom writer  │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │         Context Loggers                    │           │
	│  │  - WithComponent("reconciler")             │           │
	│  │  - WithTenant("ph08")                      │           │
	│  │  - WithRecordID(4711)                      │           │
	│  │  - WithDN("cn=jdoe,ou=user,...")           │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │            Log Output                      │           │
	│  │                                            │           │
	│  │  JSON Format:                              │           │
	│  │  {                                         │           │
	│  │    "level": "info",                        │           │
	│  │    "component": "reconciler",              │           │
	│  │    "tenant": "ph08",                       │           │
	│  │    "time": "2026-08-25T10:30:00Z",         │           │
	│  │    "message": "entry updated"              │           │
	│  │  }                                         │           │
	│  │                                            │           │
	│  │  Console Format:                           │           │
	│  │  10:30AM INF entry updated tenant=ph08     │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all idnsync packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information (per-attribute diffs, skipped
    cross-tenant candidates)
  - Info: General informational messages (entries written, rounds finished)
  - Warn: Warning messages (semantic mismatches between event type and
    source state)
  - Error: Error messages (directory or database operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold; --verbose maps to debug
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stderr by default)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithTenant: Add tenant label context
  - WithRecordID: Add event-log record ID context
  - WithDN: Add directory entry DN context

# Usage

Initializing the Logger:

	import "github.com/edusync/idnsync/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output with per-event detail (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Simple Logging:

	log.Info("directory connection established")
	log.Debug("attribute unchanged, skipping")
	log.Warn("update event but person row still present")
	log.Error("modify failed")
	log.Fatal("cannot start without bind credentials") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("dn", dn).
		Int("changed", len(replace)).
		Msg("entry updated")

	log.Logger.Error().
		Err(err).
		Str("tenant", tenant.Label).
		Msg("event batch failed")

Component Loggers:

	recLog := log.WithComponent("reconciler")
	recLog.Info().Msg("processing event")
	recLog.Debug().Int64("record_id", ev.RecordID).Msg("classified as upsert")

	// Multiple context fields
	evLog := log.WithComponent("scheduler").
		With().Str("tenant", t.Label).
		Int64("record_id", ev.RecordID).Logger()
	evLog.Info().Msg("event done")

# Integration Points

This package integrates with:

  - pkg/scheduler: Logs round progress and tenant switches
  - pkg/reconciler: Logs per-event decisions and attribute diffs
  - pkg/directory: Logs binds, retries, and directory operations
  - pkg/source: Logs query batches and writebacks
  - pkg/initload: Logs tree provisioning and orphan removal

# Security

Log Content:
  - Never log clear-text or encrypted passwords
  - Attribute diffs log names, not values, at info level
  - Value-level detail only at debug level and never for the
    password attribute

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data (tenant, record_id, dn)
  - Create component-specific loggers
  - Log errors with .Err() so writeback messages and logs agree

Don't:
  - Log sensitive data (bind passwords, person passwords)
  - Use Debug level in production
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
