/*
Package log provides structured logging for Loom using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

Loom's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("raftnode")                │          │
	│  │  - WithNodeID("3")                          │          │
	│  │  - WithIndex("books")                       │          │
	│  │  - WithPeer("127.0.0.1:7380")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "bulk",                     │          │
	│  │    "time": "2026-07-30T10:30:00Z",          │          │
	│  │    "message": "ingest committed"            │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF ingest committed   │         │
	│  │    component=bulk                           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Loom packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add raft node ID context
  - WithIndex: Add index name context
  - WithPeer: Add remote peer address context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "raft: sending MsgApp to peer 2"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "index created: books"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "peerpool: dial failed, will retry on next placement tick"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "bulk: parse error on line 42"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to open raft storage: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/loom/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/loom.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Structured Logging:

	log.Logger.Info().
		Str("index", "books").
		Uint64("opstamp", 12).
		Msg("commit finished")

	log.Logger.Error().
		Err(err).
		Str("node_id", "3").
		Msg("raft step failed")

Component Loggers:

	// Create component-specific logger
	bulkLog := log.WithComponent("bulk")
	bulkLog.Info().Msg("starting ingest pipeline")
	bulkLog.Debug().Int("lines", 1200).Msg("stage complete")

	// Multiple context fields
	rpcLog := log.WithComponent("clusterrpc").
		With().Str("node_id", "3").Logger()
	rpcLog.Info().Msg("handling PlaceDocument")
	rpcLog.Error().Err(err).Msg("place document failed")

Context Logger Helpers:

	// Node-specific logs
	nodeLog := log.WithNodeID("3")
	nodeLog.Info().Msg("raft node started")

	// Index-specific logs
	idxLog := log.WithIndex("books")
	idxLog.Info().Msg("writer committed")

	// Peer-specific logs
	peerLog := log.WithPeer("127.0.0.1:7381")
	peerLog.Warn().Msg("dial failed, retrying")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/cuemby/loom/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Logger.Info().Msg("loom node starting")

		// Component-specific logging
		bulkLog := log.WithComponent("bulk")
		bulkLog.Info().
			Str("index", "books").
			Int("line_count", 5).
			Msg("ingest pipeline started")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "peerpool").
			Msg("failed to dial peer")

		log.Logger.Info().Msg("loom node stopped")
	}

# Integration Points

This package integrates with:

  - internal/raftnode: logs Ready-loop events and conf changes
  - internal/clusterrpc: logs inbound RPC errors
  - internal/bulk: logs ingest pipeline progress and parse errors
  - internal/peerpool: logs dial failures and membership churn
  - internal/httpapi: logs request errors
  - cmd/loom: initializes the global logger from CLI flags

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"raftnode","time":"2026-07-30T10:30:00Z","message":"raft node started"}
	{"level":"info","component":"bulk","index":"books","time":"2026-07-30T10:30:01Z","message":"ingest committed"}
	{"level":"error","component":"peerpool","node_id":"2","time":"2026-07-30T10:30:02Z","message":"dial failed"}

Console Format (Development):

	2026-07-30T10:30:00Z INF raft node started component=raftnode
	2026-07-30T10:30:01Z INF ingest committed component=bulk index=books
	2026-07-30T10:30:02Z ERR dial failed component=peerpool node_id=2

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Records the error message under the "error" field (no stack trace)
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume; raft Ready-loop and bulk line-level logging
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production, or a hot bulk-ingest loop logging per line
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or ID fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow application performance
  - Cause: Excessive logging in hot path (e.g. per-document bulk ingest)
  - Check: Log statements in tight loops
  - Solution: Reduce log frequency, use sampling

# Log Rotation

File-Based Logging:

Loom doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/loom
	/var/log/loom/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u loom -f

Docker/Kubernetes:
	# Use container runtime log drivers
	# JSON logs to stdout (already implemented)

# Log Aggregation

Recommended Tools:

Elasticsearch + Filebeat:
  - Filebeat ships logs to Elasticsearch
  - Kibana for visualization and search
  - Query: component:"raftnode" AND level:"error"

Loki + Promtail:
  - Lightweight log aggregation
  - Grafana integration
  - Query: {component="bulk"} |= "error"

CloudWatch Logs:
  - AWS native log aggregation
  - Metric filters for alerting
  - Query: fields @message | filter component = "clusterrpc"

Datadog:
  - Full-stack observability
  - APM and log correlation
  - Query: service:loom component:raftnode status:error

# Monitoring

Log-Based Alerts:

High Error Rate:
  - Query: rate(log entries with level="error"[5m]) > 10
  - Description: More than 10 errors per second
  - Action: Check recent errors, investigate root cause

No Logs:
  - Query: absent(log entries[1m])
  - Description: No logs received in 1 minute
  - Action: Check the loom process, log pipeline

Specific Error Pattern:
  - Query: log entries containing "dial failed"
  - Description: Cluster RPC peers unreachable
  - Action: Check peer addresses, network connectivity

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens, passwords, API keys
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user input into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() so the error lands in its own field
  - Include context (node ID, index name, peer address)

Don't:
  - Log sensitive data (secrets, passwords)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
  - Log aggregation: https://www.elastic.co/what-is/log-aggregation
*/
package log
