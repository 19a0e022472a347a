// Package logging provides structured logging with zerolog for trace context propagation.
// It supports configurable log levels, output formats (JSON/console), and automatic
// extraction of trace/span IDs from context for distributed tracing correlation.
//
// Example usage:
//
//	cfg := config.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//	logger := logging.New(cfg)
//	logger.Info().Str("service_name", "dashboard").Msg("registered")
package logging

// Standard field names for structured logging.
// These constants ensure consistent field naming across all processes.
const (
	// TraceID is the field name for distributed trace ID (W3C trace context).
	TraceID = "trace_id"

	// SpanID is the field name for current span ID within a trace.
	SpanID = "span_id"

	// ServiceName is the field name for the registry identity being acted on.
	ServiceName = "service_name"

	// Environment is the field name for the deployment environment of a
	// registration, e.g. "windows-vm" or "gpu-node".
	Environment = "environment"

	// Capability is the field name for the capability a lookup filtered on.
	Capability = "capability"

	// Source is the field name for the registry tier that served an operation:
	// "local", "remote", "cache", "config" or "env".
	Source = "source"

	// Op is the field name for the registry operation being performed,
	// e.g. "discover_service" or "heartbeat".
	Op = "op"

	// Endpoint is the field name for a service endpoint address.
	Endpoint = "endpoint"

	// Timestamp is the field name for when the log was created.
	Timestamp = "timestamp"

	// Level is the field name for log level (debug, info, warn, error).
	Level = "level"

	// Message is the field name for the log message.
	Message = "message"

	// Error is the field name for error information.
	Error = "error"

	// RequestID is the field name for HTTP request ID.
	RequestID = "request_id"

	// Method is the field name for HTTP method.
	Method = "method"

	// Path is the field name for HTTP path.
	Path = "path"

	// StatusCode is the field name for HTTP status code.
	StatusCode = "status_code"

	// Duration is the field name for operation duration.
	Duration = "duration_ms"

	// Component is the field name for the component/package generating the log.
	Component = "component"
)
