package module

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	// LogLevelDebug represents debug-level logs
	LogLevelDebug LogLevel = "DEBUG"
	// LogLevelInfo represents informational logs
	LogLevelInfo LogLevel = "INFO"
	// LogLevelWarn represents warning logs
	LogLevelWarn LogLevel = "WARN"
	// LogLevelError represents error logs
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is a structured log entry published to NATS for live streaming
// to the configuration UI.
type LogEntry struct {
	Timestamp string   `json:"timestamp"` // RFC3339 format
	Level     LogLevel `json:"level"`
	Module    string   `json:"module"`
	PanelID   string   `json:"panel_id"`
	Message   string   `json:"message"`
	Detail    string   `json:"detail,omitempty"` // Error detail for ERROR entries
}

// Logger is the log sink handed to every module instance. It wraps a
// slog.Logger for local logging and, when a NATS connection is available,
// publishes entries to logs.{panel_id}.{module} for remote consumption.
type Logger struct {
	moduleName string
	panelID    string
	nc         *nats.Conn
	logger     *slog.Logger
	enabled    bool // whether NATS publishing is enabled
}

// NewLogger creates a module logger. nc may be nil, in which case entries
// are only logged locally.
func NewLogger(moduleName, panelID string, nc *nats.Conn, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		moduleName: moduleName,
		panelID:    panelID,
		nc:         nc,
		logger:     logger,
		enabled:    nc != nil,
	}
}

// Named returns a copy of the logger bound to a different module name.
// Used when one sink is shared across instances materialized from the
// same interaction list.
func (ml *Logger) Named(moduleName string) *Logger {
	if ml == nil {
		return nil
	}
	clone := *ml
	clone.moduleName = moduleName
	return &clone
}

// Debug logs a debug-level message
func (ml *Logger) Debug(msg string, args ...any) {
	if ml == nil {
		return
	}
	ml.publish(LogLevelDebug, msg, "")
	ml.logger.Debug(msg, append([]any{"module", ml.moduleName}, args...)...)
}

// Info logs an info-level message
func (ml *Logger) Info(msg string, args ...any) {
	if ml == nil {
		return
	}
	ml.publish(LogLevelInfo, msg, "")
	ml.logger.Info(msg, append([]any{"module", ml.moduleName}, args...)...)
}

// Warn logs a warning-level message
func (ml *Logger) Warn(msg string, args ...any) {
	if ml == nil {
		return
	}
	ml.publish(LogLevelWarn, msg, "")
	ml.logger.Warn(msg, append([]any{"module", ml.moduleName}, args...)...)
}

// Error logs an error-level message with optional error details
func (ml *Logger) Error(msg string, err error, args ...any) {
	if ml == nil {
		return
	}
	detail := ""
	if err != nil {
		detail = fmt.Sprintf("%+v", err)
	}
	ml.publish(LogLevelError, msg, detail)
	ml.logger.Error(msg, append([]any{"module", ml.moduleName, "error", err}, args...)...)
}

// publish sends a log entry to NATS, best-effort
func (ml *Logger) publish(level LogLevel, message, detail string) {
	if !ml.enabled {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Module:    ml.moduleName,
		PanelID:   ml.panelID,
		Message:   message,
		Detail:    detail,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		ml.logger.Error("Failed to marshal log entry", "error", err)
		return
	}

	// Re-check the connection; the panel may clear it during shutdown
	nc := ml.nc
	if nc == nil {
		return
	}

	subject := fmt.Sprintf("logs.%s.%s", ml.panelID, ml.moduleName)
	if err := nc.Publish(subject, data); err != nil {
		ml.logger.Error("Failed to publish log to NATS", "error", err, "subject", subject)
	}
}
