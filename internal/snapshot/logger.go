package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gym-snapshot/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SnapshotLogger provides structured logging for snapshot operations with correlation IDs and an audit trail
type SnapshotLogger struct {
	logger        *logging.Logger
	auditLogger   *logrus.Logger
	correlationID string
}

// LoggerConfig holds configuration for snapshot logging
type LoggerConfig struct {
	Logger         *logging.Logger
	EnableAuditLog bool
	AuditLogFile   string
	// AuditOutput takes precedence over AuditLogFile when set.
	AuditOutput   io.Writer
	CorrelationID string
}

// AuditEntry is one line of the audit trail
type AuditEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	CallerID      string                 `json:"caller_id,omitempty"`
	Role          string                 `json:"role,omitempty"`
	Action        Action                 `json:"action"`
	Result        string                 `json:"result"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// NewSnapshotLogger creates a new snapshot logger with correlation ID support
func NewSnapshotLogger(config LoggerConfig) (*SnapshotLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	sl := &SnapshotLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	if config.EnableAuditLog {
		output := config.AuditOutput
		if output == nil && config.AuditLogFile != "" {
			if err := os.MkdirAll(filepath.Dir(config.AuditLogFile), 0755); err != nil {
				return nil, fmt.Errorf("failed to create audit log directory: %w", err)
			}
			file, err := os.OpenFile(config.AuditLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("failed to open audit log file: %w", err)
			}
			output = file
		}

		if output != nil {
			auditLogger := logrus.New()
			auditLogger.SetOutput(output)
			auditLogger.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: time.RFC3339,
			})
			auditLogger.SetLevel(logrus.InfoLevel)
			sl.auditLogger = auditLogger
		}
	}

	return sl, nil
}

// GetCorrelationID returns the current correlation ID
func (sl *SnapshotLogger) GetCorrelationID() string {
	if sl == nil {
		return ""
	}
	return sl.correlationID
}

// WithCorrelationID creates a new logger with a different correlation ID
func (sl *SnapshotLogger) WithCorrelationID(correlationID string) *SnapshotLogger {
	if sl == nil {
		return nil
	}
	return &SnapshotLogger{
		logger:        sl.logger,
		auditLogger:   sl.auditLogger,
		correlationID: correlationID,
	}
}

// Base returns the underlying application logger.
func (sl *SnapshotLogger) Base() *logging.Logger {
	if sl == nil {
		return nil
	}
	return sl.logger
}

// LogOperation logs the start of an operation and returns a function that
// logs its outcome along with any result fields.
func (sl *SnapshotLogger) LogOperation(operation string, fields map[string]interface{}) func(error, map[string]interface{}) {
	if sl == nil {
		return func(error, map[string]interface{}) {}
	}

	startTime := time.Now()
	base := logrus.Fields{
		"correlation_id": sl.correlationID,
		"operation":      operation,
	}
	for k, v := range fields {
		base[k] = v
	}

	sl.logger.WithFields(withStatus(base, "started")).Debug("Snapshot operation started")

	return func(err error, result map[string]interface{}) {
		done := withStatus(base, "completed")
		done["duration"] = time.Since(startTime).String()
		for k, v := range result {
			done[k] = v
		}

		if err != nil {
			done["success"] = false
			done["error"] = err.Error()
			if errType := ErrorTypeOf(err); errType != "" {
				done["error_type"] = string(errType)
			}
			sl.logger.WithFields(done).Error("Snapshot operation failed")
			return
		}

		done["success"] = true
		sl.logger.WithFields(done).Info("Snapshot operation completed")
	}
}

// LogAudit writes one entry to the audit trail, if one is configured.
func (sl *SnapshotLogger) LogAudit(ctx context.Context, caller Caller, action Action, result string, details map[string]interface{}) {
	if sl == nil || sl.auditLogger == nil {
		return
	}

	entry := AuditEntry{
		Timestamp:     time.Now(),
		CorrelationID: sl.correlationID,
		CallerID:      caller.ID,
		Role:          caller.Role,
		Action:        action,
		Result:        result,
		Details:       details,
	}

	fields := logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"caller_id":      entry.CallerID,
		"role":           entry.Role,
		"action":         string(entry.Action),
		"result":         entry.Result,
	}
	if len(entry.Details) > 0 {
		fields["details"] = entry.Details
	}
	if requestID := logging.GetRequestIDFromContext(ctx); requestID != "" {
		fields["request_id"] = requestID
	}

	sl.auditLogger.WithFields(fields).Info("Audit log entry")
}

// LogEntitySetPhase records one entity set passing through read, wipe or recreate.
func (sl *SnapshotLogger) LogEntitySetPhase(phase, entitySet string, rows int64, duration time.Duration, err error) {
	if sl == nil {
		return
	}
	sl.logger.LogEntitySetPhase(phase, entitySet, rows, duration, err)
}

// Warn logs a warning with the correlation id attached.
func (sl *SnapshotLogger) Warn(msg string, fields map[string]interface{}) {
	if sl == nil {
		return
	}
	entry := logrus.Fields{"correlation_id": sl.correlationID}
	for k, v := range fields {
		entry[k] = v
	}
	sl.logger.WithFields(entry).Warn(msg)
}

func withStatus(fields logrus.Fields, status string) logrus.Fields {
	out := make(logrus.Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["status"] = status
	return out
}
