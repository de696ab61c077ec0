package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gym-snapshot/internal/logging"
)

func TestNewSnapshotLogger(t *testing.T) {
	logger, err := NewSnapshotLogger(LoggerConfig{})
	if err != nil {
		t.Fatalf("NewSnapshotLogger() error = %v", err)
	}
	if logger.GetCorrelationID() == "" {
		t.Error("expected a generated correlation id")
	}

	other, err := NewSnapshotLogger(LoggerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetCorrelationID() == other.GetCorrelationID() {
		t.Error("correlation ids should differ between loggers")
	}

	scoped := logger.WithCorrelationID("req-42")
	if scoped.GetCorrelationID() != "req-42" {
		t.Errorf("WithCorrelationID() = %s", scoped.GetCorrelationID())
	}
	if scoped.Base() != logger.Base() {
		t.Error("scoped logger should share the base logger")
	}
}

func TestSnapshotLogger_AuditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "snapshot-audit.log")

	logger, err := NewSnapshotLogger(LoggerConfig{
		Logger:         logging.NewNopLogger(),
		EnableAuditLog: true,
		AuditLogFile:   path,
		CorrelationID:  "corr-1",
	})
	if err != nil {
		t.Fatalf("NewSnapshotLogger() error = %v", err)
	}

	ctx := logging.CreateContextWithRequestID(context.Background(), "req-7")
	logger.LogAudit(ctx, Caller{ID: "u1", Role: "admin"}, ActionDelete, "success", map[string]interface{}{"name": testSnapshotName})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("audit file not written: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	want := map[string]string{
		"correlation_id": "corr-1",
		"caller_id":      "u1",
		"role":           "admin",
		"action":         "delete",
		"result":         "success",
		"request_id":     "req-7",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("audit %s = %v, want %s", key, entry[key], value)
		}
	}
}

func TestSnapshotLogger_LogOperation(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.NewLogger(logging.Config{Level: logging.LogLevelDebug, Output: &buf, Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	logger, err := NewSnapshotLogger(LoggerConfig{Logger: base, CorrelationID: "corr-2"})
	if err != nil {
		t.Fatal(err)
	}

	done := logger.LogOperation("snapshot_restore", map[string]interface{}{"scope": "completo"})
	done(NewTimeoutError("too slow", nil), map[string]interface{}{"wiped": 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected start and finish lines, got %d: %s", len(lines), buf.String())
	}

	var finished map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &finished); err != nil {
		t.Fatal(err)
	}
	if finished["success"] != false || finished["error_type"] != "TIMEOUT" {
		t.Errorf("unexpected finish entry: %v", finished)
	}
	if finished["correlation_id"] != "corr-2" || finished["scope"] != "completo" {
		t.Errorf("finish entry lost its fields: %v", finished)
	}
	if finished["wiped"] != float64(3) {
		t.Errorf("wiped = %v", finished["wiped"])
	}
}

func TestSnapshotLogger_NilSafe(t *testing.T) {
	var logger *SnapshotLogger

	logger.LogOperation("x", nil)(errors.New("boom"), nil)
	logger.LogAudit(context.Background(), Caller{}, ActionList, "denied", nil)
	logger.LogEntitySetPhase("wipe", "alunos", 1, 0, nil)
	logger.Warn("ignored", nil)

	if logger.WithCorrelationID("x") != nil || logger.Base() != nil || logger.GetCorrelationID() != "" {
		t.Error("nil logger should stay nil")
	}
}
