package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T, level LogLevel) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  level,
		Output: &buf,
		Format: "text",
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger, &buf
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name:   "normal text",
			config: Config{Level: LogLevelNormal, Format: "text"},
			want:   LogLevelNormal,
		},
		{
			name:   "verbose json",
			config: Config{Level: LogLevelVerbose, Format: "json"},
			want:   LogLevelVerbose,
		},
		{
			name:   "quiet",
			config: Config{Level: LogLevelQuiet},
			want:   LogLevelQuiet,
		},
		{
			name:   "empty level falls back to normal",
			config: Config{},
			want:   LogLevelNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "gym-snapshot.log")

	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &buf, LogFile: logFile})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("written twice")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written twice") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(buf.String(), "written twice") {
		t.Errorf("output missing message, got: %s", buf.String())
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	if logger == nil {
		t.Fatal("NewDefaultLogger() returned nil")
	}
	if logger.GetLevel() != LogLevelNormal {
		t.Errorf("NewDefaultLogger() level = %v, want %v", logger.GetLevel(), LogLevelNormal)
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	if logger.IsLevelEnabled(LogLevelNormal) {
		t.Error("nop logger should not log info messages")
	}
	logger.Error("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"quiet":    LogLevelQuiet,
		"VERBOSE":  LogLevelVerbose,
		" debug ":  LogLevelDebug,
		"normal":   LogLevelNormal,
		"":         LogLevelNormal,
		"nonsense": LogLevelNormal,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLoggerWithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	logger.WithFields(map[string]interface{}{
		"entity_set": "alunos",
		"rows":       42,
	}).Info("test message")

	output := buf.String()
	for _, want := range []string{"entity_set=alunos", "rows=42", "test message"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestLoggerWithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	ctx := CreateContextWithRequestID(context.Background(), "test-request-123")
	logger.WithContext(ctx).Info("test message with context")

	if !strings.Contains(buf.String(), "request_id=test-request-123") {
		t.Errorf("Expected output to contain request_id=test-request-123, got: %s", buf.String())
	}
}

func TestLogDatabaseConnection(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	logger.LogDatabaseConnection("mysql", "localhost:3306/gym", true, 100*time.Millisecond, nil)
	output := buf.String()
	if !strings.Contains(output, "Database connection established") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "driver=mysql") {
		t.Errorf("Expected driver=mysql, got: %s", output)
	}

	buf.Reset()

	logger.LogDatabaseConnection("sqlite3", "gym.db", false, 5*time.Second, errors.New("connection timeout"))
	output = buf.String()
	if !strings.Contains(output, "Database connection failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "connection timeout") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestLogSQLExecution(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	sql := "DELETE FROM `medidas`"
	logger.LogSQLExecution(sql, 50*time.Millisecond, 3, nil)
	output := buf.String()
	if !strings.Contains(output, "SQL executed successfully") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "medidas") {
		t.Errorf("Expected SQL statement, got: %s", output)
	}

	buf.Reset()

	logger.LogSQLExecution(sql, 10*time.Millisecond, 0, errors.New("foreign key constraint fails"))
	output = buf.String()
	if !strings.Contains(output, "SQL execution failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "foreign key constraint fails") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestLogSQLExecutionQuietAtNormalLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal)

	logger.LogSQLExecution("SELECT 1", time.Millisecond, 1, nil)
	if buf.Len() != 0 {
		t.Errorf("Expected no output for successful SQL at normal level, got: %s", buf.String())
	}
}

func TestLogSQLExecutionTruncation(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	longSQL := "INSERT INTO `alunos` (`id`, `nome`) VALUES " + strings.Repeat("(?, ?), ", 60) + "(?, ?)"
	logger.LogSQLExecution(longSQL, 50*time.Millisecond, 61, nil)

	output := buf.String()
	if !strings.Contains(output, "...") {
		t.Errorf("Expected truncated SQL with '...', got: %s", output)
	}
	if !strings.Contains(output, "sql_length=") {
		t.Errorf("Expected sql_length field, got: %s", output)
	}
}

func TestLogEntitySetPhase(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	logger.LogEntitySetPhase("wipe", "medidas", 7, 20*time.Millisecond, nil)
	output := buf.String()
	if !strings.Contains(output, "Entity set phase completed") {
		t.Errorf("Expected completion message, got: %s", output)
	}
	if !strings.Contains(output, "operation=entity_set_wipe") || !strings.Contains(output, "rows=7") {
		t.Errorf("Expected phase fields, got: %s", output)
	}

	buf.Reset()

	logger.LogEntitySetPhase("recreate", "alunos", 0, time.Millisecond, errors.New("duplicate entry"))
	output = buf.String()
	if !strings.Contains(output, "Entity set phase failed") || !strings.Contains(output, "duplicate entry") {
		t.Errorf("Expected failure with error, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	logger := NewDefaultLogger()

	logger.SetLevel(LogLevelVerbose)
	if logger.GetLevel() != LogLevelVerbose {
		t.Errorf("SetLevel() failed, got %v, want %v", logger.GetLevel(), LogLevelVerbose)
	}

	logger.SetLevel(LogLevelQuiet)
	if logger.GetLevel() != LogLevelQuiet {
		t.Errorf("SetLevel() failed, got %v, want %v", logger.GetLevel(), LogLevelQuiet)
	}
}

func TestIsLevelEnabled(t *testing.T) {
	tests := []struct {
		name        string
		loggerLevel LogLevel
		testLevel   LogLevel
		want        bool
	}{
		{"quiet logger, error level", LogLevelQuiet, LogLevelQuiet, true},
		{"quiet logger, normal level", LogLevelQuiet, LogLevelNormal, false},
		{"normal logger, normal level", LogLevelNormal, LogLevelNormal, true},
		{"normal logger, verbose level", LogLevelNormal, LogLevelVerbose, false},
		{"verbose logger, verbose level", LogLevelVerbose, LogLevelVerbose, true},
		{"verbose logger, debug level", LogLevelVerbose, LogLevelDebug, false},
		{"debug logger, debug level", LogLevelDebug, LogLevelDebug, true},
		{"unknown level", LogLevelDebug, LogLevel("loud"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := newBufferLogger(t, tt.loggerLevel)
			if got := logger.IsLevelEnabled(tt.testLevel); got != tt.want {
				t.Errorf("IsLevelEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogOperationStart(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	fields := map[string]interface{}{
		"scope":  "completo",
		"tables": 12,
	}

	finish := logger.LogOperationStart("snapshot_create", fields)

	output := buf.String()
	if !strings.Contains(output, "Operation started") {
		t.Errorf("Expected start message, got: %s", output)
	}
	if !strings.Contains(output, "scope=completo") {
		t.Errorf("Expected scope=completo, got: %s", output)
	}

	buf.Reset()

	finish(nil)
	output = buf.String()
	if !strings.Contains(output, "Operation completed") || !strings.Contains(output, "success=true") {
		t.Errorf("Expected successful completion, got: %s", output)
	}

	finish2 := logger.LogOperationStart("snapshot_restore", fields)
	buf.Reset()

	finish2(errors.New("restore rolled back"))
	output = buf.String()
	if !strings.Contains(output, "Operation failed") || !strings.Contains(output, "success=false") {
		t.Errorf("Expected failed completion, got: %s", output)
	}
	if !strings.Contains(output, "restore rolled back") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestGetRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	if id := GetRequestIDFromContext(ctx); id != "" {
		t.Errorf("GetRequestIDFromContext() = %v, want empty string", id)
	}

	ctx = CreateContextWithRequestID(ctx, "test-456")
	if id := GetRequestIDFromContext(ctx); id != "test-456" {
		t.Errorf("GetRequestIDFromContext() = %v, want %v", id, "test-456")
	}

	// A plain string key must not collide with the private key type
	//nolint:staticcheck
	ctx = context.WithValue(context.Background(), "request_id", "spoofed")
	if id := GetRequestIDFromContext(ctx); id != "" {
		t.Errorf("GetRequestIDFromContext() = %v, want empty string", id)
	}
}

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "normal SQL",
			input: "SELECT * FROM `alunos`",
			want:  "SELECT * FROM `alunos`",
		},
		{
			name:  "quoted password",
			input: "CREATE USER 'gym'@'localhost' IDENTIFIED BY password='secret123'",
			want:  "CREATE USER 'gym'@'localhost' IDENTIFIED BY password=***",
		},
		{
			name:  "uppercase PASSWORD",
			input: "ALTER USER 'gym'@'localhost' IDENTIFIED BY PASSWORD='secret123'",
			want:  "ALTER USER 'gym'@'localhost' IDENTIFIED BY PASSWORD=***",
		},
		{
			name:  "unquoted password followed by more text",
			input: "connect user=gym password=secret host=db",
			want:  "connect user=gym password=*** host=db",
		},
		{
			name:  "very long SQL",
			input: strings.Repeat("DELETE FROM `execucoesExercicio`; ", 20),
			want:  strings.Repeat("DELETE FROM `execucoesExercicio`; ", 20)[:500] + "... [truncated]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeSQL(tt.input); got != tt.want {
				t.Errorf("SanitizeSQL() = %v, want %v", got, tt.want)
			}
		})
	}
}
