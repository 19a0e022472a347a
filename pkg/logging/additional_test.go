package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridhouse/peerreg/pkg/config"
	"github.com/rs/zerolog"
)

// TestWith verifies With() returns zerolog.Context
func TestWith(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	logger := &Logger{zlog: zlog}

	ctx := logger.With().Str("key", "value")
	newLogger := ctx.Logger()
	newLogger.Info().Msg("test")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if val, ok := logEntry["key"]; !ok || val != "value" {
		t.Errorf("key = %v, want 'value'", val)
	}
}

// TestGetZerolog verifies GetZerolog returns underlying logger
func TestGetZerolog(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	logger := &Logger{zlog: zlog}

	underlying := logger.GetZerolog()
	if underlying == nil {
		t.Error("GetZerolog() returned nil")
	}

	underlying.Info().Msg("test")
	if !bytes.Contains(buf.Bytes(), []byte("test")) {
		t.Error("underlying logger did not write to buffer")
	}
}

// TestSetLevel verifies SetLevel changes log level
func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf).Level(zerolog.InfoLevel)
	logger := &Logger{zlog: zlog}

	// Debug should not log at info level
	logger.Debug().Msg("debug message")
	if buf.Len() > 0 {
		t.Error("debug message logged at info level")
	}

	// Change to debug level
	logger.SetLevel(zerolog.DebugLevel)
	buf.Reset()

	logger.Debug().Msg("debug message")
	if !bytes.Contains(buf.Bytes(), []byte("debug message")) {
		t.Error("debug message not logged after changing level")
	}
}

// TestCtx verifies Ctx helper function
func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	logger := &Logger{zlog: zlog}

	ctx := context.Background()
	ctx = WithLogger(ctx, logger)
	ctx = WithTraceID(ctx, "trace-123")

	// Use Ctx helper
	Ctx(ctx).Info().Msg("test")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if traceID, ok := logEntry[TraceID]; !ok || traceID != "trace-123" {
		t.Errorf("trace_id = %v, want 'trace-123'", traceID)
	}
}

// TestNewConsoleFormat verifies console format output
func TestNewConsoleFormat(t *testing.T) {
	cfg := config.LogConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}

	logger := New(cfg)
	if logger == nil {
		t.Error("New() returned nil")
	}
}

// TestNewStderrOutput verifies stderr output configuration
func TestNewStderrOutput(t *testing.T) {
	cfg := config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}

	logger := New(cfg)
	if logger == nil {
		t.Error("New() returned nil")
	}
}

// TestNewFileOutput verifies file output writes to the given path
func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerreg.log")
	cfg := config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: path,
	}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New() returned nil")
	}

	logger.Info().Msg("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !bytes.Contains(data, []byte("written to file")) {
		t.Errorf("log file content = %q, want to contain 'written to file'", data)
	}
}

// TestNewFileOutputBadPath verifies unwritable paths fall back to stdout
func TestNewFileOutputBadPath(t *testing.T) {
	cfg := config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "/nonexistent-dir/peerreg.log",
	}

	logger := New(cfg)
	if logger == nil {
		t.Error("New() returned nil")
	}
}

// TestResponseWriterWrite verifies Write calls WriteHeader
func TestResponseWriterWrite(t *testing.T) {
	rec := newMockResponseWriter()
	rw := &responseWriter{
		ResponseWriter: rec,
		statusCode:     http.StatusOK,
	}

	data := []byte("test data")
	n, err := rw.Write(data)

	if err != nil {
		t.Errorf("Write() error = %v", err)
	}
	if n != len(data) {
		t.Errorf("Write() n = %v, want %v", n, len(data))
	}
	if !rw.written {
		t.Error("Write() did not set written flag")
	}
	if string(rec.data) != "test data" {
		t.Errorf("Write() data = %v, want 'test data'", string(rec.data))
	}
}

// mockResponseWriter implements http.ResponseWriter for testing
type mockResponseWriter struct {
	header http.Header
	data   []byte
	code   int
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		header: make(http.Header),
		code:   200,
	}
}

func (m *mockResponseWriter) Header() http.Header {
	return m.header
}

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.data = append(m.data, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(code int) {
	m.code = code
}
