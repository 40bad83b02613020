package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies that parseLogLevel correctly parses log level
// strings from environment variables, handling case-insensitivity and whitespace.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		level := parseLogLevel(tt.env)
		if got := level.Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
	logger.Info("test message")
	_ = logger.Sync()
}

func TestLoggerFromContext(t *testing.T) {
	fallback := zap.NewExample()
	if got := LoggerFromContext(context.Background(), fallback); got != fallback {
		t.Error("LoggerFromContext() without stored logger should return fallback")
	}
	if got := LoggerFromContext(context.Background(), nil); got == nil {
		t.Error("LoggerFromContext() with nil fallback should return a no-op logger, got nil")
	}

	scoped := zap.NewNop()
	ctx := WithLogger(context.Background(), scoped)
	if got := LoggerFromContext(ctx, fallback); got != scoped {
		t.Error("LoggerFromContext() should return the stored logger")
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID() = %q, want empty", got)
	}
	ctx := WithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("CorrelationID() = %q, want abc-123", got)
	}
}

func TestFlushTelemetry_NilLogger(t *testing.T) {
	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("FlushTelemetry(nil) error = %v, want nil", err)
	}
}
