package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies LOG_LEVEL parsing is case-insensitive and
// defaults to info.
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

// TestLoggerFromContext verifies the request-scoped logger wins over the
// fallback and a nil fallback yields a usable logger.
func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	scoped := zap.New(core).With(zap.String("correlation_id", "abc"))
	fallback := zap.NewNop()

	ctx := WithLogger(context.Background(), scoped)
	LoggerFromContext(ctx, fallback).Info("hello")

	if logs.Len() != 1 {
		t.Fatalf("logs = %d, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["correlation_id"]; got != "abc" {
		t.Errorf("correlation_id = %v, want abc", got)
	}

	LoggerFromContext(context.Background(), nil).Info("dropped")
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID() = %q, want empty", got)
	}
	ctx := WithCorrelationID(context.Background(), "req-1")
	if got := CorrelationID(ctx); got != "req-1" {
		t.Errorf("CorrelationID() = %q, want req-1", got)
	}
}

func TestNewLoggerConfig_Format(t *testing.T) {
	prod := newLoggerConfig("", "")
	if prod.Encoding != "json" || prod.EncoderConfig.TimeKey != "timestamp" {
		t.Errorf("default config: encoding = %q timeKey = %q, want json/timestamp", prod.Encoding, prod.EncoderConfig.TimeKey)
	}
	if prod.InitialFields["service"] != ServiceName {
		t.Errorf("service field = %v, want %s", prod.InitialFields["service"], ServiceName)
	}

	dev := newLoggerConfig("debug", " Console ")
	if dev.Encoding != "console" {
		t.Errorf("console config encoding = %q, want console", dev.Encoding)
	}
	if dev.Level.Level() != zap.DebugLevel {
		t.Errorf("console config level = %v, want debug", dev.Level.Level())
	}
}

func TestFlushTelemetry(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	if err := FlushTelemetry(context.Background(), zap.New(core)); err != nil {
		t.Errorf("FlushTelemetry() error = %v", err)
	}
	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("FlushTelemetry(nil logger) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := FlushTelemetry(ctx, zap.NewNop()); !errors.Is(err, context.Canceled) {
		t.Errorf("FlushTelemetry(canceled) error = %v, want context.Canceled", err)
	}
}
