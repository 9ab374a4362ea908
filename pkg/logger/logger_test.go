package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	orig := log
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(orig) })
	return logs
}

func TestInitAndContextLogging(t *testing.T) {
	Init("development")
	if GetLogger() == nil {
		t.Fatal("expected logger initialized")
	}

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	Info(ctx, "info")
	Debug(ctx, "debug")
	Warn(ctx, "warn")
	Error(ctx, "error")
	LogRequest(ctx, "GET", "/health", 200, 10*time.Millisecond, "127.0.0.1")
	Sync()
}

func TestWithContext_AttachesRequestAndFlowIDs(t *testing.T) {
	logs := observe(t)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-7")
	ctx = WithFlowID(ctx, "flow-9")
	Info(ctx, "flow decided", zap.String("plan", "DIRECT_TRANSFER"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-7" || fields["flow_id"] != "flow-9" || fields["plan"] != "DIRECT_TRANSFER" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestWithContextNil(t *testing.T) {
	logs := observe(t)
	WithContext(nil).Info("no context")
	if logs.Len() != 1 || len(logs.All()[0].Context) != 0 {
		t.Fatal("expected a bare entry for nil context")
	}
}

func TestInit_ProductionAndSetLoggerNil(t *testing.T) {
	orig := log
	t.Cleanup(func() { SetLogger(orig) })

	once = sync.Once{}
	Init("production")
	if GetLogger() == nil {
		t.Fatal("expected production logger initialized")
	}

	SetLogger(nil)
	if GetLogger() == nil {
		t.Fatal("expected nop logger after SetLogger(nil)")
	}
}
