package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewIsNop(t *testing.T) {
	l := New()
	if l.Log == nil {
		t.Fatalf("expected non-nil logger")
	}
	if l.Log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("nop logger should not enable any level")
	}
}

func TestInitLevels(t *testing.T) {
	for _, level := range []string{"debug", "Info", "WARN", " error "} {
		l := New()
		if err := l.Init(level); err != nil {
			t.Fatalf("Init(%q) returned error: %v", level, err)
		}
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	l := New()
	if err := l.Init("chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestInitSetsLevel(t *testing.T) {
	l := New()
	if err := l.Init("warn"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if l.Log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !l.Log.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be enabled at warn level")
	}
}
