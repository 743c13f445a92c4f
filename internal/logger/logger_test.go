package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{DebugLevel, zapcore.DebugLevel},
		{InfoLevel, zapcore.InfoLevel},
		{WarnLevel, zapcore.WarnLevel},
		{ErrorLevel, zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetReturnsSingleton(t *testing.T) {
	a := Get(WarnLevel)
	b := Get(DebugLevel)
	if a != b {
		t.Fatal("Get should return the same instance")
	}
	if a.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Error("first level should win: info must be disabled at warn")
	}
}

func TestNilSafety(t *testing.T) {
	var l *Logger
	l.Component("mount").Infow("discarded")
	OrNop(nil).Warnw("discarded")
}
