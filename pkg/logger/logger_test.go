package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode      string
		debugLogs bool
	}{
		{"debug", true},
		{"release", false},
		{"", false},
	}
	for _, tt := range tests {
		log, err := New(tt.mode)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.mode, err)
		}
		if got := log.Core().Enabled(zapcore.DebugLevel); got != tt.debugLogs {
			t.Errorf("New(%q) debug enabled = %v, want %v", tt.mode, got, tt.debugLogs)
		}
	}
}
