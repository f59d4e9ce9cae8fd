package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		env, level string
		debug      bool
	}{
		{"production", "", false},
		{"development", "", true},
		{"production", "debug", true},
		{"development", "warn", false},
	}
	for _, tc := range cases {
		log, err := New(tc.env, tc.level)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tc.env, tc.level, err)
		}
		if got := log.Core().Enabled(zapcore.DebugLevel); got != tc.debug {
			t.Fatalf("New(%q, %q) debug enabled = %v, want %v", tc.env, tc.level, got, tc.debug)
		}
	}
	if _, err := New("production", "loud"); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
