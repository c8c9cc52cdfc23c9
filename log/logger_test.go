package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_Filtering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCustomLogger(&buf, LogLevelWarn)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
	assert.Contains(t, out, "[ragflow] ")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LogLevelDebug, true},
		{"INFO", LogLevelInfo, true},
		{"", LogLevelInfo, true},
		{"warning", LogLevelWarn, true},
		{"error", LogLevelError, true},
		{"off", LogLevelNone, true},
		{"loud", LogLevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestOrDefault(t *testing.T) {
	prev := GetDefaultLogger()
	defer SetDefaultLogger(prev)

	noop := &NoOpLogger{}
	SetDefaultLogger(noop)
	assert.Same(t, noop, OrDefault(nil))

	custom := NewCustomLogger(&bytes.Buffer{}, LogLevelDebug)
	assert.Same(t, custom, OrDefault(custom))
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	logger := Named(Named(NewCustomLogger(&buf, LogLevelDebug), "orchestrator"), "run 42")

	logger.Debug("entered %s", "chunking")
	logger.Error("failed")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] orchestrator: run 42: entered chunking")
	assert.Contains(t, out, "[ERROR] orchestrator: run 42: failed")

	noop := &NoOpLogger{}
	assert.Same(t, noop, Named(noop, "x"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN(9)", LogLevel(9).String())
}
