package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{input: "DEBUG", expected: slog.LevelDebug},
		{input: "debug", expected: slog.LevelDebug},
		{input: "INFO", expected: slog.LevelInfo},
		{input: "WARN", expected: slog.LevelWarn},
		{input: "WARNING", expected: slog.LevelWarn},
		{input: "ERROR", expected: slog.LevelError},
		{input: "nonsense", expected: slog.LevelInfo},
		{input: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestInitLoggerSetsDefault(t *testing.T) {
	InitLogger("DEBUG")
	assert.True(t, slog.Default().Enabled(nil, slog.LevelDebug))
}
