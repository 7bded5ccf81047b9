package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{" INFO ", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCLILogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewCLILogger("warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Error("Validation errors:\n[]", zap.String("run_id", "r1"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "ERROR Validation errors:\n[]")
	assert.Contains(t, out, `"run_id": "r1"`)
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	require.Error(t, InitCLILogger("loud", nil))
	assert.Same(t, orig, CLILogger)

	var buf bytes.Buffer
	require.NoError(t, InitCLILogger("info", &buf))
	CLILogger.Info("Wrote 2 experiments")
	assert.Contains(t, buf.String(), "INFO Wrote 2 experiments")
}
