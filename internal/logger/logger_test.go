package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/lkarthik76/ddnd/internal/models"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.Config
		want    zapcore.Level
		wantErr bool
	}{
		{"default", models.Config{}, zapcore.InfoLevel, false},
		{"configured", models.Config{Log: models.LogConfig{Level: "warn"}}, zapcore.WarnLevel, false},
		{"debug overrides level", models.Config{Debug: true, Log: models.LogConfig{Level: "error"}}, zapcore.DebugLevel, false},
		{"invalid", models.Config{Log: models.LogConfig{Level: "loud"}}, zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := Level(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestBuild_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(&models.Config{Log: models.LogConfig{Level: "info", Format: "json"}}, "1.2.3", zapcore.AddSync(&buf))
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("visible")
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "ddnd", entry["service_name"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Contains(t, entry, "timestamp")
}

func TestBuild_DebugEmitsDebug(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(&models.Config{Debug: true, Log: models.LogConfig{Level: "error", Format: "console"}}, "", zapcore.AddSync(&buf))
	require.NoError(t, err)

	log.Debug("detail")
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "detail")
	assert.NotContains(t, buf.String(), "version")
}

func TestBuild_InvalidFormat(t *testing.T) {
	_, err := build(&models.Config{Log: models.LogConfig{Format: "xml"}}, "", zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}
