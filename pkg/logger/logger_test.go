package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/pkg/config"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func bufferLogger(buf *bytes.Buffer) *Logger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	return &Logger{zlog: zerolog.New(buf).With().Timestamp().Logger()}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(&config.Config{Env: "development", LogLevel: tt.level, LogFormat: "json"})
			require.NotNil(t, log)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	log := bufferLogger(&buf)

	tests := []struct {
		name      string
		logFunc   func()
		wantMsg   string
		wantLevel string
	}{
		{"debug", func() { log.Debug("debug message") }, "debug message", "debug"},
		{"info", func() { log.Info("info message") }, "info message", "info"},
		{"warn", func() { log.Warn("warn message") }, "warn message", "warn"},
		{"error", func() { log.Error("error message") }, "error message", "error"},
		{"debugf", func() { log.Debugf("bar: %d", 12) }, "bar: 12", "debug"},
		{"infof", func() { log.Infof("legs: %d", 42) }, "legs: 42", "info"},
		{"warnf", func() { log.Warnf("retry attempt: %d", 3) }, "retry attempt: 3", "warn"},
		{"errorf", func() { log.Errorf("failed to connect: %s", "timeout") }, "failed to connect: timeout", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()

			entry := decode(t, &buf)
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantMsg, entry["message"])
		})
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := bufferLogger(&buf)

	log.WithFields(map[string]interface{}{
		"leg_id": "bull-3-7",
		"bar":    120,
	}).WithField("reason", "engulfed").Info("leg pruned")

	entry := decode(t, &buf)
	assert.Equal(t, "bull-3-7", entry["leg_id"])
	assert.Equal(t, float64(120), entry["bar"])
	assert.Equal(t, "engulfed", entry["reason"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := bufferLogger(&buf)

	log.WithError(errors.New("kafka unavailable")).Error("publish failed")

	entry := decode(t, &buf)
	assert.Equal(t, "kafka unavailable", entry["error"])
	assert.Equal(t, "publish failed", entry["message"])
}

func TestWithStream(t *testing.T) {
	var buf bytes.Buffer
	log := bufferLogger(&buf)

	zl := log.WithStream("ES:1m").Zerolog()
	zl.Info().Msg("bar processed")

	entry := decode(t, &buf)
	assert.Equal(t, "ES:1m", entry["stream"])
	assert.Equal(t, "bar processed", entry["message"])
}

func TestLogFormats(t *testing.T) {
	for _, format := range []string{"json", "console", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&config.Config{Env: "test", LogLevel: "info", LogFormat: format}, &buf)
			log.Info("test message")

			assert.Contains(t, buf.String(), "test message")
		})
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("discarded")
	assert.Equal(t, zerolog.Disabled, log.Zerolog().GetLevel())
}
