package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf).WithField("service", "evogen")

	logger.Debug("hidden")
	logger.Info("run started", map[string]interface{}{"run_id": "abc"})
	logger.WithError(errors.New("boom")).Error("run failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "run started", entries[0]["message"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "evogen", entries[0]["service"])
	assert.Equal(t, "abc", entries[0]["run_id"])
	assert.Contains(t, entries[0]["caller"], "logging/logging_test.go")

	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithFormat(DebugLevel, TextFormat, &buf)

	logger.Warn("slow sink", map[string]interface{}{"dropped": 3, "sink": "async queue"})

	line := buf.String()
	assert.Contains(t, line, "WARN  slow sink")
	assert.Contains(t, line, "dropped=3")
	assert.Contains(t, line, `sink="async queue"`)
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		format Format
		level  LogLevel
	}{
		{"defaults", nil, JSONFormat, InfoLevel},
		{"text", &Config{Level: "debug", Format: "text", Output: "stdout"}, TextFormat, DebugLevel},
		{"console alias", &Config{Level: "warn", Format: "console", Output: "stderr"}, TextFormat, WarnLevel},
		{"unknown level", &Config{Level: "verbose", Output: "stderr"}, JSONFormat, InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.format, logger.format)
			assert.Equal(t, tt.level, logger.level)
		})
	}
}

func TestZapLogger_ForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(DebugLevel, &buf)).Named("ga").With(zap.String("run_id", "r1"))

	zl.Info("generation completed",
		zap.Float64("best", 1.5),
		zap.Int("generation", 7),
		zap.Bool("cancelled", false),
		zap.Duration("elapsed", 2*time.Second))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "generation completed", e["message"])
	assert.Equal(t, "r1", e["run_id"])
	assert.Equal(t, 1.5, e["best"])
	assert.Equal(t, 7.0, e["generation"])
	assert.Equal(t, false, e["cancelled"])
	assert.Equal(t, "ga", e["logger"])
	assert.Contains(t, e["caller"], "logging/logging_test.go")
}

func TestZapLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(WarnLevel, &buf))

	zl.Debug("hidden")
	zl.Info("hidden")
	zl.Warn("shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)

	var fromCtx *CtxLogger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs/x", nil))

	require.NotNil(t, fromCtx)
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "/api/v1/runs/x", entries[0]["path"])
	assert.Equal(t, 404.0, entries[0]["status"])
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)

	ctx := l.WithContext(context.Background())
	assert.Same(t, l, FromContext(ctx))
}
