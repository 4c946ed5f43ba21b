package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/stevemurr/state-table-server/logging"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, logging.ParseLevel(in), in)
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	logging.New(&buf, "info", "json").Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logging.New(&buf, "info", "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	logging.New(&buf, "warn", "text").Info("hidden")
	assert.Empty(t, buf.String())
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := logging.New(&buf, "info", "text")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	logging.FromContext(ctx, base).Info("served")
	assert.Contains(t, buf.String(), "request_id=req-42")

	buf.Reset()
	logging.FromContext(context.Background(), base).Info("served")
	assert.NotContains(t, buf.String(), "request_id")
}
