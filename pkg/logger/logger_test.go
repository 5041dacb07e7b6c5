package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(buf, &Options{
		Level:      level,
		TimeFormat: "15:04:05",
		MsgPrefix:  "| ",
		NoColor:    true,
	}))
}

func TestHandlerWritesMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelDebug)

	log.Info("relay started", "threadID", "thread_abc", Err(errors.New("upstream closed")))

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "| relay started")
	assert.Contains(t, out, "threadID=thread_abc")
	assert.Contains(t, out, `err="upstream closed"`)
	assert.NotContains(t, out, "\x1b[")
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelWarn)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestHandlerPrintsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo)

	ctx := ContextWithRequestID(context.Background(), "0123456789abcdef")
	log.InfoContext(ctx, "handled")

	assert.Contains(t, buf.String(), "01234567 ")
	assert.NotContains(t, buf.String(), "0123456789abcdef")
}

func TestHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo).With("service", "relay").WithGroup("run")

	log.Info("delta", "len", 5)

	assert.Contains(t, buf.String(), "service=relay")
	assert.Contains(t, buf.String(), "run.len=5")
}

func TestErrNilIsDropped(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo)

	log.Info("ok", Err(nil))

	assert.NotContains(t, buf.String(), "err=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestRequestIDFromContext(t *testing.T) {
	_, ok := RequestIDFromContext(context.Background())
	require.False(t, ok)

	id, ok := RequestIDFromContext(ContextWithRequestID(context.Background(), "req-1"))
	require.True(t, ok)
	assert.Equal(t, "req-1", id)
}
