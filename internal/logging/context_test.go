package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RequestID(ctx))
	assert.Equal(t, "", UserID(ctx))
	assert.Equal(t, schema.ActionKind(""), ActionKind(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "ana@example.com")
	ctx = WithActionKind(ctx, schema.KindSchedule)

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "ana@example.com", UserID(ctx))
	assert.Equal(t, schema.KindSchedule, ActionKind(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithRequestID(context.Background(), "req-abc")
	ctx = WithActionKind(ctx, schema.KindSendEmail)

	LogWith(ctx, logger).Info("sending")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-abc")
	assert.Contains(t, out, "action_kind=send_email")
	assert.NotContains(t, out, "user_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithUserID(WithRequestID(context.Background(), "req-9"), "bo@example.com")
	logger.With("component", "test").InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-9")
	assert.Contains(t, out, "user_id=bo@example.com")
	assert.Contains(t, out, "component=test")
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, lv := New(&buf, "warn", "json")

	logger.Info("quiet")
	assert.Empty(t, buf.String())

	lv.Set(ParseLevel("debug"))
	logger.Debug("loud")
	assert.Contains(t, buf.String(), `"msg":"loud"`)

	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, slog.LevelError, ParseLevel(" ERROR "))
}
