package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "j***@*******.com", SanitizedEmail("jane@example.com"))
	assert.Equal(t, "j@*.io", SanitizedEmail("j@x.io"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("a@b@c.com"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("resetToken=abc"))
	assert.True(t, SanitizeQueryString("EMAIL=x"))
	assert.False(t, SanitizeQueryString("page=2&per_page=50"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestHandler_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo).With("component", "test")

	ctx := SetIP(SetRequestID(context.Background(), "req-1"), "203.0.113.1")
	log.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "203.0.113.1", record["ip_address"])
	assert.Equal(t, "test", record["component"])
}

func TestAuditLogger_MasksEmailAndSetsLevel(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(New(&buf, slog.LevelInfo))

	audit.LogAuthAttempt(context.Background(), AuditEvent{
		EventType:     EventSignin,
		Email:         "jane@example.com",
		Success:       false,
		FailureReason: "invalid_credentials",
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "j***@*******.com", record["email"])
	assert.Equal(t, "invalid_credentials", record["failure_reason"])
}
