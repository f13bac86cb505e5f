package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsphere.io/internal/obs"
)

func TestEvent(t *testing.T) {
	var buf bytes.Buffer
	log := New(obs.NewLoggerWithWriter("test", "info", &buf))

	ctx := WithRequestID(context.Background(), "req-123")

	err := log.Event(ctx, "auth.login", "user-42", map[string]any{"tenant_id": "t1"})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["type"])
	assert.Equal(t, "auth.login", entry["msg"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "user-42", entry["user_id"])
	assert.Equal(t, "t1", entry["tenant_id"])
}

func TestEventWithoutActor(t *testing.T) {
	var buf bytes.Buffer
	log := New(obs.NewLoggerWithWriter("test", "info", &buf))

	err := log.Event(context.Background(), "auth.login_failed", "", map[string]any{"reason": "bad_password"})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "auth.login_failed", entry["msg"])
	assert.NotContains(t, entry, "user_id")
	assert.NotContains(t, entry, "request_id")
}

func TestEventRequiresName(t *testing.T) {
	log := New(obs.NewLoggerWithWriter("test", "info", &bytes.Buffer{}))
	assert.Error(t, log.Event(context.Background(), "  ", "u1", nil))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-9")
	assert.Equal(t, "req-9", RequestIDFromContext(ctx))

	assert.Empty(t, RequestIDFromContext(WithRequestID(context.Background(), "   ")))
}
