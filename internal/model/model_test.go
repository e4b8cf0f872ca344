package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func decode(t *testing.T, e *Envelope) map[string]any {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestFresh_MergesUpstreamFields(t *testing.T) {
	m := decode(t, Fresh(json.RawMessage(`{"name":"Jane","carrier":"acme"}`), at, "number-intel"))

	assert.Equal(t, true, m["success"])
	assert.Equal(t, false, m["cached"])
	assert.Equal(t, "Jane", m["name"])
	assert.Equal(t, "acme", m["carrier"])
	assert.Equal(t, "number-intel", m["server"])
	assert.Equal(t, "2026-03-04T05:06:07Z", m["timestamp"])
	assert.NotContains(t, m, "error")
}

func TestCached_SetsMarker(t *testing.T) {
	m := decode(t, Cached(json.RawMessage(`{"name":"Jane"}`), at, "s"))
	assert.Equal(t, true, m["cached"])
	assert.Equal(t, "Jane", m["name"])
}

func TestSuccess_EnvelopeFieldsWinExceptUpstreamSuccess(t *testing.T) {
	m := decode(t, Cached(json.RawMessage(`{"success":false,"cached":"nope","server":"them"}`), at, "us"))

	assert.Equal(t, false, m["success"])
	assert.Equal(t, true, m["cached"])
	assert.Equal(t, "us", m["server"])
}

func TestSuccess_NonObjectPayloadUnderData(t *testing.T) {
	m := decode(t, Fresh(json.RawMessage(`[1,2,3]`), at, ""))

	assert.Equal(t, []any{1.0, 2.0, 3.0}, m["data"])
	assert.Equal(t, true, m["success"])
	assert.NotContains(t, m, "server")
}

func TestFailure_Shape(t *testing.T) {
	m := decode(t, Failure(CodeUpstreamError, "error from source API", 503))

	assert.Equal(t, false, m["success"])
	assert.Equal(t, "upstream_error", m["error"])
	assert.Equal(t, "error from source API", m["message"])
	assert.Equal(t, 503.0, m["upstream_status"])
	assert.Equal(t, false, m["cached"])
}

func TestFailure_OmitsZeroUpstreamStatus(t *testing.T) {
	m := decode(t, Failure(CodeInvalidKey, "bad key", 0))
	assert.NotContains(t, m, "upstream_status")
}
