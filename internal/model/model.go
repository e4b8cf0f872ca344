package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// ErrorCode is the machine-readable tag in a failure envelope.
type ErrorCode string

const (
	CodeMissingKey          ErrorCode = "missing_key"
	CodeInvalidKey          ErrorCode = "invalid_key"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeMissingParameter    ErrorCode = "missing_parameter"
	CodeInvalidFormat       ErrorCode = "invalid_format"
	CodeUpstreamTimeout     ErrorCode = "upstream_timeout"
	CodeUpstreamError       ErrorCode = "upstream_error"
	CodeUpstreamUnreachable ErrorCode = "upstream_unreachable"
	CodeInternal            ErrorCode = "internal_error"
	CodeNotFound            ErrorCode = "not_found"
	CodeMethodNotAllowed    ErrorCode = "method_not_allowed"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeInvalidBody         ErrorCode = "invalid_body"
)

// Envelope is the uniform response body. On success the upstream object's
// fields are merged at the top level next to the envelope fields.
type Envelope struct {
	Success        bool
	Error          ErrorCode
	Message        string
	UpstreamStatus int
	Cached         bool
	Server         string
	Timestamp      time.Time

	// Payload is the raw upstream body, nil for failures.
	Payload json.RawMessage
}

// Fresh shapes a payload just fetched from the upstream.
func Fresh(payload json.RawMessage, at time.Time, server string) *Envelope {
	return &Envelope{Success: true, Payload: payload, Server: server, Timestamp: at}
}

// Cached shapes a payload served from the response cache.
func Cached(payload json.RawMessage, fetchedAt time.Time, server string) *Envelope {
	return &Envelope{Success: true, Cached: true, Payload: payload, Server: server, Timestamp: fetchedAt}
}

// Failure shapes an error outcome. upstreamStatus is only reported when non-zero.
func Failure(code ErrorCode, message string, upstreamStatus int) *Envelope {
	return &Envelope{Error: code, Message: message, UpstreamStatus: upstreamStatus}
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)

	if len(e.Payload) > 0 {
		var fields map[string]json.RawMessage
		trimmed := bytes.TrimSpace(e.Payload)
		if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &fields) == nil {
			for k, v := range fields {
				out[k] = v
			}
		} else {
			out["data"] = e.Payload
		}
	}

	if !e.Success {
		out["success"] = false
		out["error"] = e.Error
		out["message"] = e.Message
		out["cached"] = false
		if e.UpstreamStatus != 0 {
			out["upstream_status"] = e.UpstreamStatus
		}
		return json.Marshal(out)
	}

	// upstream may report its own success flag; keep it
	if _, ok := out["success"]; !ok {
		out["success"] = true
	}
	if e.Message != "" {
		out["message"] = e.Message
	}
	out["cached"] = e.Cached
	if e.Server != "" {
		out["server"] = e.Server
	}
	if !e.Timestamp.IsZero() {
		out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Server    string  `json:"server"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
	CacheSize int     `json:"cache_size"`
}

// StatsResponse is returned by /stats.
type StatsResponse struct {
	CacheSize       int              `json:"cache_size"`
	CacheTTL        string           `json:"cache_ttl"`
	CacheMaxEntries int              `json:"cache_max_entries"`
	Keys            int              `json:"keys"`
	RateLimit       int              `json:"rate_limit"`
	RateWindow      string           `json:"rate_window"`
	TrackedClients  int              `json:"tracked_clients"`
	UpstreamTimeout string           `json:"upstream_timeout"`
	StatsBackend    string           `json:"stats_backend"`
	Outcomes        map[string]int64 `json:"outcomes,omitempty"`
	LocalDB         bool             `json:"local_db_loaded"`
}

// MessageResponse is a plain status message, used by /test.
type MessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Server    string `json:"server,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// KeyAddedResponse is returned by the admin key endpoint.
type KeyAddedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Added   bool   `json:"added"`
	Keys    int    `json:"keys"`
}
