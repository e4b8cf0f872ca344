package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_PassesQueryAndReturnsBody(t *testing.T) {
	var gotNumber, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNumber = r.URL.Query().Get("number")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"carrier":"acme","number":"1234567890"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/api.php", "upstream-secret", time.Second)
	require.NoError(t, err)

	body, err := c.Fetch(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.JSONEq(t, `{"carrier":"acme","number":"1234567890"}`, string(body))
	assert.Equal(t, "1234567890", gotNumber)
	assert.Equal(t, "upstream-secret", gotKey)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1234567890")
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, KindStatus, ue.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL, "", 30*time.Millisecond)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1234567890")
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, KindTimeout, ue.Kind)
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url, "", time.Second)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1234567890")
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, KindUnreachable, ue.Kind)
}

func TestFetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1234567890")
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, KindPayload, ue.Kind)
	assert.Equal(t, http.StatusOK, ue.Status)
}

func TestNew_RejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com", "", time.Second)
	assert.Error(t, err)
}

func TestWithRateLimit_ThrottleExhaustedIsTimeout(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// one token, refilled far slower than the timeout
	c, err := New(srv.URL, "", 50*time.Millisecond, WithRateLimit(0.001, 1))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1234567890")
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1234567890")
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, KindTimeout, ue.Kind)
	assert.Equal(t, 1, calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestWithHTTPClient_UsesProvidedTransport(t *testing.T) {
	var seen *http.Request
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Request:    r,
		}, nil
	})}

	c, err := New("https://numbers.example/api.php", "secret", 2*time.Second, WithHTTPClient(hc))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.Timeout())

	body, err := c.Fetch(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	require.NotNil(t, seen)
	assert.Equal(t, "numbers.example", seen.URL.Host)
	assert.Equal(t, "application/json", seen.Header.Get("Accept"))
}
