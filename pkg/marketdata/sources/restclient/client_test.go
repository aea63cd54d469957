package restclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New("demo", server.URL, WithHeader("X-Api-Key", "secret"), WithMaxRetries(3), WithBackoff(time.Millisecond, 2*time.Millisecond))
	var out struct {
		OK bool `json:"ok"`
	}
	err := client.GetJSON(context.Background(), "/chart", url.Values{"days": {"7"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"coin not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := New("demo", server.URL, WithMaxRetries(3), WithBackoff(time.Millisecond, 2*time.Millisecond))
	err := client.GetJSON(context.Background(), "/chart", nil, nil)
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "coin not found")
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetJSONHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New("demo", server.URL, WithMaxRetries(1), WithBackoff(time.Hour, time.Hour))
	start := time.Now()
	require.NoError(t, client.GetJSON(context.Background(), "/", nil, nil))
	assert.Less(t, time.Since(start), time.Second, "Retry-After: 0 should override the backoff")
	assert.EqualValues(t, 2, calls.Load())
}

func TestPostJSONSendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"echo":"x"}`))
	}))
	defer server.Close()

	client := New("demo", server.URL+"/")
	var out map[string]string
	require.NoError(t, client.PostJSON(context.Background(), "/history", map[string]string{"code": "BTC"}, &out))
	assert.Equal(t, "x", out["echo"])
	assert.Equal(t, server.URL, client.BaseURL())
}

func TestDoStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	client := New("demo", server.URL, WithMaxRetries(10), WithBackoff(time.Second, time.Second))
	err := client.GetJSON(ctx, "/", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDecodeErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`not-json`))
	}))
	defer server.Close()

	client := New("demo", server.URL, WithMaxRetries(3), WithBackoff(time.Millisecond, time.Millisecond))
	var out map[string]any
	err := client.GetJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.EqualValues(t, 1, calls.Load())
}

func TestComputeBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		d := computeBackoff(100*time.Millisecond, time.Second, attempt, "")
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.Equal(t, 2*time.Second, computeBackoff(time.Millisecond, time.Millisecond, 0, "2"))
	assert.Equal(t, maxRetryAfter, computeBackoff(time.Millisecond, time.Millisecond, 0, "3600"))
}

func TestRequestsPerMinuteQuota(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 60 per minute allows a burst of 6 before requests are spaced a second apart.
	client := New("demo", server.URL, WithRequestsPerMinute(60), WithMaxRetries(0))
	for i := 0; i < 6; i++ {
		require.NoError(t, client.GetJSON(context.Background(), "/chart", nil, nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := client.GetJSON(ctx, "/chart", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota wait")
	assert.EqualValues(t, 6, calls.Load())
}
