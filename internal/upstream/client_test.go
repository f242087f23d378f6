package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr-ai/semantic-gateway/internal/config"
)

func testClient(t *testing.T, baseURL string, breaker bool) *Client {
	t.Helper()
	return New(config.UpstreamConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Timeout:        5 * time.Second,
		CircuitBreaker: breaker,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPostSuccess(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze_sync", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"essay_text":"hello"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, false)
	resp, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostRateLimitedHonorsRetryAfter(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, false)
	start := time.Now()
	resp, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one retry expected")
	assert.GreaterOrEqual(t, elapsed, 2*time.Second, "must wait out the Retry-After hint")
}

func TestPostServerErrorExhaustsRetryBudget(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, false)
	_, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})

	require.Error(t, err)
	assert.True(t, IsServerError(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "no more than 3 attempts")
}

func TestPostClientErrorFailsImmediately(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad params"}`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, false)
	_, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})

	require.Error(t, err)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.Status)
	assert.Equal(t, []byte(`{"error":"bad params"}`), serr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostAuthErrorNeverRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, false)
	_, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostNetworkErrorRetriesThenFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listening

	c := testClient(t, ts.URL, false)
	_, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})

	require.Error(t, err)
	var serr *StatusError
	assert.NotErrorAs(t, err, &serr, "network failures carry no status")
}

func TestPostAPIKeyOverride(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "per-request-key", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, false)
	_, err := c.Post(context.Background(), "/analyze_sync",
		map[string]string{"essay_text": "x"}, WithAPIKey("per-request-key"))
	require.NoError(t, err)
}

func TestPostCanceledContextNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(t, ts.URL, false)
	_, err := c.Post(ctx, "/analyze_sync", map[string]string{"essay_text": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, true)
	for i := 0; i < 3; i++ {
		_, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})
		require.Error(t, err)
	}

	before := atomic.LoadInt32(&calls)
	_, err := c.Post(context.Background(), "/analyze_sync", map[string]string{"essay_text": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open circuit must not reach the upstream")
}

func TestRetryAfterHint(t *testing.T) {
	tests := []struct {
		name string
		serr *StatusError
		want time.Duration
	}{
		{
			name: "header seconds",
			serr: &StatusError{Status: 429, Header: http.Header{"Retry-After": []string{"7"}}},
			want: 7 * time.Second,
		},
		{
			name: "body field",
			serr: &StatusError{Status: 429, Header: http.Header{}, Body: []byte(`{"retry_after": 3}`)},
			want: 3 * time.Second,
		},
		{
			name: "no hint",
			serr: &StatusError{Status: 429, Header: http.Header{}, Body: []byte(`{}`)},
			want: 0,
		},
		{
			name: "malformed header falls through to body",
			serr: &StatusError{
				Status: 429,
				Header: http.Header{"Retry-After": []string{"soon"}},
				Body:   []byte(`{"retry_after_seconds": 4}`),
			},
			want: 4 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.serr.RetryAfter())
		})
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(3))
	assert.Equal(t, 8*time.Second, backoffDelay(4))
	assert.Equal(t, 10*time.Second, backoffDelay(5))
	assert.Equal(t, 10*time.Second, backoffDelay(8))
}
