package browserbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"computer-use-agent/internal/application/service"
	"computer-use-agent/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		APIKey:    "bb_test",
		ProjectID: "proj-1",
		Retry:     service.RetryPolicy{Initial: time.Millisecond, Multiplier: 2, MaxInterval: 2 * time.Millisecond, MaxAttempts: 3},
	}, logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientConfig{ProjectID: "p"}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{APIKey: "k"}, logger.NewNop())
	assert.Error(t, err)
}

func TestCreateSession(t *testing.T) {
	var got CreateSessionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "bb_test", r.Header.Get("X-BB-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"sess-1","status":"RUNNING","region":"us-west-2","connectUrl":"wss://connect.example/sess-1"}`))
	})

	s, err := c.CreateSession(context.Background(), CreateSessionRequest{
		BrowserSettings: BrowserSettings{Viewport: Viewport{Width: 1440, Height: 900}},
		Region:          "us-west-2",
	})

	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, "wss://connect.example/sess-1", s.ConnectURL)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, 1440, got.BrowserSettings.Viewport.Width)
}

func TestCreateSession_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"sess-2","connectUrl":"wss://x"}`))
	})

	s, err := c.CreateSession(context.Background(), CreateSessionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "sess-2", s.ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCreateSession_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.CreateSession(context.Background(), CreateSessionRequest{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCreateSession_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid key"}`))
	})

	_, err := c.CreateSession(context.Background(), CreateSessionRequest{})

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCreateSession_QuotaErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	})

	_, err := c.CreateSession(context.Background(), CreateSessionRequest{})

	assert.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestReleaseSession(t *testing.T) {
	var body updateSessionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/sess-9", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":"sess-9","status":"COMPLETED"}`))
	})

	require.NoError(t, c.ReleaseSession(context.Background(), "sess-9"))
	assert.Equal(t, "REQUEST_RELEASE", body.Status)
	assert.Equal(t, "proj-1", body.ProjectID)
}

func TestDebugURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/sess-3/debug", r.URL.Path)
		_, _ = w.Write([]byte(`{"debuggerFullscreenUrl":"https://live.example/3"}`))
	})

	url, err := c.DebugURL(context.Background(), "sess-3")

	require.NoError(t, err)
	assert.Equal(t, "https://live.example/3", url)
}
