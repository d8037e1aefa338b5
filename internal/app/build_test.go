package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/skilldash/internal/config"
	"github.com/ent0n29/skilldash/internal/extraction"
)

func testConfig() config.Config {
	return config.Config{
		BindAddr:                 ":0",
		ShutdownTimeout:          time.Second,
		SessionInactivityTimeout: time.Minute,
		MetricsNamespace:         "apptest",
		LogLevel:                 "info",
		LogFormat:                "text",
		RateLimitWindow:          time.Minute,
		RateLimitMaxRequests:     2,
		RateLimitStore:           "memory",
		CompletionProvider:       "mock",
		CompletionTimeout:        time.Second,
		ModelMaxAttempts:         3,
		ModelRetryBaseDelay:      time.Millisecond,
	}
}

func TestBuildWiresMockPipeline(t *testing.T) {
	res, err := Build(context.Background(), testConfig(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Equal(t, "mock", res.Completion.Provider)
	assert.Equal(t, "mock", res.Completion.Detail)

	out, err := res.Chat.Extract(context.Background(), extraction.ChatRequest{
		ClientKey: "10.0.0.1",
		Message:   "I've been writing Go for 4 years",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Reply)
	require.NotNil(t, out.Update)
	require.NotNil(t, out.Update.Name)
	assert.Equal(t, "Go", *out.Update.Name)

	draft, err := res.Voice.Extract(context.Background(), "Python, intermediate, 2 years")
	require.NoError(t, err)
	assert.Equal(t, "Python", draft.Name)
}

func TestBuildRateLimitsThroughRouter(t *testing.T) {
	res, err := Build(context.Background(), testConfig(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	h := res.API.Router()
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"React","history":[]}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.CompletionProvider = "carrier-pigeon"
	_, err := Build(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestBuildReadyWithInMemoryStores(t *testing.T) {
	res, err := Build(context.Background(), testConfig(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	rec := httptest.NewRecorder()
	res.API.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
