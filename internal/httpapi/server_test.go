package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/skilldash/internal/completion"
	"github.com/ent0n29/skilldash/internal/config"
	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/observability"
	"github.com/ent0n29/skilldash/internal/protocol"
	"github.com/ent0n29/skilldash/internal/ratelimit"
	"github.com/ent0n29/skilldash/internal/session"
	"github.com/ent0n29/skilldash/internal/skill"
)

type failingCompleter struct{ calls int }

func (c *failingCompleter) Name() string { return "failing" }

func (c *failingCompleter) Complete(context.Context, string) (string, error) {
	c.calls++
	return "", &completion.StatusError{Provider: "failing", StatusCode: 500, Message: "secret internal detail"}
}

func newTestServer(t *testing.T, c completion.Completer, maxRequests int) *httptest.Server {
	t.Helper()
	return newTestServerWithConfig(t, c, config.Config{RateLimitWindow: time.Minute, RateLimitMaxRequests: maxRequests})
}

func newTestServerWithConfig(t *testing.T, c completion.Completer, cfg config.Config) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetrics("test", nil)
	invoker := extraction.NewInvoker(c, extraction.InvokerOptions{
		Sleep:   func(context.Context, time.Duration) error { return nil },
		Metrics: metrics,
	})
	limiter := ratelimit.New(ratelimit.NewMemoryStore(time.Minute), ratelimit.Options{
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitMaxRequests,
	})
	srv := New(cfg, Deps{
		Chat:     extraction.NewPipeline(limiter, invoker, nil, metrics),
		Voice:    extraction.NewVoicePipeline(invoker, nil, metrics),
		Skills:   skill.NewInMemoryStore(),
		Sessions: session.NewManager(time.Minute),
		Metrics:  metrics,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func chatBody(message string) map[string]any {
	return map[string]any{"message": message, "history": []any{}}
}

func TestChatReturnsPartialUpdate(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", map[string]any{
		"message": "set level to 5",
		"history": []map[string]string{{"role": "assistant", "content": "Which skill?"}},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.NotEmpty(t, payload["message"])
	assert.Equal(t, map[string]any{"level": float64(5)}, payload["skillData"])
}

func TestChatWithoutFieldsReturnsNullSkillData(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("hello there"), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	v, ok := payload["skillData"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)
	turns := make([]map[string]string, 21)
	for i := range turns {
		turns[i] = map[string]string{"role": "user", "content": "hi"}
	}

	for name, body := range map[string]any{
		"empty body":        nil,
		"missing message":   map[string]any{"history": []any{}},
		"oversized message": chatBody(strings.Repeat("x", 501)),
		"history not array": `{"message":"hi","history":"nope"}`,
		"oversized history": map[string]any{"message": "hi", "history": turns},
		"message not text":  `{"message":42}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, raw := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", body, nil)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(raw))
		})
	}
}

func TestChatRequiresHistoryArray(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	for name, body := range map[string]any{
		"missing history": `{"message":"hi"}`,
		"null history":    `{"message":"hi","history":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, raw := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", body, nil)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			assert.Contains(t, string(raw), "Invalid history")
		})
	}

	res, raw := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", `{"message":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.NotContains(t, string(raw), "Invalid history")
}

func TestTruncatedBodyIsNotTreatedAsEmpty(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	res, raw := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", `{"message":"hi"`, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(raw), "Invalid request body")

	res, raw = doJSON(t, http.MethodPost, ts.URL+"/v1/voice/parse", `{"transcript":"Go 3 years"`, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(raw), "Invalid request body")

	res, raw = doJSON(t, http.MethodPost, ts.URL+"/v1/chat", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(raw), "Message is required")
}

func TestChatRateLimitsPerClient(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 2)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	for i := 0; i < 2; i++ {
		res, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("hi"), headers)
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("hi"), headers)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "60", res.Header.Get("Retry-After"))
	assert.Contains(t, string(body), "rate_limited")

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("hi"), map[string]string{"X-Forwarded-For": "203.0.113.8"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestChatInvalidRequestsDoNotConsumeQuota(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 1)
	headers := map[string]string{"X-Real-IP": "198.51.100.4"}

	for i := 0; i < 3; i++ {
		res, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody(""), headers)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	}
	res, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("hi"), headers)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestChatHidesUpstreamErrors(t *testing.T) {
	c := &failingCompleter{}
	ts := newTestServer(t, c, 10)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("hi"), nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.NotContains(t, string(body), "secret")
	assert.Contains(t, string(body), "Failed to process chat")
	assert.Equal(t, 1, c.calls)
}

func TestVoiceParse(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/voice/parse", map[string]string{"transcript": "Next.js フロントエンド 3年"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var d skill.Draft
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Contains(t, d.Name, "Next.js")
	assert.Equal(t, skill.CategoryFrontend, d.Category)
	assert.Equal(t, 36, d.ExperienceMonths)

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/voice/parse", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	failing := newTestServer(t, &failingCompleter{}, 10)
	res, body = doJSON(t, http.MethodPost, failing.URL+"/v1/voice/parse", map[string]string{"transcript": "Go"}, nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, string(body), "Failed to parse voice input")
}

func TestSkillCRUD(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)
	alice := map[string]string{"X-User-ID": "alice"}

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/skills", skill.Draft{Name: " Go ", Level: 4, Category: "Language", ExperienceMonths: 24}, alice)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	var created skill.Skill
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Go", created.Name)
	assert.Equal(t, "alice", created.UserID)
	require.NotEmpty(t, created.ID)

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/skills", skill.Draft{Name: "Go", Level: 9, Category: "Language"}, alice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = doJSON(t, http.MethodPatch, ts.URL+"/v1/skills/"+created.ID, map[string]any{"level": 5}, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var updated skill.Skill
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, 5, updated.Level)
	assert.Equal(t, "Go", updated.Name)
	assert.Equal(t, 24, updated.ExperienceMonths)

	res, _ = doJSON(t, http.MethodPatch, ts.URL+"/v1/skills/"+created.ID, map[string]any{"name": ""}, alice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/skills", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var list []skill.Skill
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/skills/categories", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `["Language"]`, string(body))

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/skills", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	res, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/skills/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/skills/"+created.ID, nil, alice)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/skills/"+created.ID, nil, alice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestChatWebsocketKeepsHistoryAndDraft(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/chat/session", nil, map[string]string{"X-User-ID": "bob"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "bob", snap.UserID)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws?session_id=" + snap.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready protocol.SessionReady
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, protocol.TypeSessionReady, ready.Type)
	assert.Equal(t, snap.SessionID, ready.SessionID)

	require.NoError(t, conn.WriteJSON(protocol.ChatTurn{Type: protocol.TypeChatTurn, TurnID: "t1", Message: "I use React"}))
	var first protocol.ChatReply
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "t1", first.TurnID)
	assert.Equal(t, "React", first.Draft.Name)
	assert.Equal(t, skill.CategoryFrontend, first.Draft.Category)

	require.NoError(t, conn.WriteJSON(protocol.ChatTurn{Type: protocol.TypeChatTurn, TurnID: "t2", Message: "level 4"}))
	var second protocol.ChatReply
	require.NoError(t, conn.ReadJSON(&second))
	require.NotNil(t, second.SkillData)
	require.NotNil(t, second.SkillData.Level)
	assert.Nil(t, second.SkillData.Name)
	assert.Equal(t, skill.Draft{Name: "React", Category: skill.CategoryFrontend, Level: 4}, second.Draft)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	var ev protocol.ErrorEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "invalid_client_message", ev.Code)

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/chat/session/"+snap.SessionID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Len(t, snap.History, 4)
	assert.Equal(t, 2, snap.TurnCount)
}

func TestChatWebsocketOutlivesReadTimeout(t *testing.T) {
	ts := newTestServerWithConfig(t, completion.NewMockCompleter(), config.Config{
		RateLimitWindow:      time.Minute,
		RateLimitMaxRequests: 100,
		WSReadTimeout:        300 * time.Millisecond,
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready protocol.SessionReady
	require.NoError(t, conn.ReadJSON(&ready))

	// Active turns spread well past the read timeout.
	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		turnID := fmt.Sprintf("t%d", i)
		require.NoError(t, conn.WriteJSON(protocol.ChatTurn{Type: protocol.TypeChatTurn, TurnID: turnID, Message: "I use Go"}))
		var reply protocol.ChatReply
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, turnID, reply.TurnID)
	}

	// Idle for longer than the read timeout while answering pings.
	go func() {
		time.Sleep(700 * time.Millisecond)
		_ = conn.WriteJSON(protocol.ChatTurn{Type: protocol.TypeChatTurn, TurnID: "late", Message: "level 3"})
	}()
	var late protocol.ChatReply
	require.NoError(t, conn.ReadJSON(&late))
	assert.Equal(t, "late", late.TurnID)
	assert.Positive(t, pings.Load())
}

func TestChatWebsocketUnknownSession(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws?session_id=missing"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.True(t, errors.Is(err, websocket.ErrBadHandshake))
}

func TestHealthAndPerf(t *testing.T) {
	ts := newTestServer(t, completion.NewMockCompleter(), 10)

	res, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"skill_store_mode":"in-memory"`)

	res, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/chat", chatBody("I use Go"), nil)
	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/perf/latency", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var snap observability.StageSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	stages := map[string]bool{}
	for _, s := range snap.Stages {
		stages[s.Stage] = true
	}
	assert.True(t, stages["model_call"])
	assert.True(t, stages["chat_total"])
}

func TestReadyReportsDependencyFailure(t *testing.T) {
	srv := New(config.Config{}, Deps{Ready: func(context.Context) error { return errors.New("db down") }})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientKey(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, remote: "10.0.0.1:5000", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, remote: "10.0.0.1:5000", want: "198.51.100.2"},
		{name: "remote host", remote: "192.0.2.9:41234", want: "192.0.2.9"},
		{name: "remote without port", remote: "192.0.2.10", want: "192.0.2.10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientKey(r))
		})
	}
}
