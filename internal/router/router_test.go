package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, ch *config.UpstreamChannel) (*Router, *config.Manager) {
	t.Helper()

	mgr := config.NewManager(t.TempDir())
	cfg := &config.Config{
		ProxyAccessKey:  "test-key",
		CurrentUpstream: ch.Name,
		Upstreams:       map[string]*config.UpstreamChannel{ch.Name: ch},
	}
	require.NoError(t, mgr.Save(cfg))
	_, err := mgr.Load()
	require.NoError(t, err)

	return New(mgr, scheduler.New(), discardLogger()), mgr
}

func requestBody() []byte {
	return []byte(`{"model":"claude-3-opus","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`)
}

// TestRoute_ScenarioA: k1 returns 401, k2 returns 200 — client sees 200,
// key order unchanged since the failure wasn't quota-related.
func TestRoute_ScenarioA(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(401)
			w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"id":"msg_1","type":"message","content":[{"type":"text","text":"hi"}]}`))
	}))
	defer upstream.Close()

	ch := &config.UpstreamChannel{Name: "c1", ServiceType: config.ServiceClaude, BaseURL: upstream.URL, APIKeys: []string{"k1", "k2"}}
	rt, mgr := newTestRouter(t, ch)

	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), nil)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, []string{"k1", "k2"}, mgr.Get().Current().APIKeys)
}

// TestRoute_ScenarioB: k1 fails with a quota-related 400, k2 succeeds —
// client sees 200 and k1 is moved to the end of the key list.
func TestRoute_ScenarioB(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(400)
			w.Write([]byte(`{"error":{"message":"credit balance too low","type":"billing"}}`))
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"id":"msg_1","type":"message"}`))
	}))
	defer upstream.Close()

	ch := &config.UpstreamChannel{Name: "c1", ServiceType: config.ServiceClaude, BaseURL: upstream.URL, APIKeys: []string{"k1", "k2", "k3"}}
	rt, mgr := newTestRouter(t, ch)

	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), nil)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, []string{"k2", "k3", "k1"}, mgr.Get().Current().APIKeys)
}

// TestRoute_ScenarioC: all three keys return 401 — client sees 401 with the
// last upstream's JSON body.
func TestRoute_ScenarioC(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer upstream.Close()

	ch := &config.UpstreamChannel{Name: "c1", ServiceType: config.ServiceClaude, BaseURL: upstream.URL, APIKeys: []string{"k1", "k2", "k3"}}
	rt, _ := newTestRouter(t, ch)

	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), nil)

	assert.Equal(t, 401, w.Code)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	errObj := parsed["error"].(map[string]any)
	assert.Equal(t, "invalid api key", errObj["message"])
}

func TestRoute_NoUpstreamConfigured(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(&config.Config{ProxyAccessKey: "k"}))
	_, err := mgr.Load()
	require.NoError(t, err)

	rt := New(mgr, scheduler.New(), discardLogger())
	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), nil)

	assert.Equal(t, 503, w.Code)
}

func TestRoute_NoAPIKeysConfigured(t *testing.T) {
	ch := &config.UpstreamChannel{Name: "c1", ServiceType: config.ServiceClaude, BaseURL: "https://example.com"}
	rt, _ := newTestRouter(t, ch)

	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), nil)

	assert.Equal(t, 503, w.Code)
}

// TestRoute_ForwardsClientHeadersExceptCredentials verifies the §4.3
// common-adapter-contract requirement: client headers reach the upstream
// verbatim except the three credential headers the proxy strips and
// replaces with the attempted key.
func TestRoute_ForwardsClientHeadersExceptCredentials(t *testing.T) {
	var gotTraceID, gotAPIKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = r.Header.Get("X-Trace-Id")
		gotAPIKey = r.Header.Get("x-api-key")
		w.WriteHeader(200)
		w.Write([]byte(`{"id":"msg_1","type":"message"}`))
	}))
	defer upstream.Close()

	ch := &config.UpstreamChannel{Name: "c1", ServiceType: config.ServiceClaude, BaseURL: upstream.URL, APIKeys: []string{"upstream-key"}}
	rt, _ := newTestRouter(t, ch)

	clientHeaders := http.Header{}
	clientHeaders.Set("X-Trace-Id", "trace-abc")
	clientHeaders.Set("x-api-key", "client-supplied-key")

	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), clientHeaders)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "trace-abc", gotTraceID)
	assert.Equal(t, "upstream-key", gotAPIKey)
}

// TestRoute_FatalUpstreamErrorForwardsContentType verifies spec.md §7's
// FatalUpstreamError requirement to forward the upstream's status, content
// type, and body unchanged on a non-retryable error.
func TestRoute_FatalUpstreamErrorForwardsContentType(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(400)
		w.Write([]byte(`{"error":"bad request shape"}`))
	}))
	defer upstream.Close()

	ch := &config.UpstreamChannel{Name: "c1", ServiceType: config.ServiceClaude, BaseURL: upstream.URL, APIKeys: []string{"k1"}}
	rt, _ := newTestRouter(t, ch)

	w := httptest.NewRecorder()
	rt.Route(context.Background(), w, requestBody(), nil)

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestAuthenticate(t *testing.T) {
	cfg := &config.Config{ProxyAccessKey: "secret"}

	r1 := httptest.NewRequest("POST", "/v1/messages", nil)
	r1.Header.Set("x-api-key", "secret")
	assert.NoError(t, Authenticate(cfg, r1))

	r2 := httptest.NewRequest("POST", "/v1/messages", nil)
	r2.Header.Set("Authorization", "Bearer secret")
	assert.NoError(t, Authenticate(cfg, r2))

	r3 := httptest.NewRequest("POST", "/v1/messages", nil)
	assert.Error(t, Authenticate(cfg, r3))

	r4 := httptest.NewRequest("POST", "/v1/messages", nil)
	r4.Header.Set("x-api-key", "wrong")
	assert.Error(t, Authenticate(cfg, r4))
}
