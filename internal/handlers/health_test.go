package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_ReportsUpstreamSummary(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	cfg := &config.Config{
		CurrentUpstream: "primary",
		LoadBalance:     config.LoadBalanceSequential,
		Upstreams: map[string]*config.UpstreamChannel{
			"primary": {Name: "primary", ServiceType: config.ServiceClaude},
		},
	}
	require.NoError(t, mgr.Save(cfg))
	_, err := mgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler(mgr, logger)

	r := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, 200, w.Code)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	assert.Equal(t, "ok", parsed["status"])
	assert.Equal(t, "primary", parsed["currentUpstream"])
	assert.Equal(t, float64(1), parsed["upstreamCount"])
	assert.NotEmpty(t, parsed["uptime"])
}
