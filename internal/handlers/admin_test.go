package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminReloadHandler_Success(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(&config.Config{ProxyAccessKey: "k"}))
	_, err := mgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAdminReloadHandler(mgr, logger)

	r := httptest.NewRequest(http.MethodPost, "/admin/config/reload", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, 200, w.Code)
}

func TestAdminReloadHandler_RejectsNonPost(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAdminReloadHandler(mgr, logger)

	r := httptest.NewRequest(http.MethodGet, "/admin/config/reload", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAdminStubHandler(t *testing.T) {
	h := NewAdminStubHandler()

	r := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, 200, w.Code)
}
