package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ccrelay/ccproxy/internal/config"
)

// AdminReloadHandler backs POST /admin/config/reload: it re-reads the
// persisted config and republishes it, without restarting the process.
type AdminReloadHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewAdminReloadHandler(configMgr *config.Manager, logger *slog.Logger) *AdminReloadHandler {
	return &AdminReloadHandler{config: configMgr, logger: logger}
}

func (h *AdminReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.config.Reload(); err != nil {
		h.logger.Error("config reload failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "reloaded"})
}

// AdminStubHandler implements the §6 requirement that /admin/* and / need
// only the auth check — no admin UI is rendered (enableWebUI is out of
// scope per spec.md §1). By the time this handler runs, the auth middleware
// has already rejected unauthenticated requests, so it only needs to answer.
type AdminStubHandler struct{}

func NewAdminStubHandler() *AdminStubHandler { return &AdminStubHandler{} }

func (h *AdminStubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
