package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ccrelay/ccproxy/internal/config"
)

// HealthHandler reports liveness plus the currently selected upstream, per
// spec.md §6's extended health payload.
type HealthHandler struct {
	config    *config.Manager
	logger    *slog.Logger
	startedAt time.Time
}

func NewHealthHandler(configMgr *config.Manager, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{config: configMgr, logger: logger, startedAt: time.Now()}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	payload := map[string]any{
		"status":          "ok",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"uptime":          time.Since(h.startedAt).String(),
		"upstreamCount":   len(cfg.Upstreams),
		"currentUpstream": cfg.CurrentUpstream,
		"loadBalance":     cfg.LoadBalance,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write health check response", "error", err)
	}
}
