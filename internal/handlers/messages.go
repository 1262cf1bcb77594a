package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/ccrelay/ccproxy/internal/router"
)

// MessagesHandler wires POST /v1/messages to the failover-driving Router.
type MessagesHandler struct {
	router *router.Router
	logger *slog.Logger
}

func NewMessagesHandler(rt *router.Router, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{router: rt, logger: logger}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	h.router.Route(r.Context(), w, body, r.Header)
}
