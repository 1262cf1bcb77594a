package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/router"
)

type AuthMiddleware struct {
	config *config.Manager
	logger *slog.Logger
}

func NewAuthMiddleware(config *config.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	am := &AuthMiddleware{
		config: config,
		logger: logger,
	}

	return am.middleware
}

func (am *AuthMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := am.authenticate(r); err != nil {
			am.logger.Error("authentication failed", "error", err, "remote_addr", r.RemoteAddr)
			http.Error(w, "Proxy API key not authorized", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticate implements spec.md §6: the inbound request must carry
// x-api-key or Authorization: Bearer equal to proxyAccessKey. Health checks
// are exempt; an unconfigured proxyAccessKey disables the check entirely.
// The token check itself is shared with the /admin/* stub via
// router.Authenticate.
func (am *AuthMiddleware) authenticate(r *http.Request) error {
	cfg := am.config.Get()

	if r.URL.Path == cfg.HealthCheckPath {
		return nil
	}

	return router.Authenticate(cfg, r)
}
