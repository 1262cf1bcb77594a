package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/handlers"
	"github.com/ccrelay/ccproxy/internal/middleware"
	"github.com/ccrelay/ccproxy/internal/router"
	"github.com/ccrelay/ccproxy/internal/scheduler"
)

type Server struct {
	config *config.Manager
	router *router.Router
	logger *slog.Logger
	server *http.Server
}

func New(configManager *config.Manager, logger *slog.Logger) *Server {
	sched := scheduler.New()
	rt := router.New(configManager, sched, logger)

	return &Server{
		config: configManager,
		router: rt,
		logger: logger,
	}
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	mux := s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("starting server", "address", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes(cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()

	messagesHandler := handlers.NewMessagesHandler(s.router, s.logger)
	healthHandler := handlers.NewHealthHandler(s.config, s.logger)
	adminReloadHandler := handlers.NewAdminReloadHandler(s.config, s.logger)
	adminStubHandler := handlers.NewAdminStubHandler()

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)

	healthPath := cfg.HealthCheckPath
	if healthPath == "" {
		healthPath = config.DefaultHealthCheckPath
	}

	mux.Handle(healthPath, middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("/v1/messages", middlewareSet.DefaultChain().Handler(messagesHandler))
	mux.Handle("/admin/config/reload", middlewareSet.DefaultChain().Handler(adminReloadHandler))
	mux.Handle("/admin/", middlewareSet.DefaultChain().Handler(adminStubHandler))
	mux.Handle("/", middlewareSet.DefaultChain().Handler(adminStubHandler))

	return mux
}
