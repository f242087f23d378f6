// Package server exposes the gateway over plain HTTP/HTTPS: a direct
// proxy to the analysis endpoint, a health check, prometheus metrics,
// and a JSON-RPC replica of the tool-invocation protocol.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compresr-ai/semantic-gateway/internal/config"
	"github.com/compresr-ai/semantic-gateway/internal/gateway"
	"github.com/compresr-ai/semantic-gateway/internal/tools"
)

type Server struct {
	cfg      config.ServerConfig
	router   *chi.Mux
	server   *http.Server
	adapter  *gateway.Adapter
	registry *tools.Registry
	logger   *slog.Logger
}

func New(cfg config.ServerConfig, adapter *gateway.Adapter, registry *tools.Registry, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		adapter:  adapter,
		registry: registry,
		logger:   logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.MaxUpstreamTimeout + 30*time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/analyze_sync", s.handleAnalyzeSync)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Post("/", s.handleRPC)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// Run starts the listener and blocks until a signal or listener error.
// When TLS material is configured but fails to load, the server logs the
// failure and falls back to plain HTTP.
func (s *Server) Run() error {
	serverErrors := make(chan error, 1)

	useTLS := false
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		if _, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile); err != nil {
			s.logger.Warn("failed to load TLS key pair, falling back to HTTP",
				"cert", s.cfg.TLSCertFile, "key", s.cfg.TLSKeyFile, "error", err)
		} else {
			useTLS = true
		}
	}

	go func() {
		s.logger.Info("starting server", "addr", s.server.Addr, "tls", useTLS)
		if useTLS {
			serverErrors <- s.server.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			serverErrors <- s.server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Info("starting shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	return nil
}
