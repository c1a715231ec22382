package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wudi/mdgate/config"
	"github.com/wudi/mdgate/internal/logging"
	"github.com/wudi/mdgate/internal/markdown"
	"github.com/wudi/mdgate/internal/middleware"
)

// Server wires the markdown renderer into HTTP listeners: the main listener
// serves renditions, the admin listener serves metrics, health and stats.
type Server struct {
	cfg  *config.Config
	next http.Handler

	renderer atomic.Pointer[markdown.Renderer]
	handler  atomic.Pointer[http.Handler]

	registry *prometheus.Registry
	metrics  *promMetrics

	httpServer  *http.Server
	adminServer *http.Server
}

// New creates a server from config. The fallthrough handler answers requests
// the renderer does not intercept; nil means plain 404, which suits a
// deployment where another layer serves the primary resources.
func New(cfg *config.Config, next http.Handler) (*Server, error) {
	if next == nil {
		next = http.NotFoundHandler()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	s := &Server{
		cfg:      cfg,
		next:     next,
		registry: registry,
		metrics:  newPromMetrics(registry),
	}

	if err := s.rebuild(cfg, next); err != nil {
		return nil, err
	}

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		(*s.handler.Load()).ServeHTTP(w, r)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Server.MetricsListen != "" {
		s.adminServer = &http.Server{
			Addr:    cfg.Server.MetricsListen,
			Handler: s.adminHandler(),
		}
	}

	return s, nil
}

// rebuild constructs a renderer and middleware chain for cfg and swaps them
// in atomically. Used at startup and on config reload.
func (s *Server) rebuild(cfg *config.Config, next http.Handler) error {
	renderer, err := markdown.New(cfg.Markdown)
	if err != nil {
		return err
	}

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.AccessLog(),
		s.metrics.instrument(),
		middleware.Recovery(),
		renderer.Middleware(),
	)
	handler := chain.Then(next)

	s.renderer.Store(renderer)
	s.handler.Store(&handler)
	return nil
}

// Reload applies a new configuration to the running server. Listener
// addresses and timeouts are fixed at startup; only the markdown pipeline is
// swapped.
func (s *Server) Reload(cfg *config.Config) {
	if err := s.rebuild(cfg, s.next); err != nil {
		logging.Error("config reload rejected", zap.Error(err))
		return
	}
	logging.Info("markdown pipeline reloaded")
}

// Renderer returns the active renderer.
func (s *Server) Renderer() *markdown.Renderer {
	return s.renderer.Load()
}

// Handler returns the main listener handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// adminHandler routes the admin endpoints.
func (s *Server) adminHandler() http.Handler {
	router := httprouter.New()

	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	router.HandlerFunc(http.MethodGet, "/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"markdown": s.Renderer().Stats(),
		})
	})

	return router
}

// Start starts the listeners without blocking.
func (s *Server) Start() error {
	errCh := make(chan error, 2)

	go func() {
		logging.Info("starting server", zap.String("listen", s.cfg.Server.Listen))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	if s.adminServer != nil {
		go func() {
			logging.Info("starting admin server", zap.String("listen", s.cfg.Server.MetricsListen))
			if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("admin server error: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		// Give the listeners a moment to bind
	}
	return nil
}

// Run starts the server and blocks until SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down gracefully")
	return s.Shutdown(30 * time.Second)
}

// Shutdown gracefully shuts down both listeners.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			logging.Error("admin server shutdown error", zap.Error(err))
		}
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	logging.Info("server shutdown complete")
	return nil
}
