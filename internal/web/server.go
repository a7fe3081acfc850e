// Package web exposes the import service over a JSON HTTP API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/spool"
	appmw "github.com/JonMunkholm/sheetimport/internal/web/middleware"
)

// Server is the HTTP front end of a core.Service.
type Server struct {
	service *core.Service
	store   *spool.Store
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	server  *http.Server

	limiters []*rateLimiter

	// runCtx parents background runs, so they outlive their request but
	// not the server.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewServer creates a Server. Uploads are spooled in store between preview
// and run.
func NewServer(service *core.Service, store *spool.Store, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	s := &Server{
		service:   service,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		router:    chi.NewRouter(),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(requestMetadata)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(appmw.Identity(&s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
		}

		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}
			r.Get("/importers", s.handleListImporters)
			r.Get("/importers/{importer}", s.handleGetImporter)
			r.Post("/importers/{importer}/match", s.handleMatch)
			r.Delete("/uploads/{uploadID}", s.handleDeleteUpload)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Delete("/runs/{runID}", s.handleCancelRun)
		})

		// Long-lived routes: uploads, runs and the progress stream are not
		// bound by the request timeout.
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(s.newRateLimiter(s.cfg.Rate.UploadLimit).middleware)
			}
			r.Post("/importers/{importer}/uploads", s.handleUpload)
			r.Post("/importers/{importer}/runs", s.handleRun)
		})
		r.Get("/runs/{runID}/events", s.handleRunEvents)
	})
}

// Start listens on the configured address until Shutdown. It returns
// http.ErrServerClosed after a shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and stops the rate limiter sweeps.
// Background runs keep going; cancel them with CancelRuns or wait for
// them through the service's run limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.stop()
	}
	return s.server.Shutdown(ctx)
}

// CancelRuns cancels every run started through this server.
func (s *Server) CancelRuns() {
	s.runCancel()
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) newRateLimiter(perMinute int) *rateLimiter {
	l := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, l)
	return l
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
