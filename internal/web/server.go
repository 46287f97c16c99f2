// Package web provides the HTTP API over the cleaning service.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/mailclean/internal/config"
	"github.com/JonMunkholm/mailclean/internal/core"
	webmw "github.com/JonMunkholm/mailclean/internal/web/middleware"
)

// Server is the HTTP server for the cleaning API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	// nil when rate limiting is disabled
	requests *webmw.RateLimiter
	uploads  *webmw.RateLimiter
}

// NewServer creates a Server over service.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.requests = webmw.NewRateLimiter(cfg.Rate.RequestsPerMinute)
		s.uploads = webmw.NewRateLimiter(cfg.Rate.UploadLimit)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.requests != nil {
		s.router.Use(s.requests.Handler)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(webmw.APIKeyAuth(&s.cfg.Security))

			r.Get("/policy", s.handlePolicy)
			r.With(s.uploadLimit).Post("/clean", s.handleClean)

			r.Route("/runs", func(r chi.Router) {
				r.With(s.uploadLimit).Post("/", s.handleStartRun)
				r.Get("/{runID}", s.handleRunProgress)
				r.Get("/{runID}/progress", s.handleRunProgressStream)
				r.Get("/{runID}/result", s.handleRunResult)
				r.Post("/{runID}/cancel", s.handleCancelRun)
				r.Get("/{runID}/reports/{kind}", s.handleRunReport)
				r.Get("/{runID}/output", s.handleRunOutput)
			})
		})
	})
}

// uploadLimit applies the stricter per-IP limit of endpoints accepting files.
func (s *Server) uploadLimit(next http.Handler) http.Handler {
	if s.uploads == nil {
		return next
	}
	return s.uploads.Handler(next)
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps progress streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.requests != nil {
		s.requests.Close()
	}
	if s.uploads != nil {
		s.uploads.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The API serves no
// HTML, so the CSP forbids everything.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			if csp {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
